// Package pipeline turns a research paper into a visual abstract:
// summarize with the hosted assistant, seed locally, refine with a chat model.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/visual-abstract/internal/abstract"
	"github.com/joelkehle/visual-abstract/internal/assistant"
	"github.com/joelkehle/visual-abstract/internal/extract"
	"github.com/joelkehle/visual-abstract/internal/llm"
	"github.com/joelkehle/visual-abstract/internal/priority"
	"github.com/joelkehle/visual-abstract/internal/telemetry"
)

const (
	StageValidate  = "validate"
	StageSummarize = "summarize"
	StageSeed      = "seed"
	StageRefine    = "refine"
)

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type StageProgressFn func(stage, message string)

// Summarizer produces summary text for a document. *assistant.Runner is one.
type Summarizer interface {
	Run(ctx context.Context, doc assistant.Document) (string, error)
}

// Request is one paper to process. When Summary is set the summarize stage
// is skipped and Document may be empty.
type Request struct {
	Document   assistant.Document
	Summary    string
	Priorities priority.Split
}

type Seed struct {
	Processed extract.ProcessedData  `json:"processed"`
	Abstract  abstract.VisualAbstract `json:"abstract"`
}

// RefineRequest is everything the refine stage sends to the model.
type RefineRequest struct {
	Summary    string         `json:"summary"`
	Seed       Seed           `json:"seed"`
	Priorities priority.Split `json:"priorities"`
}

type Metadata struct {
	StartedAt      time.Time                `json:"started_at"`
	CompletedAt    time.Time                `json:"completed_at"`
	StagesExecuted []string                 `json:"stages_executed"`
	StagesSkipped  []string                 `json:"stages_skipped,omitempty"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
}

type Result struct {
	Summary    string                  `json:"summary"`
	Seed       Seed                    `json:"seed"`
	Abstract   abstract.VisualAbstract `json:"abstract"`
	Priorities priority.Split          `json:"priorities"`
	Metadata   Metadata                `json:"metadata"`
}

type Pipeline struct {
	summarizer Summarizer
	refiner    llm.Completer
	logger     logrus.FieldLogger
}

// NewPipeline wires the stages. A nil refiner makes the seed the final abstract.
func NewPipeline(summarizer Summarizer, refiner llm.Completer, logger logrus.FieldLogger) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{summarizer: summarizer, refiner: refiner, logger: logger}
}

func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	return p.RunWithProgress(ctx, req, nil)
}

func (p *Pipeline) RunWithProgress(ctx context.Context, req Request, progress StageProgressFn) (Result, error) {
	res := Result{Metadata: Metadata{StartedAt: time.Now(), StageDurations: map[string]time.Duration{}}}

	if req.Priorities == (priority.Split{}) {
		req.Priorities = priority.Default()
	}
	if err := req.Priorities.Validate(); err != nil {
		return Result{}, &StageError{Stage: StageValidate, Err: err}
	}
	res.Priorities = req.Priorities

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run")
	var runErr error
	defer func() { telemetry.EndSpan(span, runErr) }()

	res.Summary = strings.TrimSpace(req.Summary)
	if res.Summary != "" {
		res.Metadata.StagesSkipped = append(res.Metadata.StagesSkipped, StageSummarize)
	} else {
		runErr = p.stage(ctx, &res, StageSummarize, "Summarizing paper with the document assistant...", progress, func(ctx context.Context) error {
			if p.summarizer == nil {
				return errors.New("no summarizer configured")
			}
			text, err := p.summarizer.Run(ctx, req.Document)
			if err != nil {
				return err
			}
			res.Summary = strings.TrimSpace(text)
			return nil
		})
		if runErr != nil {
			return Result{}, runErr
		}
	}

	runErr = p.stage(ctx, &res, StageSeed, "Extracting structure from summary...", progress, func(context.Context) error {
		processed := extract.Extract(res.Summary)
		res.Seed = Seed{Processed: processed, Abstract: extract.Seed(processed)}
		return nil
	})
	if runErr != nil {
		return Result{}, runErr
	}

	if p.refiner == nil {
		res.Abstract = res.Seed.Abstract
		res.Metadata.StagesSkipped = append(res.Metadata.StagesSkipped, StageRefine)
		return p.finalize(res), nil
	}
	runErr = p.stage(ctx, &res, StageRefine, "Refining visual abstract...", progress, func(ctx context.Context) error {
		v, err := Refine(ctx, p.refiner, RefineRequest{Summary: res.Summary, Seed: res.Seed, Priorities: res.Priorities})
		if err != nil {
			return err
		}
		res.Abstract = v
		return nil
	})
	if runErr != nil {
		return Result{}, runErr
	}
	return p.finalize(res), nil
}

func (p *Pipeline) stage(ctx context.Context, res *Result, name, message string, progress StageProgressFn, fn func(context.Context) error) error {
	emit(progress, name, message)
	ctx, span := telemetry.StartSpan(ctx, "pipeline."+name, "stage", name)
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	telemetry.EndSpan(span, err)

	log := p.logger.WithFields(logrus.Fields{"stage": name, "elapsed": elapsed.Round(time.Millisecond)})
	if err != nil {
		log.WithError(err).Warn("pipeline stage failed")
		return &StageError{Stage: name, Err: err}
	}
	log.Debug("pipeline stage complete")
	res.Metadata.StageDurations[name] = elapsed
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, name)
	emit(progress, name, fmt.Sprintf("%s complete in %s", name, elapsed.Round(time.Millisecond)))
	return nil
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

func (p *Pipeline) finalize(res Result) Result {
	res.Metadata.CompletedAt = time.Now()
	return res
}

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

// UserMessage turns a pipeline error into text safe to show an end user.
func UserMessage(err error) string {
	var rf *assistant.RunFailedError
	var fe *abstract.FormatError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, assistant.ErrNotPDF):
		return assistant.ErrNotPDF.Error()
	case errors.Is(err, assistant.ErrRunTimeout):
		return "The document assistant took too long to respond. Please try again."
	case errors.As(err, &rf):
		return "The document assistant could not process this paper."
	case errors.Is(err, abstract.ErrNoJSONObject), errors.As(err, &fe):
		return "The model returned an abstract in an unexpected format. Please try again."
	case errors.Is(err, context.Canceled):
		return "Processing was cancelled."
	}
	return fmt.Sprintf("Processing failed during %s.", StageNameFromError(err))
}
