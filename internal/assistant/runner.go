// Package assistant drives a hosted document assistant: submit a document,
// poll the run until it settles, then read back the assistant's reply.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

const (
	RoleAssistant = "assistant"
	RoleUser      = "user"

	SegmentText = "text"

	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 5 * time.Minute
)

var (
	ErrNotPDF             = errors.New("please upload a PDF file")
	ErrEmptyDocument      = errors.New("document is empty")
	ErrRunTimeout         = errors.New("assistant run timed out")
	ErrNoAssistantMessage = errors.New("assistant returned no text")
)

type RunFailedError struct {
	RunID  string
	Status Status
	Reason string
}

func (e *RunFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("assistant run %s %s: %s", e.RunID, e.Status, e.Reason)
	}
	return fmt.Sprintf("assistant run %s %s", e.RunID, e.Status)
}

type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Run is a backend's view of one submitted document.
type Run struct {
	ID       string
	Status   Status
	Reason   string
	URI      string
	MIMEType string
}

type Segment struct {
	Type string
	Text string
}

type Message struct {
	Role     string
	Segments []Segment
}

type Backend interface {
	Submit(ctx context.Context, doc Document) (Run, error)
	Poll(ctx context.Context, run Run) (Run, error)
	Retrieve(ctx context.Context, run Run) ([]Message, error)
	Release(ctx context.Context, run Run) error
}

// ValidateDocument checks the declared MIME type only; content is not inspected.
func ValidateDocument(doc Document) error {
	mt, _, err := mime.ParseMediaType(doc.MIMEType)
	if err != nil || !strings.EqualFold(mt, "application/pdf") {
		return ErrNotPDF
	}
	if len(doc.Data) == 0 {
		return ErrEmptyDocument
	}
	return nil
}

type Runner struct {
	backend  Backend
	interval time.Duration
	timeout  time.Duration
	logger   logrus.FieldLogger
}

func NewRunner(backend Backend, interval, timeout time.Duration, logger logrus.FieldLogger) *Runner {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{backend: backend, interval: interval, timeout: timeout, logger: logger}
}

// Run submits doc and returns the text of the first assistant message once
// the run completes. Backend resources are released on every path.
func (r *Runner) Run(ctx context.Context, doc Document) (string, error) {
	if err := ValidateDocument(doc); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	run, err := r.backend.Submit(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return "", r.contextError(ctx, run)
		}
		return "", fmt.Errorf("submit document: %w", err)
	}
	defer r.release(run)
	log := r.logger.WithField("run_id", run.ID)
	log.WithField("document", doc.Name).Debug("assistant run submitted")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for !run.Status.Terminal() {
		select {
		case <-ctx.Done():
			return "", r.contextError(ctx, run)
		case <-ticker.C:
		}
		next, err := r.backend.Poll(ctx, run)
		if err != nil {
			if ctx.Err() != nil {
				return "", r.contextError(ctx, run)
			}
			return "", fmt.Errorf("poll run %s: %w", run.ID, err)
		}
		run = next
		log.WithField("status", run.Status).Debug("assistant run polled")
	}

	if run.Status != StatusCompleted {
		return "", &RunFailedError{RunID: run.ID, Status: run.Status, Reason: run.Reason}
	}
	msgs, err := r.backend.Retrieve(ctx, run)
	if err != nil {
		if ctx.Err() != nil {
			return "", r.contextError(ctx, run)
		}
		return "", fmt.Errorf("retrieve run %s: %w", run.ID, err)
	}
	text, err := FirstAssistantText(msgs)
	if err != nil {
		return "", err
	}
	log.WithField("elapsed", time.Since(started).Round(time.Millisecond)).Info("assistant run completed")
	return text, nil
}

func (r *Runner) contextError(ctx context.Context, run Run) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: run %q after %s", ErrRunTimeout, run.ID, r.timeout)
	}
	return ctx.Err()
}

func (r *Runner) release(run Run) {
	if run.ID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.backend.Release(ctx, run); err != nil {
		r.logger.WithError(err).WithField("run_id", run.ID).Warn("release assistant run")
	}
}

// FirstAssistantText concatenates the text segments of the first message
// authored by the assistant.
func FirstAssistantText(msgs []Message) (string, error) {
	for _, m := range msgs {
		if m.Role != RoleAssistant {
			continue
		}
		var sb strings.Builder
		for _, s := range m.Segments {
			if s.Type == SegmentText {
				sb.WriteString(s.Text)
			}
		}
		if strings.TrimSpace(sb.String()) == "" {
			return "", ErrNoAssistantMessage
		}
		return sb.String(), nil
	}
	return "", ErrNoAssistantMessage
}
