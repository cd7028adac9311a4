package assistant

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"google.golang.org/genai"
)

// SummaryInstruction asks for labelled sections so the local extractor can
// find them again.
const SummaryInstruction = `You are a scientific editor. Read the attached research paper and write a plain-text summary using exactly these labelled sections, each on its own line:
Title: <the paper title>
Study type: <the study design, e.g. Randomized Controlled Trial>
Methods: <3-6 sentences describing how the study was done>
Results: <3-6 sentences with the main quantitative findings, keeping numbers and units>
Conclusion: <1-2 sentences>
Do not use markdown tables or bullet symbols.`

const DefaultGeminiModel = "gemini-2.5-flash"

type geminiFiles interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend treats a File API upload as the run: the file is processed
// asynchronously, and generation runs once it is active.
type GeminiBackend struct {
	files       geminiFiles
	models      geminiModels
	model       string
	instruction string
}

func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("GEMINI_API_KEY not configured")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return newGeminiBackend(c.Files, c.Models, model), nil
}

func newGeminiBackend(files geminiFiles, models geminiModels, model string) *GeminiBackend {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiBackend{files: files, models: models, model: model, instruction: SummaryInstruction}
}

func (g *GeminiBackend) Submit(ctx context.Context, doc Document) (Run, error) {
	f, err := g.files.Upload(ctx, bytes.NewReader(doc.Data), &genai.UploadFileConfig{
		MIMEType:    doc.MIMEType,
		DisplayName: doc.Name,
	})
	if err != nil {
		return Run{}, err
	}
	return runFromFile(f, doc.MIMEType), nil
}

func (g *GeminiBackend) Poll(ctx context.Context, run Run) (Run, error) {
	f, err := g.files.Get(ctx, run.ID, nil)
	if err != nil {
		return run, err
	}
	return runFromFile(f, run.MIMEType), nil
}

func (g *GeminiBackend) Retrieve(ctx context.Context, run Run) ([]Message, error) {
	temperature := float32(0.2)
	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromURI(run.URI, run.MIMEType),
			genai.NewPartFromText(g.instruction),
		},
	}}, &genai.GenerateContentConfig{Temperature: &temperature})
	if err != nil {
		return nil, err
	}
	var msgs []Message
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		m := Message{Role: RoleAssistant}
		if cand.Content.Role != "" && cand.Content.Role != genai.RoleModel {
			m.Role = cand.Content.Role
		}
		for _, p := range cand.Content.Parts {
			if p == nil || p.Thought || p.Text == "" {
				continue
			}
			m.Segments = append(m.Segments, Segment{Type: SegmentText, Text: p.Text})
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (g *GeminiBackend) Release(ctx context.Context, run Run) error {
	_, err := g.files.Delete(ctx, run.ID, nil)
	return err
}

func runFromFile(f *genai.File, mimeType string) Run {
	run := Run{ID: f.Name, URI: f.URI, MIMEType: f.MIMEType}
	if run.MIMEType == "" {
		run.MIMEType = mimeType
	}
	switch f.State {
	case genai.FileStateActive:
		run.Status = StatusCompleted
	case genai.FileStateFailed:
		run.Status = StatusFailed
		if f.Error != nil {
			run.Reason = f.Error.Message
		}
	default:
		run.Status = StatusInProgress
	}
	return run
}
