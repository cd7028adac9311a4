package assistant

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeFiles struct {
	uploaded []byte
	cfg      *genai.UploadFileConfig
	states   []genai.FileState
	deleted  []string
}

func (f *fakeFiles) Upload(_ context.Context, r io.Reader, cfg *genai.UploadFileConfig) (*genai.File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.uploaded = b
	f.cfg = cfg
	return &genai.File{Name: "files/abc", URI: "https://files/abc", State: genai.FileStateProcessing}, nil
}

func (f *fakeFiles) Get(_ context.Context, name string, _ *genai.GetFileConfig) (*genai.File, error) {
	state := genai.FileStateActive
	if len(f.states) > 0 {
		state, f.states = f.states[0], f.states[1:]
	}
	file := &genai.File{Name: name, URI: "https://files/abc", MIMEType: "application/pdf", State: state}
	if state == genai.FileStateFailed {
		file.Error = &genai.FileStatus{Message: "corrupt pdf"}
	}
	return file, nil
}

func (f *fakeFiles) Delete(_ context.Context, name string, _ *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error) {
	f.deleted = append(f.deleted, name)
	return &genai.DeleteFileResponse{}, nil
}

type fakeModels struct {
	model    string
	contents []*genai.Content
	resp     *genai.GenerateContentResponse
}

func (m *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.model = model
	m.contents = contents
	return m.resp, nil
}

func TestGeminiBackendEndToEnd(t *testing.T) {
	files := &fakeFiles{states: []genai.FileState{genai.FileStateProcessing, genai.FileStateActive}}
	models := &fakeModels{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "Title: Study. "},
			{Text: "Results: 45% improvement."},
		}},
	}}}}
	backend := newGeminiBackend(files, models, "")
	r := NewRunner(backend, time.Millisecond, time.Second, quietLogger())

	text, err := r.Run(context.Background(), pdf())
	require.NoError(t, err)
	assert.Equal(t, "Title: Study. Results: 45% improvement.", text)
	assert.Equal(t, []byte("%PDF-1.7"), files.uploaded)
	assert.Equal(t, "application/pdf", files.cfg.MIMEType)
	assert.Equal(t, DefaultGeminiModel, models.model)
	require.Len(t, models.contents, 1)
	require.Len(t, models.contents[0].Parts, 2)
	require.NotNil(t, models.contents[0].Parts[0].FileData)
	assert.Equal(t, "https://files/abc", models.contents[0].Parts[0].FileData.FileURI)
	assert.Equal(t, []string{"files/abc"}, files.deleted)
}

func TestGeminiBackendFailedFile(t *testing.T) {
	files := &fakeFiles{states: []genai.FileState{genai.FileStateFailed}}
	backend := newGeminiBackend(files, &fakeModels{}, "gemini-test")
	r := NewRunner(backend, time.Millisecond, time.Second, quietLogger())

	_, err := r.Run(context.Background(), pdf())
	var rf *RunFailedError
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, "corrupt pdf", rf.Reason)
	assert.Equal(t, []string{"files/abc"}, files.deleted)
}

func TestNewGeminiBackendRequiresKey(t *testing.T) {
	_, err := NewGeminiBackend(context.Background(), "", "")
	require.Error(t, err)
}
