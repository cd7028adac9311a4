package assistant

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	statuses  []Status
	reason    string
	msgs      []Message
	submitErr error
	polls     int
	released  []string
}

func (f *fakeBackend) Submit(context.Context, Document) (Run, error) {
	if f.submitErr != nil {
		return Run{}, f.submitErr
	}
	return Run{ID: "run-1", Status: StatusQueued}, nil
}

func (f *fakeBackend) Poll(_ context.Context, run Run) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statuses) == 0 {
		run.Status = StatusInProgress
		return run, nil
	}
	run.Status = f.statuses[0]
	f.statuses = f.statuses[1:]
	if run.Status == StatusFailed {
		run.Reason = f.reason
	}
	return run, nil
}

func (f *fakeBackend) Retrieve(context.Context, Run) ([]Message, error) {
	return f.msgs, nil
}

func (f *fakeBackend) Release(_ context.Context, run Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, run.ID)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func pdf() Document {
	return Document{Name: "paper.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.7")}
}

func TestRunnerReturnsFirstAssistantMessage(t *testing.T) {
	b := &fakeBackend{
		statuses: []Status{StatusInProgress, StatusCompleted},
		msgs: []Message{
			{Role: RoleUser, Segments: []Segment{{Type: SegmentText, Text: "ignored"}}},
			{Role: RoleAssistant, Segments: []Segment{
				{Type: SegmentText, Text: "Title: A. "},
				{Type: "image", Text: "skip"},
				{Type: SegmentText, Text: "Results: B."},
			}},
			{Role: RoleAssistant, Segments: []Segment{{Type: SegmentText, Text: "second"}}},
		},
	}
	r := NewRunner(b, time.Millisecond, time.Second, quietLogger())
	text, err := r.Run(context.Background(), pdf())
	require.NoError(t, err)
	assert.Equal(t, "Title: A. Results: B.", text)
	assert.Equal(t, 2, b.polls)
	assert.Equal(t, []string{"run-1"}, b.released)
}

func TestRunnerFailsFastOnFailedStatus(t *testing.T) {
	b := &fakeBackend{statuses: []Status{StatusFailed, StatusCompleted}, reason: "unsupported file"}
	r := NewRunner(b, time.Millisecond, time.Second, quietLogger())
	_, err := r.Run(context.Background(), pdf())

	var rf *RunFailedError
	require.True(t, errors.As(err, &rf), "expected RunFailedError, got %v", err)
	assert.Equal(t, StatusFailed, rf.Status)
	assert.Equal(t, "unsupported file", rf.Reason)
	assert.Equal(t, 1, b.polls)
	assert.Equal(t, []string{"run-1"}, b.released)
}

func TestRunnerTimesOut(t *testing.T) {
	b := &fakeBackend{}
	r := NewRunner(b, time.Millisecond, 20*time.Millisecond, quietLogger())
	_, err := r.Run(context.Background(), pdf())
	require.ErrorIs(t, err, ErrRunTimeout)
	assert.Equal(t, []string{"run-1"}, b.released)
}

func TestRunnerHonoursCancellation(t *testing.T) {
	b := &fakeBackend{}
	r := NewRunner(b, time.Millisecond, time.Minute, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := r.Run(ctx, pdf())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunnerRejectsNonPDF(t *testing.T) {
	b := &fakeBackend{}
	r := NewRunner(b, time.Millisecond, time.Second, quietLogger())
	_, err := r.Run(context.Background(), Document{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("x")})
	require.ErrorIs(t, err, ErrNotPDF)
	assert.Empty(t, b.released)
}

func TestRunnerSubmitError(t *testing.T) {
	b := &fakeBackend{submitErr: errors.New("quota exceeded")}
	r := NewRunner(b, time.Millisecond, time.Second, quietLogger())
	_, err := r.Run(context.Background(), pdf())
	require.ErrorContains(t, err, "quota exceeded")
	assert.Empty(t, b.released)
}

func TestRunnerNoAssistantText(t *testing.T) {
	b := &fakeBackend{statuses: []Status{StatusCompleted}, msgs: []Message{{Role: RoleUser}}}
	r := NewRunner(b, time.Millisecond, time.Second, quietLogger())
	_, err := r.Run(context.Background(), pdf())
	require.ErrorIs(t, err, ErrNoAssistantMessage)
}

func TestValidateDocument(t *testing.T) {
	assert.NoError(t, ValidateDocument(Document{MIMEType: "application/pdf; charset=binary", Data: []byte("x")}))
	assert.ErrorIs(t, ValidateDocument(Document{MIMEType: "application/PDF", Data: nil}), ErrEmptyDocument)
	assert.ErrorIs(t, ValidateDocument(Document{MIMEType: "", Data: []byte("x")}), ErrNotPDF)
	assert.ErrorIs(t, ValidateDocument(Document{MIMEType: "image/png", Data: []byte("x")}), ErrNotPDF)
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusExpired} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []Status{StatusQueued, StatusInProgress, Status("")} {
		assert.False(t, s.Terminal(), s)
	}
}
