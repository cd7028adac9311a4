package webapp

import (
	"testing"
	"time"

	"github.com/joelkehle/visual-abstract/internal/pipeline"
	"github.com/joelkehle/visual-abstract/internal/priority"
)

func TestJobStoreLifecycle(t *testing.T) {
	store := NewJobStore()
	job := store.Create("paper.pdf", priority.Default())
	if job.ID == "" || job.Status != StatusQueued {
		t.Fatalf("unexpected new job %+v", job)
	}

	store.Progress(job.ID, pipeline.StageRefine, "Refining")
	got, _ := store.Get(job.ID)
	if got.Status != StatusRefining || got.Message != "Refining" {
		t.Fatalf("unexpected progress %+v", got)
	}

	store.Complete(job.ID, pipeline.Result{Summary: "s"})
	got, _ = store.Get(job.ID)
	if !got.Ready() || got.Result.Summary != "s" {
		t.Fatalf("expected completed job, got %+v", got)
	}

	// Late progress callbacks must not reopen a finished job.
	store.Progress(job.ID, pipeline.StageSeed, "late")
	got, _ = store.Get(job.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("finished job changed status to %s", got.Status)
	}
}

func TestJobStoreFailDropsResult(t *testing.T) {
	store := NewJobStore()
	job := store.Create("paper.pdf", priority.Default())
	store.Complete(job.ID, pipeline.Result{})
	store.Fail(job.ID, pipeline.StageRefine, "boom")
	got, _ := store.Get(job.ID)
	if got.Status != StatusFailed || got.Error != "boom" || got.Result != nil || got.Ready() {
		t.Fatalf("unexpected failed job %+v", got)
	}
}

func TestJobStoreGetReturnsCopy(t *testing.T) {
	store := NewJobStore()
	job := store.Create("paper.pdf", priority.Default())
	got, _ := store.Get(job.ID)
	got.Status = StatusFailed
	again, _ := store.Get(job.ID)
	if again.Status != StatusQueued {
		t.Fatal("mutating a returned job must not touch the store")
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected missing job")
	}
}

func TestJobStorePrune(t *testing.T) {
	store := NewJobStore()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	old := store.Create("old.pdf", priority.Default())

	now = now.Add(2 * time.Hour)
	fresh := store.Create("fresh.pdf", priority.Default())

	if n := store.Prune(time.Hour); n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	if _, ok := store.Get(old.ID); ok {
		t.Fatal("old job should be pruned")
	}
	if _, ok := store.Get(fresh.ID); !ok {
		t.Fatal("fresh job should remain")
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 job, got %d", store.Len())
	}
}
