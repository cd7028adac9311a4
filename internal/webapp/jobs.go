package webapp

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/visual-abstract/internal/pipeline"
	"github.com/joelkehle/visual-abstract/internal/priority"
)

type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusSummarizing JobStatus = "summarizing"
	StatusSeeding     JobStatus = "seeding"
	StatusRefining    JobStatus = "refining"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

var stageStatus = map[string]JobStatus{
	pipeline.StageSummarize: StatusSummarizing,
	pipeline.StageSeed:      StatusSeeding,
	pipeline.StageRefine:    StatusRefining,
}

// Job is one upload. Result is set only once Status is completed; a failed
// job carries only its user-facing Error.
type Job struct {
	ID         string           `json:"id"`
	Status     JobStatus        `json:"status"`
	Stage      string           `json:"stage,omitempty"`
	Message    string           `json:"message,omitempty"`
	Error      string           `json:"error,omitempty"`
	FileName   string           `json:"file_name"`
	Priorities priority.Split   `json:"priorities"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Result     *pipeline.Result `json:"-"`
}

func (j Job) Ready() bool { return j.Status == StatusCompleted && j.Result != nil }

// JobStore keeps jobs in memory only; nothing survives a restart.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job), now: time.Now}
}

func (s *JobStore) Create(fileName string, p priority.Split) Job {
	now := s.now()
	job := &Job{
		ID:         uuid.NewString(),
		Status:     StatusQueued,
		FileName:   fileName,
		Priorities: p,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return *job
}

// Get returns a copy of the job.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Progress records the running stage. Jobs already finished are left alone.
func (s *JobStore) Progress(id, stage, message string) {
	s.update(id, func(j *Job) {
		if j.Status == StatusCompleted || j.Status == StatusFailed {
			return
		}
		if st, ok := stageStatus[stage]; ok {
			j.Status = st
		}
		j.Stage = stage
		j.Message = message
	})
}

func (s *JobStore) Complete(id string, res pipeline.Result) {
	s.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Stage = ""
		j.Message = ""
		j.Result = &res
	})
}

func (s *JobStore) Fail(id, stage, reason string) {
	s.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Stage = stage
		j.Message = ""
		j.Error = reason
		j.Result = nil
	})
}

func (s *JobStore) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = s.now()
	}
}

// Prune drops jobs last updated more than ttl ago and reports how many went.
func (s *JobStore) Prune(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
