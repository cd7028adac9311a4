// Package webapp serves the upload page and the JSON API for visual abstract
// jobs.
package webapp

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/joelkehle/visual-abstract/internal/assistant"
	"github.com/joelkehle/visual-abstract/internal/extract"
	"github.com/joelkehle/visual-abstract/internal/pipeline"
	"github.com/joelkehle/visual-abstract/internal/priority"
	"github.com/joelkehle/visual-abstract/internal/render"
)

//go:embed web/index.html
var webFS embed.FS

const (
	defaultMaxUploadBytes = 20 << 20
	defaultJobTimeout     = 10 * time.Minute
	maxJSONBody           = 1 << 20
)

// Runner executes one job. *pipeline.Pipeline is one.
type Runner interface {
	RunWithProgress(ctx context.Context, req pipeline.Request, progress pipeline.StageProgressFn) (pipeline.Result, error)
}

type Options struct {
	MaxUploadBytes int64
	JobTimeout     time.Duration
	// RatePerMinute caps accepted uploads. Zero disables the limit.
	RatePerMinute int
	RateBurst     int
	Logger        *logrus.Logger
	PDFRenderer   render.PDFRenderer
}

type Server struct {
	ctx     context.Context
	runner  Runner
	store   *JobStore
	opts    Options
	log     *logrus.Logger
	limiter *rate.Limiter
	router  *mux.Router
	wg      sync.WaitGroup
}

// NewServer builds the API. Background jobs derive their context from ctx, so
// cancelling it stops every running job.
func NewServer(ctx context.Context, runner Runner, store *JobStore, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if store == nil {
		store = NewJobStore()
	}
	s := &Server{ctx: ctx, runner: runner, store: store, opts: opts, log: opts.Logger}
	if opts.RatePerMinute > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), burst)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// API routes sit on the root router: a subrouter loses the 405 for a
	// method mismatch once a later route on another path fails to match.
	r.HandleFunc("/api/priorities/default", s.handleDefaultPriorities).Methods(http.MethodGet)
	r.HandleFunc("/api/priorities/normalize", s.handleNormalize).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/seed", s.handleSeed).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/abstracts", s.handleCreate).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/abstracts/{id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/abstracts/{id}/view", s.handleView).Methods(http.MethodGet)
	r.HandleFunc("/api/abstracts/{id}/pdf", s.handlePDF).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router = r
}

func (s *Server) Handler() http.Handler { return s.router }

// Wait blocks until every background job has finished.
func (s *Server) Wait() { s.wg.Wait() }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upload page unavailable")
		return
	}
	// Stale pages break against a newer API after deploys.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "jobs": s.store.Len()})
}

func (s *Server) handleDefaultPriorities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, priority.Default())
}

type normalizeRequest struct {
	Current priority.Split `json:"current"`
	Key     string         `json:"key"`
	Value   int            `json:"value"`
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key, err := priority.ParseKey(req.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	split, err := priority.Normalize(req.Current, key, req.Value)
	if errors.Is(err, priority.ErrZeroTotal) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, split)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	processed := extract.Extract(req.Text)
	writeJSON(w, http.StatusOK, pipeline.Seed{Processed: processed, Abstract: extract.Seed(processed)})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	return dec.Decode(v)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds the %d MB upload limit", s.opts.MaxUploadBytes>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	doc := assistant.Document{Name: header.Filename, MIMEType: uploadMIMEType(header.Header.Get("Content-Type"), header.Filename), Data: data}
	if err := assistant.ValidateDocument(doc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	split, err := formPriorities(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many uploads, please wait a minute and try again")
		return
	}

	job := s.store.Create(header.Filename, split)
	s.log.WithFields(logrus.Fields{"job_id": job.ID, "file": header.Filename, "bytes": len(data), "priorities": split.String()}).Info("job accepted")

	s.wg.Add(1)
	go s.process(job.ID, pipeline.Request{Document: doc, Priorities: split})

	writeJSON(w, http.StatusAccepted, map[string]any{"id": job.ID, "status": job.Status})
}

func uploadMIMEType(declared, filename string) string {
	if strings.TrimSpace(declared) != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return declared
}

// formPriorities reads the optional split. Sending none means the default;
// sending any means all three must form a valid split.
func formPriorities(r *http.Request) (priority.Split, error) {
	raw := map[priority.Key]string{}
	for _, k := range priority.Keys {
		if v := strings.TrimSpace(r.FormValue(string(k))); v != "" {
			raw[k] = v
		}
	}
	if len(raw) == 0 {
		return priority.Default(), nil
	}
	var split priority.Split
	for _, k := range priority.Keys {
		n, err := strconv.Atoi(raw[k])
		if err != nil {
			return priority.Split{}, fmt.Errorf("%s priority must be an integer", k)
		}
		split = split.With(k, n)
	}
	if err := split.Validate(); err != nil {
		return priority.Split{}, err
	}
	return split, nil
}

func (s *Server) process(id string, req pipeline.Request) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.JobTimeout)
	defer cancel()

	log := s.log.WithField("job_id", id)
	res, err := s.runner.RunWithProgress(ctx, req, func(stage, message string) {
		s.store.Progress(id, stage, message)
	})
	if err != nil {
		stage := pipeline.StageNameFromError(err)
		log.WithError(err).WithField("stage", stage).Warn("job failed")
		s.store.Fail(id, stage, pipeline.UserMessage(err))
		return
	}
	s.store.Complete(id, res)
	log.WithField("stages", strings.Join(res.Metadata.StagesExecuted, ",")).Info("job completed")
}

type statusResponse struct {
	Job
	Summary  string             `json:"summary,omitempty"`
	Abstract any                `json:"abstract,omitempty"`
	Metadata *pipeline.Metadata `json:"metadata,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	resp := statusResponse{Job: job}
	if job.Ready() {
		resp.Summary = job.Result.Summary
		resp.Abstract = job.Result.Abstract
		resp.Metadata = &job.Result.Metadata
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readyJob(w http.ResponseWriter, r *http.Request) (Job, bool) {
	job, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return Job{}, false
	}
	if !job.Ready() {
		writeError(w, http.StatusNotFound, "abstract not ready")
		return Job{}, false
	}
	return job, true
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	job, ok := s.readyJob(w, r)
	if !ok {
		return
	}
	page, err := render.HTML(job.Result.Abstract, job.Result.Summary)
	if err != nil {
		s.log.WithError(err).WithField("job_id", job.ID).Error("render html failed")
		writeError(w, http.StatusInternalServerError, "failed to render abstract")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, page)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	if s.opts.PDFRenderer == nil {
		writeError(w, http.StatusServiceUnavailable, "pdf renderer unavailable")
		return
	}
	job, ok := s.readyJob(w, r)
	if !ok {
		return
	}
	page, err := render.HTML(job.Result.Abstract, job.Result.Summary)
	if err != nil {
		s.log.WithError(err).WithField("job_id", job.ID).Error("render html failed")
		writeError(w, http.StatusInternalServerError, "failed to render abstract")
		return
	}
	pdf, err := s.opts.PDFRenderer.Render(r.Context(), page)
	if err != nil {
		s.log.WithError(err).WithField("job_id", job.ID).Error("render pdf failed")
		writeError(w, http.StatusInternalServerError, "failed to render pdf")
		return
	}
	name := strings.TrimSuffix(job.FileName, filepath.Ext(job.FileName))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sanitizeFilename(name)+"-visual-abstract.pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "paper"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, v)
}

// Prune runs until ctx is done, dropping jobs older than ttl every interval.
func (s *Server) Prune(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.store.Prune(ttl); n > 0 {
				s.log.WithField("pruned", n).Debug("expired jobs pruned")
			}
		}
	}
}
