package neetpipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/neetextract/horosafe"
	"github.com/hazyhaar/neetextract/idgen"
	"github.com/hazyhaar/neetextract/kit"
	"github.com/hazyhaar/neetextract/neetpipe/internal/jobs"
	"github.com/hazyhaar/neetextract/neetpipe/internal/store"
)

// Handler returns the HTTP API of the service on a fresh router.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP registers the /v1 endpoints on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/v1/health", s.handleHealth)
	r.Post("/v1/process", s.handleProcess)
	r.Post("/v1/analyze", s.handleAnalyze)

	r.Post("/v1/jobs", s.handleSubmit)
	r.Get("/v1/jobs/{id}", s.handleJobStatus)

	r.Get("/v1/runs/{id}", s.handleRun)
	r.Post("/v1/runs/{id}/questions", s.handleCreateQuestion)

	r.Get("/v1/questions", s.handleQuestions)
	r.Patch("/v1/questions/{id}", s.handlePatchQuestion)
	r.Delete("/v1/questions/{id}", s.handleDeleteQuestion)
}

// requestLog tags the request context with an id (echoed in X-Request-Id)
// and logs each request once it completes.
func (s *Service) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = idgen.Request()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := kit.WithTransport(kit.WithRequestID(r.Context(), id), "http")

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.logger.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", id,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type pathReq struct {
	Path string `json:"path"`
}

// decodeBody reads a size-capped JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	data, err := horosafe.LimitedReadAll(r.Body, horosafe.MaxRequestBody)
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Service) decodePath(r *http.Request) (string, error) {
	var req pathReq
	if err := decodeBody(r, &req); err != nil {
		return "", err
	}
	if req.Path == "" {
		return "", errors.New("path is required")
	}
	return s.resolve(req.Path)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pendingJobs": n})
}

// POST /v1/process: synchronous extraction.
func (s *Service) handleProcess(w http.ResponseWriter, r *http.Request) {
	path, err := s.decodePath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := s.Process(r.Context(), path)
	if err != nil {
		s.logger.Error("neetpipe: process", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Document failures are results, not transport errors.
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	path, err := s.decodePath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := s.pipe.Analyze(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// POST /v1/jobs: asynchronous extraction.
func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	path, err := s.decodePath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	j, err := s.Submit(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+j.ID)
	writeJSON(w, http.StatusAccepted, j)
}

func (s *Service) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	j, err := s.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	out, err := s.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /v1/questions?run_id=&subject=&page=&min_confidence=&limit=&offset=
func (s *Service) handleQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		RunID:   q.Get("run_id"),
		Subject: Subject(q.Get("subject")),
		Page:    queryInt(r, "page", 0),
		Limit:   queryInt(r, "limit", 100),
		Offset:  queryInt(r, "offset", 0),
	}
	if v := q.Get("min_confidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("min_confidence: %w", err))
			return
		}
		f.MinConfidence = c
	}
	recs, err := s.store.GetQuestions(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": recs, "count": len(recs)})
}

func (s *Service) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	var q Question
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.CreateQuestion(r.Context(), runID, &q); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, store.Record{RunID: runID, Question: q})
}

// questionPatch holds the fields a reviewer may correct. Absent fields are
// left unchanged.
type questionPatch struct {
	QuestionText  *string           `json:"questionText"`
	Options       map[string]string `json:"options"`
	Subject       *Subject          `json:"subject"`
	Complexity    *Complexity       `json:"complexity"`
	HasMath       *bool             `json:"hasMath"`
	HasImage      *bool             `json:"hasImage"`
	CorrectAnswer *string           `json:"correctAnswer"`
	Explanation   *string           `json:"explanation"`
	Confidence    *float64          `json:"confidence"`
}

func (p *questionPatch) apply(q *Question) {
	if p.QuestionText != nil {
		q.QuestionText = *p.QuestionText
	}
	if p.Options != nil {
		q.Options = p.Options
	}
	if p.Subject != nil {
		q.Subject = *p.Subject
	}
	if p.Complexity != nil {
		q.Complexity = *p.Complexity
	}
	if p.HasMath != nil {
		q.HasMath = *p.HasMath
	}
	if p.HasImage != nil {
		q.HasImage = *p.HasImage
	}
	if p.CorrectAnswer != nil {
		q.CorrectAnswer = *p.CorrectAnswer
	}
	if p.Explanation != nil {
		q.Explanation = *p.Explanation
	}
	if p.Confidence != nil {
		q.Confidence = *p.Confidence
	}
}

// PATCH /v1/questions/{id}?run_id=
func (s *Service) handlePatchQuestion(w http.ResponseWriter, r *http.Request) {
	runID, id := r.URL.Query().Get("run_id"), chi.URLParam(r, "id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, errors.New("run_id is required"))
		return
	}
	var patch questionPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.store.GetQuestion(r.Context(), runID, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	patch.apply(&rec.Question)
	if err := s.store.UpdateQuestion(r.Context(), runID, &rec.Question); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DELETE /v1/questions/{id}?run_id=
func (s *Service) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, errors.New("run_id is required"))
		return
	}
	if err := s.store.DeleteQuestion(r.Context(), runID, chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeStoreError maps store and queue sentinels to status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
