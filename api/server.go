// Package api exposes the acquisition controls over HTTP: task submission,
// start/pause/resume/retry/stop, a server-sent event stream mirroring the
// scheduler's notifications, and the extraction-record catalog.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stocksentinel/acquire"
	"stocksentinel/store"
)

// subscriberBuffer bounds each SSE client's pending events; a stalled client
// loses events rather than stalling the fan-out loop.
const subscriberBuffer = 64

// Server wires the scheduler and catalog behind a chi router. Run must be
// started for control/start and the event stream to work.
type Server struct {
	sched  *acquire.Scheduler
	st     *store.Store // nil = cataloguing disabled
	logger *slog.Logger
	mux    *chi.Mux

	mu      sync.Mutex
	baseCtx context.Context
	subs    map[chan acquire.Event]struct{}
}

// New builds the Server and its routes.
func New(sched *acquire.Scheduler, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sched:   sched,
		st:      st,
		logger:  logger,
		baseCtx: context.Background(),
		subs:    make(map[chan acquire.Event]struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/tasks", s.handleListTasks)
	r.Post("/tasks", s.handleAddTasks)
	r.Get("/state", s.handleState)
	r.Post("/control/start", s.handleStart)
	r.Post("/control/pause", s.handlePause)
	r.Post("/control/resume", s.handleResume)
	r.Post("/control/retry", s.handleRetry)
	r.Post("/control/stop", s.handleStop)
	r.Get("/events", s.handleEvents)
	r.Get("/records", s.handleRecords)

	s.mux = r
	return s
}

// Handler returns the HTTP handler for mounting.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run is the single consumer of the scheduler's event stream, fanning events
// out to SSE subscribers. It blocks until ctx is done. The context also
// becomes the base for session opens triggered via control/start.
func (s *Server) Run(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.sched.Events():
			s.publish(e)
		}
	}
}

func (s *Server) publish(e acquire.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
			s.logger.Warn("api: slow event subscriber, dropping", "kind", e.Kind)
		}
	}
}

func (s *Server) subscribe() chan acquire.Event {
	ch := make(chan acquire.Event, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan acquire.Event) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

type addTasksRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleAddTasks(w http.ResponseWriter, r *http.Request) {
	var req addTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ids := s.sched.AddURLs(req.URLs)
	if len(ids) == 0 {
		http.Error(w, "no usable urls", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Tasks())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": s.sched.State().String()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	if err := s.sched.Start(ctx); err != nil {
		s.logger.Error("api: start failed", "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.sched.State().String()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.sched.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"state": s.sched.State().String()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.sched.ResumeRestart()
	writeJSON(w, http.StatusOK, map[string]string{"state": s.sched.State().String()})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := s.sched.RetryLast()
	if id == 0 {
		http.Error(w, "nothing captured yet", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"state": s.sched.State().String()})
}

// handleEvents streams scheduler events as SSE until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Error("api: marshal event", "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + string(e.Kind) + "\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type recordView struct {
	ID          int64     `json:"id"`
	SourceFile  string    `json:"source_file"`
	Site        *string   `json:"site"`
	Name        *string   `json:"name"`
	Stars       *float64  `json:"stars"`
	Perf4Weeks  *float64  `json:"perf_4_semaines"`
	PerfYTD     *float64  `json:"perf_depuis_1er_janvier"`
	Perf1Year   *float64  `json:"perf_1_an"`
	Perf3Years  *float64  `json:"perf_3_ans"`
	Error       string    `json:"error,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.st == nil {
		http.Error(w, "record catalog disabled", http.StatusNotFound)
		return
	}
	rows, err := s.st.List(r.Context())
	if err != nil {
		s.logger.Error("api: list records", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	views := make([]recordView, 0, len(rows))
	for _, row := range rows {
		views = append(views, recordView{
			ID:          row.ID,
			SourceFile:  row.SourceFile,
			Site:        row.Site,
			Name:        row.Name,
			Stars:       row.Stars,
			Perf4Weeks:  row.Perf4Weeks,
			PerfYTD:     row.PerfYTD,
			Perf1Year:   row.Perf1Year,
			Perf3Years:  row.Perf3Years,
			Error:       row.Error,
			ExtractedAt: row.ExtractedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
