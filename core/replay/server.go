// Package replay serves a scripted research pipeline over the same wire
// contract as the real backend. It backs local demos of the CLI and end to end
// tests of the session controller over both transports.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/cognito-session/core/transport"
	wstransport "github.com/koscakluka/cognito-session/core/transport/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	StartPath   = "/api/research/start"
	ApprovePath = "/api/research/approve"
	SocketPath  = "/api/research/ws"

	shutdownTimeout = 5 * time.Second
	// Clients reject plans locally, so abandoned threads are only dropped by
	// expiry.
	defaultPendingTTL = 30 * time.Minute
)

type Server struct {
	script    Script
	chunkSize int
	delay     time.Duration
	upgrader  websocket.Upgrader

	mu         sync.Mutex
	pending    map[string]pendingThread
	pendingTTL time.Duration
	now        func() time.Time

	handler http.Handler
}

// pendingThread is a run paused at the approval gate.
type pendingThread struct {
	query     string
	createdAt time.Time
}

type Option func(*Server)

func WithScript(script Script) Option {
	return func(s *Server) { s.script = script }
}

// WithChunkSize splits every response into writes of at most size bytes,
// regardless of line and character boundaries.
func WithChunkSize(size int) Option {
	return func(s *Server) { s.chunkSize = size }
}

// WithPendingTTL sets how long a thread waits at the approval gate before it
// is forgotten.
func WithPendingTTL(ttl time.Duration) Option {
	return func(s *Server) { s.pendingTTL = ttl }
}

// WithChunkDelay pauses between writes.
func WithChunkDelay(delay time.Duration) Option {
	return func(s *Server) { s.delay = delay }
}

func New(opts ...Option) *Server {
	s := &Server{
		script:     DefaultScript(),
		pending:    map[string]pendingThread{},
		pendingTTL: defaultPendingTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(recovery)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pending": s.Pending()})
	})
	r.Route("/api/research", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/approve", s.handleApprove)
		r.Get("/ws", s.handleSocket)
	})

	s.handler = otelhttp.NewHandler(r, "replay",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// Pending returns the number of threads waiting for approval.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	return len(s.pending)
}

func (s *Server) expireLocked() {
	if s.pendingTTL <= 0 {
		return
	}
	cutoff := s.now().Add(-s.pendingTTL)
	for id, thread := range s.pending {
		if thread.createdAt.Before(cutoff) {
			delete(s.pending, id)
			logger.Info("thread expired at approval gate", "thread_id", id)
		}
	}
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.handler}

	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	logger.Info("replay server listening", "addr", addr, "gated", s.script.Gated, "tokens", s.script.Tokens)

	select {
	case err := <-errs:
		return fmt.Errorf("error serving replay: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down replay server: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestError is answered with its status and a FastAPI style detail body.
type requestError struct {
	status int
	detail string
}

func (e *requestError) Error() string { return e.detail }

func badRequest(detail string) error {
	return &requestError{status: http.StatusBadRequest, detail: detail}
}

// dispatch returns the frames that answer message. A rejected approval
// returns no frames and no error.
func (s *Server) dispatch(ctx context.Context, message wstransport.RequestMessage) (frames []string, err error) {
	_, span := tracer.Start(ctx, "replay "+string(message.Action))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	switch message.Action {
	case transport.ActionStart:
		query := strings.TrimSpace(message.Query)
		if query == "" {
			return nil, badRequest("query is required")
		}
		threadID := uuid.NewString()
		span.SetAttributes(attribute.String("thread.id", threadID))
		if s.script.Gated {
			s.mu.Lock()
			s.expireLocked()
			s.pending[threadID] = pendingThread{query: query, createdAt: s.now()}
			s.mu.Unlock()
		}
		logger.Info("replaying planning", "thread_id", threadID, "gated", s.script.Gated)
		return s.script.planning(threadID, query)

	case transport.ActionApprove:
		if message.ThreadID == "" {
			return nil, badRequest("thread_id is required")
		}
		span.SetAttributes(attribute.String("thread.id", message.ThreadID), attribute.Bool("approved", message.Approved))

		s.mu.Lock()
		s.expireLocked()
		thread, ok := s.pending[message.ThreadID]
		delete(s.pending, message.ThreadID)
		s.mu.Unlock()
		if !ok {
			return nil, badRequest(pendingDetail)
		}
		if !message.Approved {
			logger.Info("thread cancelled", "thread_id", message.ThreadID)
			return nil, nil
		}
		logger.Info("replaying research", "thread_id", message.ThreadID, "waited", s.now().Sub(thread.createdAt))
		return s.script.research(thread.query)

	default:
		return nil, badRequest(fmt.Sprintf("unknown action %q", message.Action))
	}
}

type startBody struct {
	Query string `json:"query"`
}

type approveBody struct {
	ThreadID string `json:"thread_id"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.respond(w, r, wstransport.RequestMessage{Action: transport.ActionStart, Query: body.Query})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body approveBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.respond(w, r, wstransport.RequestMessage{
		Action:   transport.ActionApprove,
		ThreadID: body.ThreadID,
		Approved: body.Approved,
	})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, message wstransport.RequestMessage) {
	frames, err := s.dispatch(r.Context(), message)
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			writeError(w, reqErr.status, reqErr.detail)
			return
		}
		logger.Error("failed to build response", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if frames == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for _, chunk := range s.chunks(frames) {
		if _, err := io.WriteString(w, chunk); err != nil {
			logger.Debug("client went away", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if !s.pause(r.Context()) {
			return
		}
	}
}

// chunks cuts the joined frames into the configured write size.
func (s *Server) chunks(frames []string) []string {
	if s.chunkSize <= 0 {
		return frames
	}
	body := strings.Join(frames, "")
	chunks := make([]string, 0, len(body)/s.chunkSize+1)
	for len(body) > s.chunkSize {
		chunks = append(chunks, body[:s.chunkSize])
		body = body[s.chunkSize:]
	}
	if body != "" {
		chunks = append(chunks, body)
	}
	return chunks
}

func (s *Server) pause(ctx context.Context) bool {
	if s.delay <= 0 {
		return true
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
