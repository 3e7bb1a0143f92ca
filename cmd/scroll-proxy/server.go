package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/eve-esi-scroll/internal/config"
	"github.com/Sternrassler/eve-esi-scroll/pkg/httpsource"
	"github.com/Sternrassler/eve-esi-scroll/pkg/metrics"
	"github.com/Sternrassler/eve-esi-scroll/pkg/persist"
	"github.com/Sternrassler/eve-esi-scroll/pkg/scroll"
)

// Item is kept as raw JSON; the proxy never interprets upstream items.
type Item = json.RawMessage

// server exposes one scroll.Machine per session over HTTP.
type server struct {
	cfg    *config.Config
	client *httpsource.Client
	store  *persist.Store[Item] // nil without Redis
	logger zerolog.Logger
	newID  func() string

	mu       sync.Mutex
	sessions map[string]*scroll.Machine[Item]
}

func newServer(cfg *config.Config, client *httpsource.Client, store *persist.Store[Item], logger zerolog.Logger) *server {
	return &server{
		cfg:      cfg,
		client:   client,
		store:    store,
		logger:   logger,
		newID:    uuid.NewString,
		sessions: make(map[string]*scroll.Machine[Item]),
	}
}

// sessionResponse is the JSON body returned for every session request.
type sessionResponse struct {
	ID string `json:"id"`
	scroll.Snapshot[Item]
	ThresholdFraction float64 `json:"threshold_fraction"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /sessions", s.handleCreate)
	mux.HandleFunc("GET /sessions/{id}", s.handleGet)
	mux.HandleFunc("POST /sessions/{id}/{op}", s.handleOperation)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDelete)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// source builds a fresh source per machine since page sources track X-Pages.
func (s *server) source() scroll.Source[Item] {
	up := s.cfg.Upstream
	if up.Mode == string(scroll.ModeCursor) {
		return httpsource.CursorSource[Item](s.client, up.Endpoint, httpsource.CursorConfig{})
	}
	firstPage := up.FirstPage
	return httpsource.PageSource[Item](s.client, up.Endpoint, httpsource.PageConfig{FirstPage: &firstPage})
}

func (s *server) newMachine(id string) (*scroll.Machine[Item], error) {
	logger := s.logger.With().Str("session", id).Logger()
	return scroll.New(scroll.Config[Item]{
		Source:    s.source(),
		PageSize:  s.cfg.Scroll.PageSize,
		Threshold: s.cfg.Scroll.Threshold,
		AutoLoad:  s.cfg.Scroll.AutoLoad,
		Logger:    &logger,
	})
}

// opContext detaches operations from the client connection so a hung-up
// caller does not leave the session in a failed state.
func (s *server) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.cfg.Upstream.Timeout * time.Duration(s.cfg.Upstream.MaxRetries+1)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := s.newID()
	m, err := s.newMachine(id)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.mu.Lock()
	s.sessions[id] = m
	s.mu.Unlock()

	ctx, cancel := s.opContext(r)
	defer cancel()
	m.Mount(ctx)

	s.logger.Info().Str("session", id).Msg("Session created")
	s.persist(ctx, id, m)
	s.writeSession(w, http.StatusCreated, id, m)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := s.lookup(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, id, err)
		return
	}
	if s.store != nil {
		if err := s.store.Touch(r.Context(), id); err != nil && !errors.Is(err, persist.ErrNotFound) {
			s.logger.Warn().Err(err).Str("session", id).Msg("Failed to extend snapshot TTL")
		}
	}
	s.writeSession(w, http.StatusOK, id, m)
}

func (s *server) handleOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	op := r.PathValue("op")

	m, err := s.lookup(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, id, err)
		return
	}

	ctx, cancel := s.opContext(r)
	defer cancel()

	switch op {
	case "load":
		m.LoadInitial(ctx)
	case "more":
		m.LoadMore(ctx)
	case "refresh":
		m.Refresh(ctx)
	case "reset":
		m.Reset()
	case "retry":
		m.Retry(ctx)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown operation %q", op))
		return
	}

	s.persist(ctx, id, m)
	s.writeSession(w, http.StatusOK, id, m)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	m, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		m.Close()
	}

	stored := false
	if s.store != nil {
		if _, err := s.store.LoadEntry(r.Context(), id); err == nil {
			stored = true
		}
		if err := s.store.Delete(r.Context(), id); err != nil {
			s.logger.Warn().Err(err).Str("session", id).Msg("Failed to delete snapshot")
		}
	}

	if !ok && !stored {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	s.logger.Info().Str("session", id).Msg("Session deleted")
	w.WriteHeader(http.StatusNoContent)
}

var errSessionNotFound = errors.New("session not found")

// lookup returns the live machine for id, restoring it from Redis when this
// process has not seen it.
func (s *server) lookup(ctx context.Context, id string) (*scroll.Machine[Item], error) {
	s.mu.Lock()
	m, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		return m, nil
	}
	if s.store == nil {
		return nil, errSessionNotFound
	}

	entry, err := s.store.LoadEntry(ctx, id)
	if errors.Is(err, persist.ErrNotFound) || errors.Is(err, persist.ErrInvalidKey) {
		return nil, errSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	m, err = s.newMachine(id)
	if err != nil {
		return nil, err
	}
	if err := m.Restore(entry.Snapshot); err != nil {
		m.Close()
		return nil, fmt.Errorf("restore session %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		// Lost a race with a concurrent restore.
		m.Close()
		return existing, nil
	}
	s.sessions[id] = m
	s.logger.Info().
		Str("session", id).
		Int("items", len(entry.Snapshot.Items)).
		Dur("age", entry.Age()).
		Msg("Session restored from Redis")
	return m, nil
}

func (s *server) persist(ctx context.Context, id string, m *scroll.Machine[Item]) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, id, m.Snapshot()); err != nil {
		s.logger.Warn().Err(err).Str("session", id).Msg("Failed to persist snapshot")
	}
}

// closeAll disposes every live machine.
func (s *server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.sessions {
		m.Close()
		delete(s.sessions, id)
	}
}

func (s *server) writeSession(w http.ResponseWriter, status int, id string, m *scroll.Machine[Item]) {
	writeJSON(w, status, sessionResponse{
		ID:                id,
		Snapshot:          m.Snapshot(),
		ThresholdFraction: m.ThresholdFraction(),
	})
}

func (s *server) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, errSessionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.logger.Error().Err(err).Str("session", id).Msg("Session lookup failed")
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
