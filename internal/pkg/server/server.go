package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/bridge"
	"github.com/anicoll/arduino-bridge/internal/pkg/connection"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

type connectionService interface {
	Status() connection.Status
}

type bridgeService interface {
	Accessories() []bridge.AccessoryStatus
	Discover(ctx context.Context) error
}

type readingStore interface {
	GetReadings(ctx context.Context, propertyID string, from, to *time.Time) ([]model.Reading, error)
	GetLatestReadings(ctx context.Context) ([]model.Reading, error)
}

type server struct {
	conn      connectionService
	bridge    bridgeService
	store     readingStore
	logger    *zap.Logger
	metrics   http.Handler
	tokenHash string
}

type Option func(*server)

// RequireToken protects the /api routes with a bearer token matching hash.
func RequireToken(hash string) Option {
	return func(s *server) {
		s.tokenHash = hash
	}
}

// New builds the status API. store may be nil when reading history is disabled.
func New(conn connectionService, b bridgeService, store readingStore, opts ...Option) *server {
	s := &server{
		conn:    conn,
		bridge:  b,
		store:   store,
		logger:  zap.L(),
		metrics: promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics)

	r.Route("/api", func(r chi.Router) {
		if s.tokenHash != "" {
			r.Use(BearerAuth(s.tokenHash))
		}
		r.Get("/connection", s.handleConnection)
		r.Get("/accessories", s.handleAccessories)
		r.Post("/discover", s.handleDiscover)
		r.Get("/readings/latest", s.handleLatestReadings)
		r.Get("/properties/{property_id}/readings", s.handleReadings)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *server) handleConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.conn.Status())
}

func (s *server) handleAccessories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Accessories())
}

func (s *server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Discover(r.Context()); err != nil {
		s.logger.Error("discovery failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Accessories())
}

func (s *server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "reading history is disabled")
		return
	}
	readings, err := s.store.GetLatestReadings(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "reading history is disabled")
		return
	}
	propertyID := strings.TrimSpace(chi.URLParam(r, "property_id"))

	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}

	readings, err := s.store.GetReadings(r.Context(), propertyID, from, to)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type jsonErr struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

func handleError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, err.Error())
}
