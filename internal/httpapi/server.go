// Package httpapi wires the public send API, the live status websocket, and
// the administrative JSON API onto a chi router. It is thin plumbing over the
// core: everything stateful happens in session, queue, and storage.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/you/courier/internal/eventbus"
	"github.com/you/courier/internal/queue"
	"github.com/you/courier/internal/session"
	"github.com/you/courier/internal/storage"
)

// Options tunes the server beyond its collaborators.
type Options struct {
	SigningKey  []byte
	TokenTTL    time.Duration
	MaxAttempts int
}

type Server struct {
	store   *storage.Store
	queue   *queue.Redis
	manager *session.Manager
	bus     *eventbus.Bus
	opts    Options
	log     *zap.Logger

	upgrader websocket.Upgrader
}

func New(store *storage.Store, q *queue.Redis, manager *session.Manager, bus *eventbus.Bus, opts Options, log *zap.Logger) *Server {
	return &Server{
		store:   store,
		queue:   q,
		manager: manager,
		bus:     bus,
		opts:    opts,
		log:     log,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/public/api/send", s.handleSend)
	r.Get("/public/tenants/{id}/ws", s.handleLiveStatus)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", s.handleAdminLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/tenants", s.handleListTenants)
			r.Post("/tenants", s.handleCreateTenant)
			r.Delete("/tenants/{id}", s.handleDeleteTenant)
			r.Post("/tenants/{id}/rotate-key", s.handleRotateKey)
		})
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
