// Package api exposes the read-only ops surface: engine state, risk
// and decision cards, recent signals, and a websocket stream of bus
// events.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/bus"
	"github.com/seenimoa/tradecore/internal/config"
	"github.com/seenimoa/tradecore/internal/engine"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/storage"
)

// Card KV keys, written by the engine each tick.
const (
	cardRiskKey      = "card:risk"
	cardSentimentKey = "card:sentiment"
	cardDecisionKey  = "card:decision"
)

// Server is the ops HTTP server.
type Server struct {
	router chi.Router
	cfg    config.APIConfig
	eng    *engine.Engine
	store  *storage.Store
	kv     *infra.KV
	bus    *bus.Bus
	hub    *WSHub
	log    *logrus.Entry
}

// NewServer creates the ops server with all routes wired.
func NewServer(cfg config.APIConfig, eng *engine.Engine, store *storage.Store, kv *infra.KV, b *bus.Bus, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		cfg:   cfg,
		eng:   eng,
		store: store,
		kv:    kv,
		bus:   b,
		hub:   NewWSHub(),
		log:   log.WithField("component", "api"),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router, used directly by tests.
func (s *Server) Router() chi.Router { return s.router }

// Run serves until the context is cancelled. The websocket hub and the
// bus bridge run alongside the listener.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.bridgeBus(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("ops server listening")
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// bridgeBus forwards every bus event to the websocket hub.
func (s *Server) bridgeBus(ctx context.Context) {
	events, cancel := s.bus.Subscribe("", 256)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(WSMessage{Type: ev.Topic, Key: ev.Key, Data: ev.Payload})
		}
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.CORSOrigins) > 0 {
		origins = s.cfg.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/cards", s.handleCards)
		r.Get("/signals", s.handleSignals)
		r.Get("/risk/events", s.handleRiskEvents)
		r.Get("/advices/stats", s.handleAdviceStats)
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

// ════════════════════════════════════════════════════════════════════
// Handlers
// ════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"engine": s.eng.StateName(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

// handleCards returns the latest ops cards the engine published.
func (s *Server) handleCards(w http.ResponseWriter, _ *http.Request) {
	cards := map[string]json.RawMessage{}
	for name, key := range map[string]string{
		"risk":      cardRiskKey,
		"sentiment": cardSentimentKey,
		"decision":  cardDecisionKey,
	} {
		var raw json.RawMessage
		if s.kv.GetJSON(key, &raw) {
			cards[name] = raw
		}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleSignals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.RecentSignals(20))
}

func (s *Server) handleRiskEvents(w http.ResponseWriter, _ *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	writeJSON(w, http.StatusOK, s.store.RiskEventsSince(since))
}

func (s *Server) handleAdviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.AdviceStatistics())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
