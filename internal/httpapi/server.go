package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/agentdial/agentdial/internal/call"
	"github.com/agentdial/agentdial/internal/config"
	"github.com/agentdial/agentdial/internal/events"
	"github.com/agentdial/agentdial/internal/observability"
	"github.com/agentdial/agentdial/internal/supervisor"
)

// CallPlacer starts an outbound call; progress arrives via the webhook.
type CallPlacer interface {
	CreateCall(ctx context.Context, target, source, callbackURL, speechEndpoint string) (string, error)
}

// WebhookProcessor handles one provider webhook delivery.
type WebhookProcessor interface {
	Process(ctx context.Context, raw []byte) (*events.ValidationResponse, error)
}

type Server struct {
	cfg        config.Config
	registry   *call.Registry
	placer     CallPlacer
	dispatcher WebhookProcessor
	hub        *supervisor.Hub
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(
	cfg config.Config,
	registry *call.Registry,
	placer CallPlacer,
	dispatcher WebhookProcessor,
	hub *supervisor.Hub,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:        cfg,
		registry:   registry,
		placer:     placer,
		dispatcher: dispatcher,
		hub:        hub,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up: a foreign page must
				// not be able to drive a live phone call.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/call", s.handleInitiateCall)
	r.Post("/api/callbacks", s.handleCallbacks)
	r.Get("/ws", s.handleSupervisorWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.registry.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleInitiateCall places the outbound call to the configured target.
func (s *Server) handleInitiateCall(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TargetPhoneNumber == "" || s.cfg.ACSPhoneNumber == "" {
		respondError(w, http.StatusBadRequest, "missing_numbers",
			"TARGET_PHONE_NUMBER and ACS_PHONE_NUMBER must be configured")
		return
	}

	log.Printf("initiating call to %s", s.cfg.TargetPhoneNumber)
	id, err := s.placer.CreateCall(r.Context(),
		s.cfg.TargetPhoneNumber,
		s.cfg.ACSPhoneNumber,
		s.cfg.CallbackURL(),
		s.cfg.SpeechEndpoint,
	)
	if err != nil {
		log.Printf("failed to place call: %v", err)
		s.metrics.ProviderErrors.WithLabelValues("acs", "create").Inc()
		respondError(w, http.StatusBadGateway, "call_failed", err.Error())
		return
	}

	sess := s.registry.Create(id)
	sess.Lock()
	sess.RemoteParty = s.cfg.TargetPhoneNumber
	sess.Unlock()
	s.metrics.ActiveCalls.Set(float64(s.registry.ActiveCount()))

	log.Printf("call initiated, connection id %s", id)
	respondJSON(w, http.StatusOK, map[string]string{"call_connection_id": id})
}

// handleCallbacks is the single webhook entry point for all provider events.
func (s *Server) handleCallbacks(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	defer r.Body.Close()

	validation, err := s.dispatcher.Process(r.Context(), body)
	if err != nil {
		// Malformed top-level payload. Individual bad events inside a batch
		// were already logged and dropped by the dispatcher.
		respondError(w, http.StatusBadRequest, "invalid_events", err.Error())
		return
	}
	if validation != nil {
		respondJSON(w, http.StatusOK, validation)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSupervisorWS upgrades a supervisor connection and pumps inbound
// messages into the hub until the peer goes away.
func (s *Server) handleSupervisorWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.hub.HandleInbound(r.Context(), data); err != nil {
			log.Printf("supervisor message dropped: %v", err)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
