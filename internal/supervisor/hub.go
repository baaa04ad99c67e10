// Package supervisor implements the live human-override channel: transcript
// lines fan out to every connected supervisor, and human-authored utterances
// or PII answers flow back into the conversation engine.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdial/agentdial/internal/call"
	"github.com/agentdial/agentdial/internal/observability"
)

const (
	TypeTranscript  = "transcript"
	TypeInputNeeded = "INPUT_NEEDED"
	TypeInput       = "input"
	TypePII         = "PII"
)

// OutboundMessage is pushed to supervisors.
type OutboundMessage struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Field string `json:"field,omitempty"`
}

// InboundMessage is a supervisor-authored message. CallID is optional; when
// absent the message targets the most recently created call.
type InboundMessage struct {
	Type   string `json:"type"`
	Data   string `json:"data"`
	Field  string `json:"field,omitempty"`
	CallID string `json:"call_id,omitempty"`
}

// ParseInbound validates a supervisor message.
func ParseInbound(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("invalid supervisor message: %w", err)
	}
	switch msg.Type {
	case TypeInput, TypePII:
	default:
		return InboundMessage{}, fmt.Errorf("unsupported supervisor message type %q", msg.Type)
	}
	if msg.Data == "" {
		return InboundMessage{}, errors.New("supervisor message has empty data")
	}
	return msg, nil
}

// InputHandler feeds human input into a call. The hub holds the session's
// lock around each invocation.
type InputHandler interface {
	HandleHumanInput(ctx context.Context, s *call.Session, text string)
}

const writeTimeout = 10 * time.Second

type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex // keeps websocket writes single-threaded per connection
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(v)
}

// Hub tracks connected supervisor channels and routes messages both ways.
type Hub struct {
	registry *call.Registry
	metrics  *observability.Metrics

	mu      sync.Mutex
	peers   map[*websocket.Conn]*peer
	handler InputHandler
}

func NewHub(registry *call.Registry, metrics *observability.Metrics) *Hub {
	return &Hub{
		registry: registry,
		metrics:  metrics,
		peers:    make(map[*websocket.Conn]*peer),
	}
}

// SetInputHandler wires the conversation engine in after construction, since
// the engine also needs the hub for outbound notifications.
func (h *Hub) SetInputHandler(handler InputHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Register adds a connected supervisor.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[conn] = &peer{conn: conn}
}

// Unregister removes a supervisor; the connection is not closed here.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, conn)
}

// BroadcastTranscript sends a transcript line to every supervisor. Send
// failures drop the failing peer and never affect others or the call.
func (h *Hub) BroadcastTranscript(line string) {
	h.broadcast(OutboundMessage{Type: TypeTranscript, Data: line})
	h.metrics.WSMessages.WithLabelValues("outbound", TypeTranscript).Inc()
}

// RequestPII asks all supervisors for a personal detail the agent must not
// fabricate.
func (h *Hub) RequestPII(field string) {
	h.broadcast(OutboundMessage{Type: TypeInputNeeded, Field: field})
	h.metrics.WSMessages.WithLabelValues("outbound", TypeInputNeeded).Inc()
}

func (h *Hub) broadcast(msg OutboundMessage) {
	h.mu.Lock()
	targets := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		targets = append(targets, p)
	}
	h.mu.Unlock()

	for _, p := range targets {
		if err := p.send(msg); err != nil {
			log.Printf("supervisor send failed, dropping peer: %v", err)
			h.Unregister(p.conn)
		}
	}
}

// HandleInbound routes one supervisor message to its call. Messages with a
// call_id bind explicitly; otherwise the most recently created call is used.
func (h *Hub) HandleInbound(ctx context.Context, raw []byte) error {
	msg, err := ParseInbound(raw)
	if err != nil {
		return err
	}
	h.metrics.WSMessages.WithLabelValues("inbound", msg.Type).Inc()

	var (
		s  *call.Session
		ok bool
	)
	if msg.CallID != "" {
		s, ok = h.registry.Get(msg.CallID)
	} else {
		s, ok = h.registry.Latest()
	}
	if !ok {
		return errors.New("no active call to receive supervisor input")
	}

	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	if handler == nil {
		return errors.New("supervisor input handler not configured")
	}

	s.Lock()
	defer s.Unlock()
	handler.HandleHumanInput(ctx, s, msg.Data)
	return nil
}
