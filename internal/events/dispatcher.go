package events

import (
	"context"
	"errors"
	"log"

	"github.com/agentdial/agentdial/internal/call"
	"github.com/agentdial/agentdial/internal/observability"
)

// Engine receives normalized lifecycle events for one call. The dispatcher
// holds the session's lock across each invocation, so implementations see
// strictly serialized transitions per call.
type Engine interface {
	HandleConnected(ctx context.Context, s *call.Session, participants []string)
	HandlePlayCompleted(ctx context.Context, s *call.Session)
	HandlePlayFailed(ctx context.Context, s *call.Session)
	HandleTranscript(ctx context.Context, s *call.Session, text string)
	HandleRecognizeFailed(ctx context.Context, s *call.Session)
	HandleDisconnected(ctx context.Context, s *call.Session)
}

// CallAnswerer accepts inbound calls; completion arrives via later events.
type CallAnswerer interface {
	AnswerCall(ctx context.Context, incomingCallContext, callbackURL, speechEndpoint string) (string, error)
}

// Dispatcher is the single entry point for provider-originated events.
type Dispatcher struct {
	registry *call.Registry
	engine   Engine
	answerer CallAnswerer
	metrics  *observability.Metrics

	callbackURL    string
	speechEndpoint string
}

func NewDispatcher(
	registry *call.Registry,
	engine Engine,
	answerer CallAnswerer,
	metrics *observability.Metrics,
	callbackURL string,
	speechEndpoint string,
) *Dispatcher {
	return &Dispatcher{
		registry:       registry,
		engine:         engine,
		answerer:       answerer,
		metrics:        metrics,
		callbackURL:    callbackURL,
		speechEndpoint: speechEndpoint,
	}
}

// ValidationResponse echoes the subscription-validation handshake code.
type ValidationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}

// Process handles one webhook delivery (a single event or a batch). A
// non-nil ValidationResponse must be returned to the provider synchronously.
// Malformed or unknown events are logged and dropped; nothing here is fatal.
func (d *Dispatcher) Process(ctx context.Context, raw []byte) (*ValidationResponse, error) {
	batch, err := SplitBatch(raw)
	if err != nil {
		return nil, err
	}

	for _, item := range batch {
		ev, err := Normalize(item)
		if err != nil {
			if errors.Is(err, ErrUnknownType) {
				log.Printf("ignoring event: %v", err)
			} else {
				log.Printf("dropping malformed event: %v", err)
			}
			continue
		}

		d.metrics.CallEvents.WithLabelValues(string(ev.Type)).Inc()

		if ev.Type == TypeSubscriptionValidation {
			log.Printf("subscription validation handshake")
			return &ValidationResponse{ValidationResponse: ev.ValidationCode}, nil
		}

		d.route(ctx, ev)
	}
	return nil, nil
}

func (d *Dispatcher) route(ctx context.Context, ev Event) {
	if ev.Type == TypeIncomingCall {
		d.handleIncomingCall(ctx, ev)
		return
	}

	if ev.Type == TypeCallDisconnected {
		// Pure lookup: recreating a session only to tear it down would make
		// duplicate disconnect deliveries churn the registry.
		s, ok := d.registry.Get(ev.CallConnectionID)
		if !ok {
			return
		}
		s.Lock()
		d.engine.HandleDisconnected(ctx, s)
		s.Unlock()
		d.metrics.ActiveCalls.Set(float64(d.registry.ActiveCount()))
		return
	}

	s := d.registry.GetOrRecover(ev.CallConnectionID)
	d.metrics.ActiveCalls.Set(float64(d.registry.ActiveCount()))

	s.Lock()
	defer s.Unlock()

	switch ev.Type {
	case TypeCallConnected:
		d.engine.HandleConnected(ctx, s, ev.Participants)
	case TypePlayCompleted:
		d.engine.HandlePlayCompleted(ctx, s)
	case TypePlayFailed:
		d.engine.HandlePlayFailed(ctx, s)
	case TypeRecognizeCompleted:
		d.engine.HandleTranscript(ctx, s, ev.Transcript)
	case TypeRecognizeFailed:
		d.engine.HandleRecognizeFailed(ctx, s)
	}
}

func (d *Dispatcher) handleIncomingCall(ctx context.Context, ev Event) {
	log.Printf("incoming call from %s", ev.CallerNumber)

	id, err := d.answerer.AnswerCall(ctx, ev.IncomingCallContext, d.callbackURL, d.speechEndpoint)
	if err != nil {
		log.Printf("failed to answer incoming call: %v", err)
		d.metrics.ProviderErrors.WithLabelValues("acs", "answer").Inc()
		return
	}
	if id == "" {
		id = ev.CallConnectionID
	}
	if id == "" {
		log.Printf("answered incoming call but no call connection id is known yet")
		return
	}

	s := d.registry.Create(id)
	s.Lock()
	s.RemoteParty = ev.CallerNumber
	s.Unlock()
	d.metrics.ActiveCalls.Set(float64(d.registry.ActiveCount()))
}
