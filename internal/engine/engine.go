// Package engine drives one call's conversational turn loop: transcripts in,
// speak/listen/escalate decisions out.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/agentdial/agentdial/internal/brain"
	"github.com/agentdial/agentdial/internal/call"
	"github.com/agentdial/agentdial/internal/observability"
	"github.com/agentdial/agentdial/internal/transcript"
)

// Actions issues in-call commands against the telephony provider. Both are
// fire-and-forget; completion arrives later through the event dispatcher.
type Actions interface {
	Speak(ctx context.Context, callID, text string)
	Listen(ctx context.Context, callID, targetParticipant string)
}

// Notifier pushes live updates to connected supervisors.
type Notifier interface {
	BroadcastTranscript(line string)
	RequestPII(field string)
}

const persistTimeout = 2 * time.Second

// Engine is the per-call state machine and turn controller. Callers must
// hold the session's lock for the duration of each handler, so a session
// only ever runs one transition at a time.
type Engine struct {
	registry *call.Registry
	decider  brain.Decider
	actions  Actions
	notifier Notifier
	store    transcript.Store
	metrics  *observability.Metrics

	greeting        string
	defaultTarget   string
	decisionTimeout time.Duration
}

func New(
	registry *call.Registry,
	decider brain.Decider,
	actions Actions,
	notifier Notifier,
	store transcript.Store,
	metrics *observability.Metrics,
	greeting string,
	defaultTarget string,
	decisionTimeout time.Duration,
) *Engine {
	if decisionTimeout <= 0 {
		decisionTimeout = 30 * time.Second
	}
	return &Engine{
		registry:        registry,
		decider:         decider,
		actions:         actions,
		notifier:        notifier,
		store:           store,
		metrics:         metrics,
		greeting:        greeting,
		defaultTarget:   defaultTarget,
		decisionTimeout: decisionTimeout,
	}
}

// HandleConnected greets the remote party once the provider reports the call
// is live. The remote participant is resolved here if the incoming-call
// event was missed (e.g. after a restart).
func (e *Engine) HandleConnected(ctx context.Context, s *call.Session, participants []string) {
	log.Printf("call %s connected", s.ID)
	e.notifier.BroadcastTranscript("System: Call Connected")

	if s.RemoteParty == "" {
		for _, p := range participants {
			if p != "" {
				s.RemoteParty = p
				log.Printf("call %s: recovered remote participant %s", s.ID, p)
				break
			}
		}
	}
	if s.RemoteParty == "" {
		s.RemoteParty = e.defaultTarget
	}
	if s.RemoteParty == "" {
		log.Printf("call %s: no remote participant resolved, recognition will likely fail", s.ID)
	}

	e.speak(ctx, s, e.greeting)
}

// HandlePlayCompleted restarts recognition after our speech finishes, unless
// the call is parked waiting for a human.
func (e *Engine) HandlePlayCompleted(ctx context.Context, s *call.Session) {
	switch s.State {
	case call.StatePIIInputNeeded, call.StateHold, call.StateFinished:
		return
	}
	s.State = call.StateListening
	e.actions.Listen(ctx, s.ID, s.RemoteParty)
}

// HandlePlayFailed re-enters the listen loop so the call is not left dead.
func (e *Engine) HandlePlayFailed(ctx context.Context, s *call.Session) {
	if s.State == call.StateFinished {
		return
	}
	log.Printf("call %s: playback failed, restarting recognition", s.ID)
	s.State = call.StateListening
	e.actions.Listen(ctx, s.ID, s.RemoteParty)
}

// HandleRecognizeFailed retries recognition. This is the system's only
// automatic retry policy.
func (e *Engine) HandleRecognizeFailed(ctx context.Context, s *call.Session) {
	if s.State == call.StateFinished {
		return
	}
	log.Printf("call %s: recognition failed, retrying", s.ID)
	s.State = call.StateListening
	e.actions.Listen(ctx, s.ID, s.RemoteParty)
}

// HandleTranscript processes a completed speech-to-text result and decides
// the next action.
func (e *Engine) HandleTranscript(ctx context.Context, s *call.Session, text string) {
	if s.State == call.StateFinished {
		// The call disconnected while this result was in flight; discard it.
		return
	}
	if text == "" {
		s.State = call.StateListening
		e.actions.Listen(ctx, s.ID, s.RemoteParty)
		return
	}

	s.State = call.StateProcessing
	s.LatestTranscript = text
	s.AppendTurn(call.RoleRemote, text)
	e.persistTurn(s.ID, call.RoleRemote, text, false)
	e.notifier.BroadcastTranscript("Remote: " + text)

	action := e.decide(ctx, s)
	e.metrics.DecisionActions.WithLabelValues(string(action.Kind)).Inc()

	switch action.Kind {
	case brain.ActionSpeak:
		e.speak(ctx, s, action.Text)

	case brain.ActionRequestPII:
		// Park the call: no speech, no recognition restart. The supervisor
		// channel supplies the answer.
		s.State = call.StatePIIInputNeeded
		s.PendingPIIField = action.Field
		log.Printf("call %s: awaiting supervisor input for %q", s.ID, action.Field)
		e.notifier.RequestPII(action.Field)

	case brain.ActionHold:
		s.State = call.StateHold
		log.Printf("call %s: hold detected, waiting passively", s.ID)

	default:
		// Human-in-the-loop bypass: keep listening without speaking.
		s.State = call.StateListening
		e.actions.Listen(ctx, s.ID, s.RemoteParty)
	}
}

// HandleHumanInput speaks supervisor-authored text verbatim and appends it
// to history exactly like an agent-authored turn. It also resolves a pending
// PII request.
func (e *Engine) HandleHumanInput(ctx context.Context, s *call.Session, text string) {
	if s.State == call.StateFinished || text == "" {
		return
	}
	log.Printf("call %s: human input", s.ID)

	redacted := false
	stored := text
	if s.State == call.StatePIIInputNeeded {
		// PII answers stay out of the durable transcript; only the field
		// name is recorded.
		redacted = true
		stored = s.PendingPIIField
		s.PendingPIIField = ""
	}

	s.AppendTurn(call.RoleAgent, text)
	e.persistTurn(s.ID, call.RoleAgent, stored, redacted)
	s.State = call.StateListening
	e.actions.Speak(ctx, s.ID, text)
	e.notifier.BroadcastTranscript("Agent: " + text)
}

// HandleDisconnected finishes the session and removes it from the registry.
// Safe to deliver twice: the second call finds no session to act upon.
func (e *Engine) HandleDisconnected(_ context.Context, s *call.Session) {
	if s.State == call.StateFinished {
		return
	}
	log.Printf("call %s disconnected", s.ID)
	s.State = call.StateFinished
	e.notifier.BroadcastTranscript("System: Call Disconnected")
	e.registry.Remove(s.ID)
}

func (e *Engine) speak(ctx context.Context, s *call.Session, text string) {
	s.AppendTurn(call.RoleAgent, text)
	e.persistTurn(s.ID, call.RoleAgent, text, false)
	s.State = call.StateListening
	e.actions.Speak(ctx, s.ID, text)
	e.notifier.BroadcastTranscript("Agent: " + text)
}

// decide invokes the decision function. Any failure degrades to ActionNone:
// the call keeps listening and a human can take over.
func (e *Engine) decide(ctx context.Context, s *call.Session) brain.Action {
	ctx, cancel := context.WithTimeout(ctx, e.decisionTimeout)
	defer cancel()

	start := time.Now()
	action, err := e.decider.Decide(ctx, s.History())
	e.metrics.ObserveDecisionLatency(time.Since(start))
	if err != nil {
		log.Printf("call %s: decision function error: %v", s.ID, err)
		e.metrics.ProviderErrors.WithLabelValues("brain", "decide").Inc()
		return brain.Action{Kind: brain.ActionNone}
	}
	if action.Kind == "" {
		return brain.Action{Kind: brain.ActionNone}
	}
	return action
}

// persistTurn writes a turn to the transcript store. Best effort:
// persistence never blocks or fails the call.
func (e *Engine) persistTurn(callID string, role call.Role, content string, redacted bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := e.store.SaveTurn(ctx, transcript.TurnRecord{
		CallID:      callID,
		Role:        string(role),
		Content:     content,
		PIIRedacted: redacted,
	})
	if err != nil {
		log.Printf("call %s: failed to persist turn: %v", callID, err)
	}
}
