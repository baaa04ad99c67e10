package call

import (
	"sync"
	"time"
)

// State tracks where a call sits in its conversational lifecycle.
type State string

const (
	StateListening      State = "LISTENING"
	StateProcessing     State = "PROCESSING"
	StatePIIInputNeeded State = "PII_INPUT_NEEDED"
	StateHold           State = "HOLD"
	StateEscalating     State = "ESCALATING"
	StateFinished       State = "FINISHED"
)

// Role identifies who produced a conversation turn. The values double as
// chat-completion roles so history can be sent to the decision model as-is.
type Role string

const (
	RoleSystem Role = "system"
	RoleRemote Role = "user"
	RoleAgent  Role = "assistant"
)

// Turn is one immutable entry in a call's conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// SystemPrompt seeds every session's history as its first turn.
const SystemPrompt = "You are Agent T, a medical appointment negotiator. " +
	"Your goal is to get the earliest possible appointment for the user. " +
	"You are speaking to a doctor's office receptionist or automated system. " +
	"If the system or person asks for Personal Identifiable Information (PII) like Name, " +
	"Date of Birth, or Address, you MUST output a JSON function call to 'request_pii'. " +
	"Do NOT provide fake data. " +
	"If you detect hold music or repetitive waiting messages, output 'HOLD_DETECTED'. " +
	"If the automated system fails, request a Customer Service Representative."

// Session is the mutable state of one in-progress call. It is owned by the
// Registry; all mutation must happen between Lock and Unlock so that events
// for the same call are applied one at a time.
type Session struct {
	mu sync.Mutex

	ID               string
	State            State
	RemoteParty      string
	LatestTranscript string
	PendingPIIField  string
	CreatedAt        time.Time

	history []Turn
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		State:     StateListening,
		CreatedAt: time.Now().UTC(),
		history:   []Turn{{Role: RoleSystem, Text: SystemPrompt}},
	}
}

// Lock serializes event handling for this call. Independent calls proceed in
// parallel; two events for the same call never interleave.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-call serialization lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// AppendTurn adds a turn to the history. Turns are append-only; nothing ever
// edits or removes one.
func (s *Session) AppendTurn(role Role, text string) {
	s.history = append(s.history, Turn{Role: role, Text: text})
}

// History returns a copy of the conversation so far, system prompt first.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}
