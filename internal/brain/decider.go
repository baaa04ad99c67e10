package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentdial/agentdial/internal/call"
)

// ActionKind tags the decision returned for one conversational turn.
type ActionKind string

const (
	// ActionSpeak plays the given text to the remote party.
	ActionSpeak ActionKind = "SPEAK"
	// ActionRequestPII asks a human supervisor for a personal detail instead
	// of fabricating one.
	ActionRequestPII ActionKind = "PII_REQUEST"
	// ActionHold reports that the remote side is hold music or a waiting
	// loop; the call stays idle until the next transcript.
	ActionHold ActionKind = "HOLD"
	// ActionNone defers to a human: no speech, recognition restarts.
	ActionNone ActionKind = "NONE"
)

// Action is the decision for the current turn. Text is set for ActionSpeak,
// Field for ActionRequestPII.
type Action struct {
	Kind  ActionKind
	Text  string
	Field string
}

// Decider turns conversation history into the next action. Implementations
// must never invent personal data: a PII question from the remote party must
// surface as ActionRequestPII.
type Decider interface {
	Decide(ctx context.Context, history []call.Turn) (Action, error)
}

// Config controls adapter construction.
type Config struct {
	Mode            string
	Endpoint        string
	APIKey          string
	DeploymentModel string
}

func NewDecider(cfg Config) (Decider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.Endpoint) != "" && strings.TrimSpace(cfg.APIKey) != "" {
			return NewAzureDecider(cfg.Endpoint, cfg.APIKey, cfg.DeploymentModel), nil
		}
		return NewMockDecider(), nil
	case "azure":
		if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("azure endpoint and api key are required for azure mode")
		}
		return NewAzureDecider(cfg.Endpoint, cfg.APIKey, cfg.DeploymentModel), nil
	case "mock":
		return NewMockDecider(), nil
	default:
		return nil, fmt.Errorf("unsupported brain adapter mode %q", cfg.Mode)
	}
}
