package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentdial/agentdial/internal/call"
)

// MockDecider provides deterministic local decisions when no model backend
// is configured.
type MockDecider struct{}

func NewMockDecider() *MockDecider { return &MockDecider{} }

func (d *MockDecider) Decide(ctx context.Context, history []call.Turn) (Action, error) {
	select {
	case <-ctx.Done():
		return Action{}, ctx.Err()
	default:
	}

	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == call.RoleRemote {
			last = strings.TrimSpace(history[i].Text)
			break
		}
	}
	if last == "" {
		return Action{Kind: ActionNone}, nil
	}

	lower := strings.ToLower(last)
	switch {
	case strings.Contains(lower, "hold"):
		return Action{Kind: ActionHold}, nil
	case strings.Contains(lower, "date of birth"):
		return Action{Kind: ActionRequestPII, Field: "Date of Birth"}, nil
	case strings.Contains(lower, "name"):
		return Action{Kind: ActionRequestPII, Field: "Full Name"}, nil
	case strings.Contains(lower, "address"):
		return Action{Kind: ActionRequestPII, Field: "Address"}, nil
	default:
		return Action{Kind: ActionSpeak, Text: fmt.Sprintf("I heard you: %s", last)}, nil
	}
}
