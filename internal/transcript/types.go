package transcript

import (
	"context"
	"time"
)

// TurnRecord stores a single conversational turn of one call.
type TurnRecord struct {
	ID          string    `json:"id"`
	CallID      string    `json:"call_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists conversation transcripts keyed by call connection id.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	CallHistory(ctx context.Context, callID string, limit int) ([]TurnRecord, error)
	Close() error
}
