package transcript

import (
	"context"
	"testing"
)

func TestInMemoryStoreSaveAndHistory(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	turns := []TurnRecord{
		{CallID: "call-1", Role: "system", Content: "prompt"},
		{CallID: "call-1", Role: "user", Content: "hello"},
		{CallID: "call-2", Role: "user", Content: "other call"},
		{CallID: "call-1", Role: "assistant", Content: "hi"},
	}
	for _, r := range turns {
		if err := s.SaveTurn(ctx, r); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	got, err := s.CallHistory(ctx, "call-1", 0)
	if err != nil {
		t.Fatalf("CallHistory() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("history length = %d, want 3", len(got))
	}
	if got[0].Content != "prompt" || got[2].Content != "hi" {
		t.Fatalf("history out of order: %+v", got)
	}
	for _, r := range got {
		if r.ID == "" || r.CreatedAt.IsZero() {
			t.Fatalf("record missing id or timestamp: %+v", r)
		}
	}
}

func TestInMemoryStoreHistoryLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, content := range []string{"a", "b", "c"} {
		if err := s.SaveTurn(ctx, TurnRecord{CallID: "call-1", Role: "user", Content: content}); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	got, err := s.CallHistory(ctx, "call-1", 2)
	if err != nil {
		t.Fatalf("CallHistory() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
		t.Fatalf("limited history = %+v, want last two", got)
	}
}

func TestInMemoryStoreUnknownCall(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.CallHistory(context.Background(), "nope", 10)
	if err != nil {
		t.Fatalf("CallHistory() error = %v", err)
	}
	if got != nil {
		t.Fatalf("history = %v, want nil", got)
	}
}
