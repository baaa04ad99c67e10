package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSplitBatchSingleObject(t *testing.T) {
	batch, err := SplitBatch([]byte(`{"type":"x"}`))
	if err != nil {
		t.Fatalf("SplitBatch() error = %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("len(batch) = %d, want 1", len(batch))
	}
}

func TestSplitBatchArray(t *testing.T) {
	batch, err := SplitBatch([]byte(`[{"type":"x"},{"type":"y"}]`))
	if err != nil {
		t.Fatalf("SplitBatch() error = %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2", len(batch))
	}
}

func TestSplitBatchGarbage(t *testing.T) {
	if _, err := SplitBatch([]byte("not json")); err == nil {
		t.Fatalf("SplitBatch() expected error for invalid payload")
	}
}

func TestNormalizeValidation(t *testing.T) {
	raw := `{"eventType":"Microsoft.EventGrid.SubscriptionValidationEvent","data":{"validationCode":"abc-123"}}`
	ev, err := Normalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if ev.Type != TypeSubscriptionValidation || ev.ValidationCode != "abc-123" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestNormalizeIncomingCall(t *testing.T) {
	raw := `{
		"eventType": "Microsoft.Communication.IncomingCall",
		"data": {
			"incomingCallContext": "ctx-token",
			"from": {"phoneNumber": {"value": "+15551112222"}}
		}
	}`
	ev, err := Normalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if ev.IncomingCallContext != "ctx-token" {
		t.Fatalf("IncomingCallContext = %q", ev.IncomingCallContext)
	}
	if ev.CallerNumber != "+15551112222" {
		t.Fatalf("CallerNumber = %q", ev.CallerNumber)
	}
}

func TestNormalizeCallIDLocations(t *testing.T) {
	topLevel := `{"type":"Microsoft.Communication.CallConnected","callConnectionId":"cc-1","data":{}}`
	ev, err := Normalize(json.RawMessage(topLevel))
	if err != nil {
		t.Fatalf("Normalize(top-level id) error = %v", err)
	}
	if ev.CallConnectionID != "cc-1" {
		t.Fatalf("CallConnectionID = %q, want cc-1", ev.CallConnectionID)
	}

	nested := `{"type":"Microsoft.Communication.CallConnected","data":{"callConnectionId":"cc-2"}}`
	ev, err = Normalize(json.RawMessage(nested))
	if err != nil {
		t.Fatalf("Normalize(nested id) error = %v", err)
	}
	if ev.CallConnectionID != "cc-2" {
		t.Fatalf("CallConnectionID = %q, want cc-2", ev.CallConnectionID)
	}
}

func TestNormalizeCallConnectedParticipants(t *testing.T) {
	raw := `{
		"type": "Microsoft.Communication.CallConnected",
		"data": {
			"callConnectionId": "cc-1",
			"participants": [
				{"identifier": {"phoneNumber": {"value": "+15553334444"}}},
				{"identifier": {}}
			]
		}
	}`
	ev, err := Normalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(ev.Participants) != 1 || ev.Participants[0] != "+15553334444" {
		t.Fatalf("Participants = %v", ev.Participants)
	}
}

func TestNormalizeRecognizeCompleted(t *testing.T) {
	raw := `{
		"type": "Microsoft.Communication.RecognizeCompleted",
		"data": {
			"callConnectionId": "cc-1",
			"recognitionType": "speech",
			"speechResult": {"speech": "I need an appointment"}
		}
	}`
	ev, err := Normalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if ev.Transcript != "I need an appointment" {
		t.Fatalf("Transcript = %q", ev.Transcript)
	}
}

func TestNormalizeRecognizeWrongType(t *testing.T) {
	raw := `{
		"type": "Microsoft.Communication.RecognizeCompleted",
		"data": {"callConnectionId": "cc-1", "recognitionType": "dtmf"}
	}`
	if _, err := Normalize(json.RawMessage(raw)); err == nil {
		t.Fatalf("Normalize() expected error for non-speech recognition")
	}
}

func TestNormalizeUnknownType(t *testing.T) {
	raw := `{"type":"Microsoft.Communication.SomethingNew","callConnectionId":"cc-1"}`
	_, err := Normalize(json.RawMessage(raw))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Normalize() error = %v, want ErrUnknownType", err)
	}
}

func TestNormalizeMissingCallID(t *testing.T) {
	raw := `{"type":"Microsoft.Communication.PlayCompleted","data":{}}`
	if _, err := Normalize(json.RawMessage(raw)); err == nil {
		t.Fatalf("Normalize() expected error when no callConnectionId can be resolved")
	}
}

func TestNormalizeMissingTypeDiscriminator(t *testing.T) {
	if _, err := Normalize(json.RawMessage(`{"data":{}}`)); err == nil {
		t.Fatalf("Normalize() expected error for event without type")
	}
}
