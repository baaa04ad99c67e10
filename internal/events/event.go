// Package events normalizes provider webhook payloads and routes them to the
// conversation engine. ACS delivers two envelope dialects (Event Grid names
// the type "eventType", cloud events name it "type"; the call connection id
// sits either at the top level or inside "data"), so everything is parsed
// into one canonical Event before any routing happens.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type discriminates provider notifications.
type Type string

const (
	TypeSubscriptionValidation Type = "Microsoft.EventGrid.SubscriptionValidationEvent"
	TypeIncomingCall           Type = "Microsoft.Communication.IncomingCall"
	TypeCallConnected          Type = "Microsoft.Communication.CallConnected"
	TypePlayCompleted          Type = "Microsoft.Communication.PlayCompleted"
	TypePlayFailed             Type = "Microsoft.Communication.PlayFailed"
	TypeRecognizeCompleted     Type = "Microsoft.Communication.RecognizeCompleted"
	TypeRecognizeFailed        Type = "Microsoft.Communication.RecognizeFailed"
	TypeCallDisconnected       Type = "Microsoft.Communication.CallDisconnected"
)

// Event is the canonical, normalized provider notification.
type Event struct {
	Type             Type
	CallConnectionID string

	// Validation handshake only.
	ValidationCode string

	// IncomingCall only.
	IncomingCallContext string
	CallerNumber        string

	// CallConnected: phone numbers of all participants, used to recover the
	// remote party when the IncomingCall event was missed.
	Participants []string

	// RecognizeCompleted only.
	Transcript string
}

type envelope struct {
	Type             string          `json:"type"`
	EventType        string          `json:"eventType"`
	CallConnectionID string          `json:"callConnectionId"`
	Data             json.RawMessage `json:"data"`
}

type validationData struct {
	ValidationCode string `json:"validationCode"`
}

type phoneNumber struct {
	Value string `json:"value"`
}

type identifier struct {
	PhoneNumber *phoneNumber `json:"phoneNumber"`
}

type incomingCallData struct {
	IncomingCallContext string     `json:"incomingCallContext"`
	From                identifier `json:"from"`
	CallConnectionID    string     `json:"callConnectionId"`
}

type participant struct {
	Identifier identifier `json:"identifier"`
}

type connectedData struct {
	CallConnectionID string        `json:"callConnectionId"`
	Participants     []participant `json:"participants"`
}

type recognizeData struct {
	CallConnectionID string `json:"callConnectionId"`
	RecognitionType  string `json:"recognitionType"`
	SpeechResult     struct {
		Speech string `json:"speech"`
	} `json:"speechResult"`
}

type callIDData struct {
	CallConnectionID string `json:"callConnectionId"`
}

// ErrUnknownType marks event types we do not handle; the dispatcher logs and
// ignores them for forward compatibility with provider schema additions.
var ErrUnknownType = errors.New("unknown event type")

// SplitBatch accepts either a single JSON event object or an array of them
// and returns the individual raw events.
func SplitBatch(raw []byte) ([]json.RawMessage, error) {
	var batch []json.RawMessage
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}
	var single json.RawMessage
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	return []json.RawMessage{single}, nil
}

// Normalize parses one raw provider event into the canonical shape, failing
// closed on any shape mismatch.
func Normalize(raw json.RawMessage) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("invalid event envelope: %w", err)
	}

	typ := env.Type
	if typ == "" {
		typ = env.EventType
	}
	if typ == "" {
		return Event{}, errors.New("event has no type discriminator")
	}

	ev := Event{Type: Type(typ), CallConnectionID: env.CallConnectionID}

	switch ev.Type {
	case TypeSubscriptionValidation:
		var data validationData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.ValidationCode == "" {
			return Event{}, errors.New("validation event missing validationCode")
		}
		ev.ValidationCode = data.ValidationCode
		return ev, nil

	case TypeIncomingCall:
		var data incomingCallData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.IncomingCallContext == "" {
			return Event{}, errors.New("incoming call event missing incomingCallContext")
		}
		ev.IncomingCallContext = data.IncomingCallContext
		if data.From.PhoneNumber != nil {
			ev.CallerNumber = data.From.PhoneNumber.Value
		}
		if ev.CallConnectionID == "" {
			ev.CallConnectionID = data.CallConnectionID
		}
		return ev, nil

	case TypeCallConnected:
		var data connectedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("invalid call connected payload: %w", err)
		}
		if ev.CallConnectionID == "" {
			ev.CallConnectionID = data.CallConnectionID
		}
		for _, p := range data.Participants {
			if p.Identifier.PhoneNumber != nil && p.Identifier.PhoneNumber.Value != "" {
				ev.Participants = append(ev.Participants, p.Identifier.PhoneNumber.Value)
			}
		}

	case TypeRecognizeCompleted:
		var data recognizeData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("invalid recognize payload: %w", err)
		}
		if ev.CallConnectionID == "" {
			ev.CallConnectionID = data.CallConnectionID
		}
		if data.RecognitionType != "speech" {
			return Event{}, fmt.Errorf("unsupported recognition type %q", data.RecognitionType)
		}
		ev.Transcript = data.SpeechResult.Speech

	case TypePlayCompleted, TypePlayFailed, TypeRecognizeFailed, TypeCallDisconnected:
		var data callIDData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return Event{}, fmt.Errorf("invalid event payload: %w", err)
			}
		}
		if ev.CallConnectionID == "" {
			ev.CallConnectionID = data.CallConnectionID
		}

	default:
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}

	if ev.CallConnectionID == "" {
		return Event{}, fmt.Errorf("event %s has no callConnectionId", ev.Type)
	}
	return ev, nil
}
