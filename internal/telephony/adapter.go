package telephony

import (
	"context"
	"log"

	"github.com/agentdial/agentdial/internal/observability"
)

// Adapter exposes the two in-call operations the conversation engine needs.
// Both are fire-and-forget: a failure to even issue the command is logged and
// the session is left where it was, because the provider's own failure events
// (or disconnection) are what eventually unstick a call.
type Adapter struct {
	client    *Client
	voiceName string
	metrics   *observability.Metrics
}

func NewAdapter(client *Client, voiceName string, metrics *observability.Metrics) *Adapter {
	return &Adapter{client: client, voiceName: voiceName, metrics: metrics}
}

// Speak plays text to the call. Completion arrives as PlayCompleted/PlayFailed.
func (a *Adapter) Speak(ctx context.Context, callID, text string) {
	if err := a.client.Play(ctx, callID, text, a.voiceName); err != nil {
		log.Printf("call %s: failed to play media: %v", callID, err)
		a.metrics.ProviderErrors.WithLabelValues("acs", "play").Inc()
	}
}

// Listen starts speech recognition targeting the remote participant.
// The transcript arrives as RecognizeCompleted/RecognizeFailed.
func (a *Adapter) Listen(ctx context.Context, callID, targetParticipant string) {
	if targetParticipant == "" {
		log.Printf("call %s: no remote participant resolved, recognition will not start", callID)
		return
	}
	if err := a.client.StartRecognizing(ctx, callID, targetParticipant); err != nil {
		log.Printf("call %s: failed to start recognition: %v", callID, err)
		a.metrics.ProviderErrors.WithLabelValues("acs", "recognize").Inc()
	}
}
