// Package telephony wraps the Azure Communication Services Call Automation
// REST API. It is deliberately thin: every operation here has asynchronous
// completion reported later through the webhook, never through the return
// value.
package telephony

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiVersion = "2023-10-15"

// Client is an authenticated HTTP client for one ACS resource.
type Client struct {
	endpoint  *url.URL
	accessKey []byte
	client    *http.Client
}

// NewClient parses an ACS connection string of the form
// "endpoint=https://<resource>.communication.azure.com/;accesskey=<base64>".
func NewClient(connectionString string) (*Client, error) {
	var endpoint, accessKey string
	for _, part := range strings.Split(connectionString, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed connection string segment %q", part)
		}
		switch strings.ToLower(k) {
		case "endpoint":
			endpoint = v
		case "accesskey":
			accessKey = v
		}
	}
	if endpoint == "" || accessKey == "" {
		return nil, errors.New("connection string must contain endpoint and accesskey")
	}

	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(accessKey)
	if err != nil {
		return nil, fmt.Errorf("decode access key: %w", err)
	}

	return &Client{
		endpoint:  u,
		accessKey: key,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type phoneNumberIdentifier struct {
	Value string `json:"value"`
}

type communicationIdentifier struct {
	Kind        string                 `json:"kind"`
	PhoneNumber *phoneNumberIdentifier `json:"phoneNumber,omitempty"`
}

func phoneIdentifier(number string) communicationIdentifier {
	return communicationIdentifier{
		Kind:        "phoneNumber",
		PhoneNumber: &phoneNumberIdentifier{Value: number},
	}
}

type createCallRequest struct {
	Targets                 []communicationIdentifier `json:"targets"`
	SourceCallerIDNumber    phoneNumberIdentifier     `json:"sourceCallerIdNumber"`
	CallbackURI             string                    `json:"callbackUri"`
	CallIntelligenceOptions *callIntelligenceOptions  `json:"callIntelligenceOptions,omitempty"`
}

type answerCallRequest struct {
	IncomingCallContext     string                   `json:"incomingCallContext"`
	CallbackURI             string                   `json:"callbackUri"`
	CallIntelligenceOptions *callIntelligenceOptions `json:"callIntelligenceOptions,omitempty"`
}

type callIntelligenceOptions struct {
	CognitiveServicesEndpoint string `json:"cognitiveServicesEndpoint"`
}

type callConnectionResponse struct {
	CallConnectionID string `json:"callConnectionId"`
}

type playRequest struct {
	PlaySources []playSource `json:"playSources"`
}

type playSource struct {
	Kind string     `json:"kind"`
	Text textSource `json:"text"`
}

type textSource struct {
	Text      string `json:"text"`
	VoiceName string `json:"voiceName"`
}

type recognizeRequest struct {
	RecognizeInputType string           `json:"recognizeInputType"`
	RecognizeOptions   recognizeOptions `json:"recognizeOptions"`
}

type recognizeOptions struct {
	TargetParticipant communicationIdentifier `json:"targetParticipant"`
}

// CreateCall places an outbound call and returns the provider-assigned call
// connection id. Everything after the id is delivered via the callback URL.
func (c *Client) CreateCall(ctx context.Context, target, source, callbackURL, speechEndpoint string) (string, error) {
	body := createCallRequest{
		Targets:              []communicationIdentifier{phoneIdentifier(target)},
		SourceCallerIDNumber: phoneNumberIdentifier{Value: source},
		CallbackURI:          callbackURL,
	}
	if speechEndpoint != "" {
		body.CallIntelligenceOptions = &callIntelligenceOptions{CognitiveServicesEndpoint: speechEndpoint}
	}

	raw, err := c.post(ctx, "/calling/callConnections", body)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	var res callConnectionResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode create call response: %w", err)
	}
	if res.CallConnectionID == "" {
		return "", errors.New("create call response missing callConnectionId")
	}
	return res.CallConnectionID, nil
}

// AnswerCall accepts an inbound call using the opaque context from the
// IncomingCall event.
func (c *Client) AnswerCall(ctx context.Context, incomingCallContext, callbackURL, speechEndpoint string) (string, error) {
	body := answerCallRequest{
		IncomingCallContext: incomingCallContext,
		CallbackURI:         callbackURL,
	}
	if speechEndpoint != "" {
		body.CallIntelligenceOptions = &callIntelligenceOptions{CognitiveServicesEndpoint: speechEndpoint}
	}

	raw, err := c.post(ctx, "/calling/callConnections:answer", body)
	if err != nil {
		return "", fmt.Errorf("answer call: %w", err)
	}
	var res callConnectionResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode answer call response: %w", err)
	}
	return res.CallConnectionID, nil
}

// Play starts text-to-speech playback on the call. Completion arrives later
// as a PlayCompleted or PlayFailed event.
func (c *Client) Play(ctx context.Context, callConnectionID, text, voiceName string) error {
	body := playRequest{
		PlaySources: []playSource{{
			Kind: "text",
			Text: textSource{Text: text, VoiceName: voiceName},
		}},
	}
	if _, err := c.post(ctx, "/calling/callConnections/"+url.PathEscape(callConnectionID)+":play", body); err != nil {
		return fmt.Errorf("play media: %w", err)
	}
	return nil
}

// StartRecognizing begins speech capture targeting the given participant.
// The transcript arrives later as a RecognizeCompleted event.
func (c *Client) StartRecognizing(ctx context.Context, callConnectionID, targetParticipant string) error {
	body := recognizeRequest{
		RecognizeInputType: "speech",
		RecognizeOptions: recognizeOptions{
			TargetParticipant: phoneIdentifier(targetParticipant),
		},
	}
	if _, err := c.post(ctx, "/calling/callConnections/"+url.PathEscape(callConnectionID)+":recognize", body); err != nil {
		return fmt.Errorf("start recognizing: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	u := *c.endpoint
	u.Path = path
	u.RawQuery = "api-version=" + apiVersion

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, payload)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("acs status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// sign applies the ACS HMAC-SHA256 request signature over the date, host and
// content hash, as required by the Communication Services REST API.
func (c *Client) sign(req *http.Request, body []byte) {
	contentHash := sha256.Sum256(body)
	contentHashB64 := base64.StdEncoding.EncodeToString(contentHash[:])
	date := time.Now().UTC().Format(http.TimeFormat)

	stringToSign := strings.Join([]string{
		req.Method,
		req.URL.RequestURI(),
		date + ";" + req.URL.Host + ";" + contentHashB64,
	}, "\n")

	mac := hmac.New(sha256.New, c.accessKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHashB64)
	req.Header.Set("Authorization",
		"HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}
