package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentdial/agentdial/internal/call"
	"github.com/agentdial/agentdial/internal/reliability"
)

const (
	azureAPIVersion = "2023-12-01-preview"
	holdMarker      = "HOLD_DETECTED"

	azureRetryMax  = 1
	azureRetryBase = 500 * time.Millisecond
	azureRetryCap  = 2 * time.Second
)

// AzureDecider calls an Azure OpenAI chat-completions deployment. PII
// requests come back as a request_pii function call so the model never has
// to produce a value itself.
type AzureDecider struct {
	endpoint   string
	apiKey     string
	deployment string
	client     *http.Client
}

func NewAzureDecider(endpoint, apiKey, deployment string) *AzureDecider {
	if strings.TrimSpace(deployment) == "" {
		deployment = "gpt-4"
	}
	return &AzureDecider{
		endpoint:   strings.TrimSuffix(strings.TrimSpace(endpoint), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		deployment: deployment,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type functionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatRequest struct {
	Messages     []chatMessage  `json:"messages"`
	Functions    []functionSpec `json:"functions,omitempty"`
	FunctionCall string         `json:"function_call,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content      string `json:"content"`
			FunctionCall *struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function_call"`
		} `json:"message"`
	} `json:"choices"`
}

var requestPIIParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"field_name": {
			"type": "string",
			"description": "The specific PII field requested (e.g., 'Date of Birth', 'Address', 'Full Name')"
		}
	},
	"required": ["field_name"]
}`)

func (d *AzureDecider) Decide(ctx context.Context, history []call.Turn) (Action, error) {
	messages := make([]chatMessage, 0, len(history))
	for _, t := range history {
		messages = append(messages, chatMessage{Role: string(t.Role), Content: t.Text})
	}

	payload, err := json.Marshal(chatRequest{
		Messages: messages,
		Functions: []functionSpec{{
			Name:        "request_pii",
			Description: "Request PII from the supervisor when the remote party asks for strictly personal info.",
			Parameters:  requestPIIParameters,
		}},
		FunctionCall: "auto",
	})
	if err != nil {
		return Action{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		d.endpoint, d.deployment, azureAPIVersion)

	body, err := d.post(ctx, url, payload)
	if err != nil {
		return Action{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Action{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Action{Kind: ActionNone}, nil
	}

	msg := parsed.Choices[0].Message
	if fc := msg.FunctionCall; fc != nil && fc.Name == "request_pii" {
		var args struct {
			FieldName string `json:"field_name"`
		}
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return Action{}, fmt.Errorf("decode request_pii arguments: %w", err)
		}
		return Action{Kind: ActionRequestPII, Field: args.FieldName}, nil
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return Action{Kind: ActionNone}, nil
	}
	if strings.Contains(content, holdMarker) {
		return Action{Kind: ActionHold}, nil
	}
	return Action{Kind: ActionSpeak, Text: content}, nil
}

func (d *AzureDecider) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= azureRetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, azureRetryBase, azureRetryCap)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api-key", d.apiKey)

		res, err := d.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("send request: %w", err)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		res.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return body, nil
		}
		lastErr = fmt.Errorf("azure openai status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}
