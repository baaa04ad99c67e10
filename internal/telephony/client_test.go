package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testConnectionString(endpoint string) string {
	key := base64.StdEncoding.EncodeToString([]byte("test-access-key"))
	return "endpoint=" + endpoint + ";accesskey=" + key
}

func TestNewClientParsesConnectionString(t *testing.T) {
	c, err := NewClient(testConnectionString("https://res.communication.azure.com/"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.endpoint.Host != "res.communication.azure.com" {
		t.Fatalf("endpoint host = %q", c.endpoint.Host)
	}
}

func TestNewClientRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"endpoint=https://res.communication.azure.com/",
		"accesskey=" + base64.StdEncoding.EncodeToString([]byte("k")),
		"endpoint=https://x;accesskey=%%%not-base64%%%",
		"garbage",
	}
	for _, cs := range cases {
		if _, err := NewClient(cs); err == nil {
			t.Fatalf("NewClient(%q) expected error", cs)
		}
	}
}

func TestCreateCallSendsSignedRequest(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody createCallRequest
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"callConnectionId":"cc-42"}`))
	}))
	defer srv.Close()

	c, err := NewClient(testConnectionString(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	id, err := c.CreateCall(context.Background(),
		"+15550001111", "+15552223333",
		"https://cb.example/api/callbacks", "https://speech.example")
	if err != nil {
		t.Fatalf("CreateCall() error = %v", err)
	}
	if id != "cc-42" {
		t.Fatalf("call connection id = %q, want cc-42", id)
	}

	if gotPath != "/calling/callConnections" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "api-version="+apiVersion {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(gotBody.Targets) != 1 || gotBody.Targets[0].PhoneNumber.Value != "+15550001111" {
		t.Fatalf("targets = %+v", gotBody.Targets)
	}
	if gotBody.SourceCallerIDNumber.Value != "+15552223333" {
		t.Fatalf("source = %+v", gotBody.SourceCallerIDNumber)
	}
	if gotBody.CallIntelligenceOptions == nil ||
		gotBody.CallIntelligenceOptions.CognitiveServicesEndpoint != "https://speech.example" {
		t.Fatalf("call intelligence options = %+v", gotBody.CallIntelligenceOptions)
	}

	if gotHeaders.Get("x-ms-date") == "" || gotHeaders.Get("x-ms-content-sha256") == "" {
		t.Fatalf("signing headers missing: %v", gotHeaders)
	}
	auth := gotHeaders.Get("Authorization")
	if !strings.HasPrefix(auth, "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature=") {
		t.Fatalf("authorization header = %q", auth)
	}
}

func TestPlaySendsTextSource(t *testing.T) {
	var gotPath string
	var gotBody playRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(testConnectionString(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := c.Play(context.Background(), "cc-1", "Hello there", "en-US-AvaMultilingualNeural"); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if gotPath != "/calling/callConnections/cc-1:play" {
		t.Fatalf("path = %q", gotPath)
	}
	if len(gotBody.PlaySources) != 1 || gotBody.PlaySources[0].Kind != "text" {
		t.Fatalf("play sources = %+v", gotBody.PlaySources)
	}
	src := gotBody.PlaySources[0].Text
	if src.Text != "Hello there" || src.VoiceName != "en-US-AvaMultilingualNeural" {
		t.Fatalf("text source = %+v", src)
	}
}

func TestStartRecognizingTargetsParticipant(t *testing.T) {
	var gotPath string
	var gotBody recognizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(testConnectionString(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := c.StartRecognizing(context.Background(), "cc-1", "+15550001111"); err != nil {
		t.Fatalf("StartRecognizing() error = %v", err)
	}
	if gotPath != "/calling/callConnections/cc-1:recognize" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.RecognizeInputType != "speech" {
		t.Fatalf("recognize input type = %q", gotBody.RecognizeInputType)
	}
	target := gotBody.RecognizeOptions.TargetParticipant
	if target.PhoneNumber == nil || target.PhoneNumber.Value != "+15550001111" {
		t.Fatalf("target participant = %+v", target)
	}
}

func TestClientSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"8523","message":"call not found"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(testConnectionString(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	err = c.Play(context.Background(), "cc-gone", "hi", "voice")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("Play() error = %v, want status in message", err)
	}
}
