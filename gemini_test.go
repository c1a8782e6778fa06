package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newTestGeminiClient(t *testing.T, handler http.Handler) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	return &GeminiClient{apiKey: "test-key", model: "gemini-test", client: client}
}

func withoutBackoff(t *testing.T) {
	t.Helper()
	backoff := completionBackoff
	completionBackoff = 0
	t.Cleanup(func() { completionBackoff = backoff })
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestCompleteJoinsResponseTextParts(t *testing.T) {
	g := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi"},{"text":"there"}]}}]}`))
	}))

	got, err := g.Complete(context.Background(), "system", []Turn{{Role: RoleUser, Text: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got)
}

func TestCompleteServiceErrorIsLoggedAndRetried(t *testing.T) {
	withoutBackoff(t)
	buf := captureLog(t)

	var calls atomic.Int32
	g := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))

	_, err := g.Complete(context.Background(), "system", []Turn{{Role: RoleUser, Text: "hello"}})
	require.Error(t, err)

	var ce *completionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, failureService, ce.kind)
	// The detail reaches the log, never the caller-facing reply.
	assert.Contains(t, buf.String(), "quota exceeded")
	assert.Equal(t, int32(completionAttempts), calls.Load())
}

func TestCompleteMalformedResponseDoesNotRetry(t *testing.T) {
	withoutBackoff(t)
	captureLog(t)

	var calls atomic.Int32
	g := newTestGeminiClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))

	_, err := g.Complete(context.Background(), "system", []Turn{{Role: RoleUser, Text: "hello"}})
	require.Error(t, err)

	var ce *completionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, failureMalformed, ce.kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteTransportFailure(t *testing.T) {
	withoutBackoff(t)
	captureLog(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // connection refused from here on

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: url},
		HTTPClient:  &http.Client{Timeout: time.Second},
	})
	require.NoError(t, err)
	g := &GeminiClient{apiKey: "test-key", model: "gemini-test", client: client}

	_, err = g.Complete(context.Background(), "system", []Turn{{Role: RoleUser, Text: "hello"}})
	require.Error(t, err)

	var ce *completionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, failureTransport, ce.kind)
}

func TestCompleteMissingKeyShortCircuits(t *testing.T) {
	captureLog(t)

	for _, key := range []string{"", apiKeyPlaceholder} {
		g := &GeminiClient{apiKey: key, model: "gemini-test"}
		_, err := g.Complete(context.Background(), "system", nil)
		require.Error(t, err)

		var ce *completionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, failureConfiguration, ce.kind)
	}
}

func TestTransientCoversOnlyServiceAndTransport(t *testing.T) {
	assert.True(t, transient(&completionError{kind: failureService, err: errors.New("x")}))
	assert.True(t, transient(&completionError{kind: failureTransport, err: errors.New("x")}))
	assert.False(t, transient(&completionError{kind: failureConfiguration, err: errors.New("x")}))
	assert.False(t, transient(&completionError{kind: failureMalformed, err: errors.New("x")}))
	assert.False(t, transient(errors.New("plain")))
}

func TestToContentsMapsRolesAndDropsPlaceholder(t *testing.T) {
	turns := []Turn{
		{Role: RoleAssistant, Text: greetingMessage},
		{Role: RoleUser, Text: "hello"},
		{Role: RoleAssistant, Text: typingPlaceholder, Pending: true},
	}

	contents := toContents(turns)
	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleModel), contents[0].Role)
	assert.Equal(t, greetingMessage, contents[0].Parts[0].Text)
	assert.Equal(t, string(genai.RoleUser), contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}
