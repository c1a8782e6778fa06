package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChatServer(t *testing.T, completer Completer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewChatServer(nil, completer, nil).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeChatResponse(t *testing.T, resp *http.Response) ChatResponse {
	t.Helper()
	var out ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestChatEndpointSubmitsAndRenders(t *testing.T) {
	stub := &stubCompleter{reply: "*Nice* resume"}
	srv := newTestChatServer(t, stub)
	sessionID := uuid.New()

	resp := postJSON(t, srv.URL+"/api/chat", ChatRequest{SessionID: sessionID, Message: "thoughts?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeChatResponse(t, resp)
	assert.True(t, out.Accepted)
	require.Len(t, out.Turns, 3)
	assert.Equal(t, "assistant", out.Turns[0].Role)
	assert.Equal(t, "user", out.Turns[1].Role)
	assert.Equal(t, "thoughts?", out.Turns[1].Text)
	assert.Equal(t, "*Nice* resume", out.Turns[2].Text)
	assert.Equal(t, "<strong>Nice</strong> resume", out.Turns[2].HTML)
}

func TestChatEndpointRejectsBlankMessage(t *testing.T) {
	stub := &stubCompleter{reply: "unused"}
	srv := newTestChatServer(t, stub)

	resp := postJSON(t, srv.URL+"/api/chat", ChatRequest{SessionID: uuid.New(), Message: "   "})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeChatResponse(t, resp)
	assert.False(t, out.Accepted)
	assert.Len(t, out.Turns, 1)
	assert.Zero(t, stub.callCount())
}

func TestChatEndpointRequiresSessionID(t *testing.T) {
	srv := newTestChatServer(t, &stubCompleter{})

	resp := postJSON(t, srv.URL+"/api/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatEndpointRejectsInvalidBody(t *testing.T) {
	srv := newTestChatServer(t, &stubCompleter{})

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryEndpointStartsWithGreeting(t *testing.T) {
	srv := newTestChatServer(t, &stubCompleter{})
	sessionID := uuid.New()

	resp, err := http.Get(fmt.Sprintf("%s/api/chat?session_id=%s", srv.URL, sessionID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeChatResponse(t, resp)
	require.Len(t, out.Turns, 1)
	assert.Equal(t, greetingMessage, out.Turns[0].Text)
}

func TestHistoryEndpointIsPerSession(t *testing.T) {
	stub := &stubCompleter{reply: "ok"}
	srv := newTestChatServer(t, stub)
	first := uuid.New()
	second := uuid.New()

	postJSON(t, srv.URL+"/api/chat", ChatRequest{SessionID: first, Message: "hi"})

	resp, err := http.Get(fmt.Sprintf("%s/api/chat?session_id=%s", srv.URL, second))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := decodeChatResponse(t, resp)
	assert.Len(t, out.Turns, 1)
}

func TestResetEndpointRestoresGreeting(t *testing.T) {
	stub := &stubCompleter{reply: "ok"}
	srv := newTestChatServer(t, stub)
	sessionID := uuid.New()

	postJSON(t, srv.URL+"/api/chat", ChatRequest{SessionID: sessionID, Message: "hi"})

	resp := postJSON(t, srv.URL+"/api/chat/reset", ChatRequest{SessionID: sessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeChatResponse(t, resp)
	require.Len(t, out.Turns, 1)
	assert.Equal(t, greetingMessage, out.Turns[0].Text)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestChatServer(t, &stubCompleter{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
