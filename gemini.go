package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

const chatModel = "gemini-2.5-flash"

// failureKind classifies why a completion failed. Every kind degrades to the
// same fallback turn for the user; the kind only decides what gets logged and
// whether a retry is worth attempting.
type failureKind string

const (
	failureConfiguration failureKind = "configuration"
	failureService       failureKind = "service"
	failureMalformed     failureKind = "malformed"
	failureTransport     failureKind = "transport"
)

type completionError struct {
	kind failureKind
	err  error
}

func (e *completionError) Error() string {
	return fmt.Sprintf("%s error: %v", e.kind, e.err)
}

func (e *completionError) Unwrap() error { return e.err }

// transient reports whether the failure is worth retrying. Service and
// network failures may pass on a second attempt; a missing key or a malformed
// body will not.
func transient(err error) bool {
	var ce *completionError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.kind == failureService || ce.kind == failureTransport
}

var (
	completionAttempts = 2
	completionBackoff  = 500 * time.Millisecond
)

// GeminiClient sends chat completions to the Gemini API. It implements
// Completer. The client tolerates a missing credential: every Complete call
// then short-circuits with a configuration error before touching the network,
// so the chat degrades instead of crashing.
type GeminiClient struct {
	apiKey string
	model  string
	client *genai.Client
}

// apiKeyPlaceholder is the value shipped in env templates; treat it the same
// as no key at all.
const apiKeyPlaceholder = "YOUR_GEMINI_API_KEY"

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	g := &GeminiClient{apiKey: apiKey, model: model}
	if !g.configured() {
		log.Println("GOOGLE_API_KEY missing or placeholder, chat will answer with the fallback message only")
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GeminiClient) configured() bool {
	return g.apiKey != "" && g.apiKey != apiKeyPlaceholder
}

// Complete implements Completer. Service and transport failures get one
// bounded retry with backoff; configuration and malformed-response failures
// resolve immediately. The caller substitutes the fallback text, so errors
// returned here are diagnostic only.
func (g *GeminiClient) Complete(ctx context.Context, systemText string, turns []Turn) (string, error) {
	if !g.configured() || g.client == nil {
		err := &completionError{kind: failureConfiguration, err: errors.New("gemini api key missing or placeholder")}
		log.Printf("chat transport: %v", err)
		return "", err
	}

	contents := toContents(turns)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemText}},
		},
	}

	var lastErr error
	for attempt := 0; attempt < completionAttempts; attempt++ {
		text, err := g.generate(ctx, contents, cfg)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !transient(err) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * completionBackoff)
	}
	log.Printf("chat transport: %v", lastErr)
	return "", lastErr
}

func (g *GeminiClient) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &completionError{kind: failureService, err: err}
		}
		return "", &completionError{kind: failureTransport, err: err}
	}
	text, ok := candidateText(resp)
	if !ok {
		return "", &completionError{kind: failureMalformed, err: errors.New("response carried no text candidate")}
	}
	return text, nil
}

// candidateText joins every text part of the first candidate with a single
// space. A response with no text part at all counts as malformed.
func candidateText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// toContents converts turns to the wire shape: user turns keep the user role,
// assistant turns become model turns, and the pending placeholder never
// leaves the process.
func toContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		if turn.Pending {
			continue
		}
		role := string(genai.RoleUser)
		if turn.Role == RoleAssistant {
			role = string(genai.RoleModel)
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	return contents
}
