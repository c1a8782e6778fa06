package main

import (
	"context"
	"log"
	"strings"
	"sync"
)

const (
	greetingMessage = "Hi! I'm your resume assistant. Ask me anything about your resume, your analysis results, or your job search."

	// fallbackMessage replaces the assistant turn whenever a completion fails,
	// whatever the failure kind. The real cause goes to the log only.
	fallbackMessage = "Sorry, I couldn't come up with an answer just now. Please try again in a moment."

	// typingPlaceholder is the transient text shown while a reply is pending.
	typingPlaceholder = "..."
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are append-only; the single
// pending placeholder is the only turn ever replaced, and it is always the
// last element while present.
type Turn struct {
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Pending bool   `json:"pending,omitempty"`
}

// Completer produces an assistant reply from a system instruction and the
// conversation so far. The chat core depends only on this interface, so the
// credential and transport details stay out of the conversation logic.
type Completer interface {
	Complete(ctx context.Context, systemText string, turns []Turn) (string, error)
}

// Conversation owns the ordered turn history for one chat session and
// mediates every mutation. Submissions are strictly serialized: while one is
// in flight, further submissions are dropped, not queued.
type Conversation struct {
	mu       sync.Mutex
	turns    []Turn
	inFlight bool
	// gen bumps on every Reset so a reply that outlives the conversation it
	// was asked in is dropped instead of landing in the fresh history.
	gen int

	completer Completer
}

func NewConversation(completer Completer) *Conversation {
	c := &Conversation{completer: completer}
	c.Reset()
	return c
}

// Reset reinitializes the history to the single greeting turn. Called on
// creation and whenever the external context is cleared (logout, session
// close).
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = []Turn{{Role: RoleAssistant, Text: greetingMessage}}
	c.inFlight = false
	c.gen++
}

// Snapshot returns a copy of the history for rendering. Callers never see the
// underlying slice.
func (c *Conversation) Snapshot() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Submit appends a user turn and drives it through the completer. It reports
// whether the submission was accepted: blank input and submissions attempted
// while another is outstanding are no-ops.
//
// On acceptance the history gains the user turn plus a pending placeholder;
// when the completer returns, the placeholder is replaced in place with the
// reply, or with the fallback text if the completion failed.
func (c *Conversation) Submit(ctx context.Context, text string, rc ResumeContext) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return false
	}
	c.inFlight = true
	gen := c.gen
	c.turns = append(c.turns, Turn{Role: RoleUser, Text: text})
	c.turns = append(c.turns, Turn{Role: RoleAssistant, Text: typingPlaceholder, Pending: true})
	// History sent to the model excludes the placeholder.
	history := make([]Turn, len(c.turns)-1)
	copy(history, c.turns[:len(c.turns)-1])
	c.mu.Unlock()

	reply, err := c.completer.Complete(ctx, systemInstruction(rc), history)
	if err != nil {
		log.Printf("chat completion failed: %v", err)
		reply = fallbackMessage
	}

	c.mu.Lock()
	if c.gen == gen {
		c.turns[len(c.turns)-1] = Turn{Role: RoleAssistant, Text: reply}
		c.inFlight = false
	}
	c.mu.Unlock()
	return true
}
