package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/resumechat/backend/internal/database"
	"github.com/streadway/amqp"
)

const maxChatBodyBytes = 64 * 1024

// ChatServer exposes the conversation core over HTTP. Conversations live in
// memory only, keyed by session ID; the database is read for the resume
// context and never written from here.
type ChatServer struct {
	db        *database.Queries
	completer Completer
	rabbit    *amqp.Connection

	mu    sync.Mutex
	convs map[uuid.UUID]*Conversation
}

func NewChatServer(db *database.Queries, completer Completer, rabbit *amqp.Connection) *ChatServer {
	return &ChatServer{
		db:        db,
		completer: completer,
		rabbit:    rabbit,
		convs:     make(map[uuid.UUID]*Conversation),
	}
}

func (s *ChatServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleSubmit)
	mux.HandleFunc("GET /api/chat", s.handleHistory)
	mux.HandleFunc("POST /api/chat/reset", s.handleReset)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *ChatServer) conversation(sessionID uuid.UUID) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[sessionID]
	if !ok {
		conv = NewConversation(s.completer)
		s.convs[sessionID] = conv
	}
	return conv
}

func (s *ChatServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == uuid.Nil {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	conv := s.conversation(req.SessionID)
	rc := s.loadResumeContext(r.Context(), req.SessionID)
	accepted := conv.Submit(r.Context(), req.Message, rc)
	if accepted && s.rabbit != nil {
		if err := publishSessionUpdate(s.rabbit, req.SessionID.String(), map[string]any{
			"session_id": req.SessionID,
			"event":      "chat_turn",
			"timestamp":  time.Now(),
		}); err != nil {
			log.Println("failed to publish chat update:", err)
		}
	}

	writeJSON(w, ChatResponse{Accepted: accepted, Turns: renderTurns(conv.Snapshot())})
}

func (s *ChatServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.URL.Query().Get("session_id"))
	if err != nil {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	conv := s.conversation(sessionID)
	writeJSON(w, ChatResponse{Accepted: true, Turns: renderTurns(conv.Snapshot())})
}

// handleReset is the external context clear: the host application calls it on
// logout and the conversation goes back to the single greeting turn.
func (s *ChatServer) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == uuid.Nil {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	conv := s.conversation(req.SessionID)
	conv.Reset()
	writeJSON(w, ChatResponse{Accepted: true, Turns: renderTurns(conv.Snapshot())})
}

func (s *ChatServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// loadResumeContext gathers whatever the host application knows about the
// session. Missing rows are fine: a user who has not uploaded a resume yet
// still gets a working chat, just without the context block.
func (s *ChatServer) loadResumeContext(ctx context.Context, sessionID uuid.UUID) ResumeContext {
	var rc ResumeContext
	if s.db == nil {
		return rc
	}

	session, err := s.db.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("loading session %s: %v", sessionID, err)
		}
		return rc
	}
	rc.UserEmail = session.UserEmail

	resumes, err := s.db.GetResumesBySession(ctx, sessionID)
	if err != nil {
		log.Printf("loading resumes for session %s: %v", sessionID, err)
	}
	for _, resume := range resumes {
		if resume.ExtractedText.Valid && resume.ExtractedText.String != "" {
			rc.ResumeText = resume.ExtractedText.String
			break
		}
	}

	summary, err := s.db.GetAnalysisSummary(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("loading analysis summary for session %s: %v", sessionID, err)
		}
		return rc
	}
	rc.AnalysisSummary = summary
	return rc
}

func renderTurns(turns []Turn) []TurnView {
	views := make([]TurnView, len(turns))
	for i, turn := range turns {
		views[i] = TurnView{
			Role:    string(turn.Role),
			Text:    turn.Text,
			HTML:    RenderMarkdown(turn.Text),
			Pending: turn.Pending,
		}
	}
	return views
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("failed to encode response:", err)
	}
}
