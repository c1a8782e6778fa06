package main

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/resumechat/backend/internal/database"
	"github.com/streadway/amqp"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
)

type R2Config struct {
	AccountID string
	Bucket    string
	AccessKey string
	SecretKey string
}

type WorkerConfig struct {
	DB                  *database.Queries
	R2                  *R2Config
	AwsConfig           *aws.Config
	RabbitConn          *amqp.Connection
	RABBITMQUrl         string
	AgentRunner         *runner.Runner
	AgentSessionService session.Service
	AgentName           string
}

// ResumeAnalysis is the structured verdict the analyzer agent returns for a
// single uploaded resume.
type ResumeAnalysis struct {
	Score      int      `json:"score"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Summary    string   `json:"summary"`
	Advice     string   `json:"advice"`
	// Error result entry
	IsErrorResult bool   `json:"is_error_result"`
	Error         string `json:"error,omitempty"`
}

type ResumeAnalyses struct {
	ID        uuid.UUID        `json:"id"`
	Results   []ResumeAnalysis `json:"results" db:"results"`
	Summary   string           `json:"summary"`
	CreatedAt time.Time        `json:"created_at"`
	SessionID uuid.UUID        `json:"session_id"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Session struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserEmail string    `json:"user_email"`
	Status    string    `json:"status"`
	JobTitle  string    `json:"job_title"`
}

// ResumeContext is the read-only record the host side of the application
// supplies to the chat core. The core never mutates it; empty strings stand in
// for absent values.
type ResumeContext struct {
	UserEmail       string
	ResumeText      string
	AnalysisSummary string
}

// Chat API payloads.

type ChatRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
}

type TurnView struct {
	Role    string `json:"role"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
	Pending bool   `json:"pending,omitempty"`
}

type ChatResponse struct {
	Accepted bool       `json:"accepted"`
	Turns    []TurnView `json:"turns"`
}
