package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"
	"github.com/resumechat/backend/internal/database"
	"github.com/streadway/amqp"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

// retry retries a function up to `attempts` times with exponential backoff
func retry[T any](attempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for i := 0; i < attempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		wait := time.Duration(500*(i+1)) * time.Millisecond
		time.Sleep(wait)
	}
	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func aggregateAnalysis(results *ResumeAnalyses, resultStr string, hasError bool, errorMsg string) {
	result := ResumeAnalysis{}
	switch {
	case hasError:
		result.IsErrorResult = true
		result.Error = errorMsg

	case strings.TrimSpace(resultStr) == "":
		result.IsErrorResult = true
		result.Error = "empty response from agent"

	default:
		cleaned := cleanJSONReply(resultStr)

		if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
			result.IsErrorResult = true
			result.Error = "json unmarshal error: " + err.Error()
		}
	}

	results.Results = append(results.Results, result)
}

// sessionSummary flattens the per-resume verdicts into the one paragraph the
// chat assistant gets as context. Error entries are skipped.
func sessionSummary(results *ResumeAnalyses) string {
	var summaries []string
	for _, r := range results.Results {
		if r.IsErrorResult || strings.TrimSpace(r.Summary) == "" {
			continue
		}
		summaries = append(summaries, strings.TrimSpace(r.Summary))
	}
	return strings.Join(summaries, " ")
}

// analyzeSession runs the analyzer pipeline for every resume in a session:
// download, text extraction, AI analysis, DB persistence. The extracted text
// is stored back onto the resume row so the chat core can quote it later.
// Failures are retried selectively: network & DB retries only where needed.
func analyzeSession(currentSession Session, workerConfig *WorkerConfig) error {
	ctx := context.Background()
	// get resumes in session
	resumes, err := workerConfig.DB.GetResumesBySession(ctx, currentSession.ID)
	if err != nil {
		return fmt.Errorf("error getting resumes for session: %v, err: %v", currentSession.ID, err)
	}

	results := &ResumeAnalyses{
		SessionID: currentSession.ID,
	}

	// create an agent session
	agentSession, err := workerConfig.AgentSessionService.Create(ctx, &session.CreateRequest{
		AppName:   workerConfig.AgentName,
		UserID:    currentSession.UserEmail,
		SessionID: currentSession.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to create agent session: %w", err)
	}
	// process each resume
	for _, resume := range resumes {

		awsClient := s3.NewFromConfig(*workerConfig.AwsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", workerConfig.R2.AccountID))
		})

		// Retry downloading file (network failures are transient)
		fileBytes, err := retry(3, func() ([]byte, error) {
			return fetchResumeObject(ctx, awsClient, workerConfig.R2.Bucket, resume.ObjectKey)
		})
		if err != nil {
			log.Printf("failed to download %s after retries: %v", resume.ObjectKey, err)
			aggregateAnalysis(results, "", true, fmt.Sprintf("file download error: %v", err))
			continue
		}

		// Extract text from file
		resumeText, err := extractResumeText(resume.Mime, fileBytes)
		if err != nil {
			log.Printf("text extraction failed for %s: %v", resume.ObjectKey, err)
			aggregateAnalysis(results, "", true, fmt.Sprintf("text extraction error: %v", err))
			continue
		}

		// Keep the extracted text around for the chat context block.
		err = workerConfig.DB.UpdateResumeExtractedText(ctx, database.UpdateResumeExtractedTextParams{
			ExtractedText: sql.NullString{String: resumeText, Valid: true},
			ID:            resume.ID,
		})
		if err != nil {
			log.Printf("failed to store extracted text for %s: %v", resume.ObjectKey, err)
		}

		// Build AI input
		msg := fmt.Sprintf(
			"Target Role:\n%s\n\nResume:\n%s",
			currentSession.JobTitle,
			resumeText,
		)

		// Retry the AI agent stream separately (in case of transient agent failures)
		finalOutput, streamErr := retry(2,
			func() (string, error) {
				stream := workerConfig.AgentRunner.Run(ctx, agentSession.Session.UserID(), agentSession.Session.ID(), &genai.Content{
					Role: "user",
					Parts: []*genai.Part{
						{Text: msg},
					},
				}, agent.RunConfig{})

				var output string
				for event, err := range stream {
					if err != nil {
						return "", err
					}
					if event != nil && event.IsFinalResponse() && len(event.Content.Parts) > 0 {
						output = event.Content.Parts[0].Text
					}
				}

				if output == "" {
					return "", fmt.Errorf("empty agent response")
				}
				return output, nil
			})

		if streamErr != nil {
			log.Printf("agent failed for %s after retries: %v", resume.ObjectKey, streamErr)
			aggregateAnalysis(results, "", true, fmt.Sprintf("agent stream error: %v", streamErr))
		} else {
			aggregateAnalysis(results, finalOutput, false, "")
		}
	}
	log.Println("session id: " + agentSession.Session.ID() + " analyzed")
	// Clean up the session.
	err = workerConfig.AgentSessionService.Delete(ctx, &session.DeleteRequest{
		AppName:   agentSession.Session.AppName(),
		UserID:    agentSession.Session.UserID(),
		SessionID: agentSession.Session.ID(),
	})
	if err != nil {
		return fmt.Errorf("failed to delete agent session: %v", err)
	}

	// save final result to db
	resultsJSON, err := json.Marshal(results.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis results: %w", err)
	}

	_, err = retry(3, func() (any, error) {
		return nil, workerConfig.DB.CreateOrUpdateAnalysesResults(ctx, database.CreateOrUpdateAnalysesResultsParams{
			Results:   resultsJSON,
			Summary:   sessionSummary(results),
			SessionID: results.SessionID,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to save analysis result after retries: %w", err)
	}

	return nil
}

func worker(id int, workerConfig *WorkerConfig, wg *sync.WaitGroup) {
	defer wg.Done()
	//    to consume message on the queue
	conn, err := amqp.Dial(workerConfig.RABBITMQUrl)
	if err != nil {
		log.Fatal("error dialling rabbitmq: " + err.Error())
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("error connecting to rabbitmq channel: " + err.Error())
	}
	defer ch.Close()
	_, err = ch.QueueDeclare(
		"sessions", // queue name
		true,       // durable (survives broker restarts)
		false,      // auto-delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		log.Fatalf("Failed to declare queue: %v", err)
	}

	msgs, err := ch.Consume(
		"sessions", // queue name
		"",         // consumer tag
		true,       // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		log.Fatal("error consuming rabbitmq message: " + err.Error())
	}

	for msg := range msgs {
		// Unmarshal the body
		currentSession := Session{}
		err = json.Unmarshal(msg.Body, &currentSession)
		if err != nil {
			log.Printf("error unmarshalling message body. err: %v", err)
			workerConfig.DB.UpdateSessionStatus(context.Background(), database.UpdateSessionStatusParams{
				Status: "failed",
				ID:     currentSession.ID,
			})
			update := map[string]any{
				"session_id": currentSession.ID,
				"status":     "failed",
				"message":    "analysis failed",
				"timestamp":  time.Now(),
			}
			err := publishSessionUpdate(workerConfig.RabbitConn, currentSession.ID.String(), update)
			if err != nil {
				log.Println("failed to publish update:", err)
			}

			continue
		}
		log.Printf("Worker %d processing session. session_id: %s", id+1, currentSession.ID)

		update := map[string]any{
			"session_id": currentSession.ID,
			"status":     "processing",
			"message":    "analysis started",
			"timestamp":  time.Now(),
		}
		err := publishSessionUpdate(workerConfig.RabbitConn, currentSession.ID.String(), update)
		if err != nil {
			log.Println("failed to publish update:", err)
		}
		workerConfig.DB.UpdateSessionStatus(context.Background(), database.UpdateSessionStatusParams{
			Status: "processing",
			ID:     currentSession.ID,
		})

		err = analyzeSession(currentSession, workerConfig)

		if err != nil {
			log.Printf("error running analyzer for session_id: %v. err: %v", currentSession.ID, err)

			workerConfig.DB.UpdateSessionStatus(context.Background(), database.UpdateSessionStatusParams{
				Status: "failed",
				ID:     currentSession.ID,
			})
			update := map[string]any{
				"session_id": currentSession.ID,
				"status":     "failed",
				"message":    "analysis failed",
				"timestamp":  time.Now(),
			}
			err := publishSessionUpdate(workerConfig.RabbitConn, currentSession.ID.String(), update)
			if err != nil {
				log.Println("failed to publish update:", err)
			}
			continue
		}

		workerConfig.DB.UpdateSessionStatus(context.Background(), database.UpdateSessionStatusParams{
			Status: "completed",
			ID:     currentSession.ID,
		})
		update = map[string]any{
			"session_id": currentSession.ID,
			"status":     "completed",
			"message":    "analysis completed",
			"timestamp":  time.Now(),
		}
		err = publishSessionUpdate(workerConfig.RabbitConn, currentSession.ID.String(), update)
		if err != nil {
			log.Println("failed to publish update:", err)
		}
	}

}

func (workerConfig *WorkerConfig) StartConsumerWorkerPool(numWorkers int) {
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := range numWorkers {
		log.Println("worker id ", i+1, "started")
		go worker(i, workerConfig, &wg)
	}
	wg.Wait() // block until all workers finish

}
