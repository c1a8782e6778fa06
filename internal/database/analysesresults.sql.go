package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

const createOrUpdateAnalysesResults = `-- name: CreateOrUpdateAnalysesResults :exec
INSERT INTO analyses_results (
results, summary, session_id)
VALUES ( $1, $2, $3)
ON CONFLICT (session_id)
DO UPDATE SET
    results = EXCLUDED.results,
    summary = EXCLUDED.summary,
    updated_at = CURRENT_TIMESTAMP
`

type CreateOrUpdateAnalysesResultsParams struct {
	Results   json.RawMessage
	Summary   string
	SessionID uuid.UUID
}

func (q *Queries) CreateOrUpdateAnalysesResults(ctx context.Context, arg CreateOrUpdateAnalysesResultsParams) error {
	_, err := q.db.ExecContext(ctx, createOrUpdateAnalysesResults, arg.Results, arg.Summary, arg.SessionID)
	return err
}

const getAnalysisSummary = `-- name: GetAnalysisSummary :one
SELECT summary FROM analyses_results WHERE session_id=$1
`

func (q *Queries) GetAnalysisSummary(ctx context.Context, sessionID uuid.UUID) (string, error) {
	row := q.db.QueryRowContext(ctx, getAnalysisSummary, sessionID)
	var summary string
	err := row.Scan(&summary)
	return summary, err
}
