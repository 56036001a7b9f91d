package db

import (
	"database/sql"
)

type Log struct {
	ID         string         `json:"id"`
	RunID      sql.NullString `json:"run_id"`
	Timestamp  int64          `json:"timestamp"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes sql.NullString `json:"attributes"`
	CreatedAt  int64          `json:"created_at"`
}

type Run struct {
	ID             string         `json:"id"`
	Action         string         `json:"action"`
	Source         string         `json:"source"`
	Model          string         `json:"model"`
	Document       string         `json:"document"`
	SelectionStart int64          `json:"selection_start"`
	SelectionEnd   int64          `json:"selection_end"`
	Operations     int64          `json:"operations"`
	Applied        int64          `json:"applied"`
	Skipped        int64          `json:"skipped"`
	Failed         int64          `json:"failed"`
	DurationMs     int64          `json:"duration_ms"`
	Error          sql.NullString `json:"error"`
	CreatedAt      int64          `json:"created_at"`
}
