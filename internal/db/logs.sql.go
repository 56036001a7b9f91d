package db

import (
	"context"
	"database/sql"
)

const createLog = `-- name: CreateLog :exec
INSERT INTO logs (
    id,
    run_id,
    timestamp,
    level,
    message,
    attributes,
    created_at
) VALUES (
    ?, ?, ?, ?, ?, ?, ?
)
`

type CreateLogParams struct {
	ID         string         `json:"id"`
	RunID      sql.NullString `json:"run_id"`
	Timestamp  int64          `json:"timestamp"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes sql.NullString `json:"attributes"`
	CreatedAt  int64          `json:"created_at"`
}

func (q *Queries) CreateLog(ctx context.Context, arg CreateLogParams) error {
	_, err := q.db.ExecContext(ctx, createLog,
		arg.ID,
		arg.RunID,
		arg.Timestamp,
		arg.Level,
		arg.Message,
		arg.Attributes,
		arg.CreatedAt,
	)
	return err
}

const listAllLogs = `-- name: ListAllLogs :many
SELECT id, run_id, timestamp, level, message, attributes, created_at FROM logs
ORDER BY timestamp DESC
LIMIT ?
`

func (q *Queries) ListAllLogs(ctx context.Context, limit int64) ([]Log, error) {
	rows, err := q.db.QueryContext(ctx, listAllLogs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

const listLogsByRun = `-- name: ListLogsByRun :many
SELECT id, run_id, timestamp, level, message, attributes, created_at FROM logs
WHERE run_id = ?
ORDER BY timestamp ASC
`

func (q *Queries) ListLogsByRun(ctx context.Context, runID sql.NullString) ([]Log, error) {
	rows, err := q.db.QueryContext(ctx, listLogsByRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]Log, error) {
	items := []Log{}
	for rows.Next() {
		var i Log
		if err := rows.Scan(
			&i.ID,
			&i.RunID,
			&i.Timestamp,
			&i.Level,
			&i.Message,
			&i.Attributes,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
