package db

import (
	"context"
	"database/sql"
)

const runColumns = `id, action, source, model, document, selection_start, selection_end, operations, applied, skipped, failed, duration_ms, error, created_at`

const createRun = `-- name: CreateRun :one
INSERT INTO runs (
    id,
    action,
    source,
    model,
    document,
    selection_start,
    selection_end,
    operations,
    applied,
    skipped,
    failed,
    duration_ms,
    error,
    created_at
) VALUES (
    ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
)
RETURNING ` + runColumns

type CreateRunParams struct {
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

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) (Run, error) {
	row := q.db.QueryRowContext(ctx, createRun,
		arg.ID,
		arg.Action,
		arg.Source,
		arg.Model,
		arg.Document,
		arg.SelectionStart,
		arg.SelectionEnd,
		arg.Operations,
		arg.Applied,
		arg.Skipped,
		arg.Failed,
		arg.DurationMs,
		arg.Error,
		arg.CreatedAt,
	)
	return scanRun(row)
}

const getRun = `-- name: GetRun :one
SELECT ` + runColumns + ` FROM runs
WHERE id = ? LIMIT 1
`

func (q *Queries) GetRun(ctx context.Context, id string) (Run, error) {
	return scanRun(q.db.QueryRowContext(ctx, getRun, id))
}

const listRuns = `-- name: ListRuns :many
SELECT ` + runColumns + ` FROM runs
ORDER BY created_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Run{}
	for rows.Next() {
		i, err := scanRun(rows)
		if err != nil {
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

const deleteRunsBefore = `-- name: DeleteRunsBefore :execrows
DELETE FROM runs
WHERE created_at < ?
`

func (q *Queries) DeleteRunsBefore(ctx context.Context, createdAt int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteRunsBefore, createdAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var i Run
	err := row.Scan(
		&i.ID,
		&i.Action,
		&i.Source,
		&i.Model,
		&i.Document,
		&i.SelectionStart,
		&i.SelectionEnd,
		&i.Operations,
		&i.Applied,
		&i.Skipped,
		&i.Failed,
		&i.DurationMs,
		&i.Error,
		&i.CreatedAt,
	)
	return i, err
}
