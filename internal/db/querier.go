package db

import (
	"context"
	"database/sql"
)

type Querier interface {
	CreateLog(ctx context.Context, arg CreateLogParams) error
	ListAllLogs(ctx context.Context, limit int64) ([]Log, error)
	ListLogsByRun(ctx context.Context, runID sql.NullString) ([]Log, error)
	CreateRun(ctx context.Context, arg CreateRunParams) (Run, error)
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int64) ([]Run, error)
	DeleteRunsBefore(ctx context.Context, createdAt int64) (int64, error)
}

var _ Querier = (*Queries)(nil)
