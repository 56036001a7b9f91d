// Package history records the outcome of every suggestion flow.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/legal-assistant/wordkit/internal/db"
	"github.com/legal-assistant/wordkit/internal/pubsub"
)

var ErrRunNotFound = errors.New("run not found")

const (
	EventRunCreated pubsub.EventType = "history_run_created"
	EventRunsPruned pubsub.EventType = "history_runs_pruned"
)

const DefaultListLimit = 20

// Run is one completed flow. Operations themselves are never stored.
type Run struct {
	ID             string        `json:"id"`
	Action         string        `json:"action"`
	Source         string        `json:"source"`
	Model          string        `json:"model,omitempty"`
	Document       string        `json:"document,omitempty"`
	SelectionStart int           `json:"selectionStart"`
	SelectionEnd   int           `json:"selectionEnd"`
	Operations     int           `json:"operations"`
	Applied        int           `json:"applied"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

type Service interface {
	pubsub.Subscriber[Run]

	Create(ctx context.Context, run Run) (Run, error)
	Get(ctx context.Context, id string) (Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
	Prune(ctx context.Context, before time.Time) (int, error)
}

type service struct {
	*pubsub.Broker[Run]
	q db.Querier
}

func NewService(q db.Querier) Service {
	return &service{
		Broker: pubsub.NewBroker[Run](),
		q:      q,
	}
}

// Create stores run. An empty ID or CreatedAt is filled in.
func (s *service) Create(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	dbRun, err := s.q.CreateRun(ctx, db.CreateRunParams{
		ID:             run.ID,
		Action:         run.Action,
		Source:         run.Source,
		Model:          run.Model,
		Document:       run.Document,
		SelectionStart: int64(run.SelectionStart),
		SelectionEnd:   int64(run.SelectionEnd),
		Operations:     int64(run.Operations),
		Applied:        int64(run.Applied),
		Skipped:        int64(run.Skipped),
		Failed:         int64(run.Failed),
		DurationMs:     run.Duration.Milliseconds(),
		Error:          sql.NullString{String: run.Error, Valid: run.Error != ""},
		CreatedAt:      run.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return Run{}, fmt.Errorf("db.CreateRun: %w", err)
	}

	created := fromDBItem(dbRun)
	s.Publish(EventRunCreated, created)
	return created, nil
}

func (s *service) Get(ctx context.Context, id string) (Run, error) {
	dbRun, err := s.q.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return Run{}, fmt.Errorf("db.GetRun: %w", err)
	}
	return fromDBItem(dbRun), nil
}

// List returns the most recent runs first.
func (s *service) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	dbRuns, err := s.q.ListRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("db.ListRuns: %w", err)
	}
	runs := make([]Run, len(dbRuns))
	for i, r := range dbRuns {
		runs[i] = fromDBItem(r)
	}
	return runs, nil
}

// Prune deletes runs created before the given time.
func (s *service) Prune(ctx context.Context, before time.Time) (int, error) {
	n, err := s.q.DeleteRunsBefore(ctx, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("db.DeleteRunsBefore: %w", err)
	}
	if n > 0 {
		s.Publish(EventRunsPruned, Run{CreatedAt: before})
	}
	return int(n), nil
}

func fromDBItem(item db.Run) Run {
	return Run{
		ID:             item.ID,
		Action:         item.Action,
		Source:         item.Source,
		Model:          item.Model,
		Document:       item.Document,
		SelectionStart: int(item.SelectionStart),
		SelectionEnd:   int(item.SelectionEnd),
		Operations:     int(item.Operations),
		Applied:        int(item.Applied),
		Skipped:        int(item.Skipped),
		Failed:         int(item.Failed),
		Duration:       time.Duration(item.DurationMs) * time.Millisecond,
		Error:          item.Error.String,
		CreatedAt:      time.UnixMilli(item.CreatedAt),
	}
}
