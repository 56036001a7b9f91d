// Package logging persists slog records to the database so a run's log can
// be inspected after the fact.
package logging

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
	"github.com/google/uuid"

	"github.com/legal-assistant/wordkit/internal/db"
	"github.com/legal-assistant/wordkit/internal/pubsub"
)

type Log struct {
	ID         string            `json:"id"`
	RunID      string            `json:"runId,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Level      string            `json:"level"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

const (
	EventLogCreated pubsub.EventType = "log_created"
)

type Service interface {
	pubsub.Subscriber[Log]

	Create(ctx context.Context, timestamp time.Time, level, message string, attributes map[string]string, runID string) error
	ListByRun(ctx context.Context, runID string) ([]Log, error)
	ListAll(ctx context.Context, limit int) ([]Log, error)
}

type service struct {
	q      db.Querier
	broker *pubsub.Broker[Log]
	// pending tracks writes started by the slog writer
	pending sync.WaitGroup
}

var (
	globalMu             sync.RWMutex
	globalLoggingService *service
)

func NewService(q db.Querier) Service {
	return &service{
		q:      q,
		broker: pubsub.NewBroker[Log](),
	}
}

func InitService(dbConn *sql.DB) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLoggingService != nil {
		return fmt.Errorf("logging service already initialized")
	}
	globalLoggingService = NewService(db.New(dbConn)).(*service)
	return nil
}

func GetService() Service {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLoggingService == nil {
		panic("logging service not initialized. Call logging.InitService() first.")
	}
	return globalLoggingService
}

func current() *service {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLoggingService
}

// Flush waits for log records still being written, up to timeout.
func Flush(timeout time.Duration) {
	svc := current()
	if svc == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		svc.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

func (s *service) Create(ctx context.Context, timestamp time.Time, level, message string, attributes map[string]string, runID string) error {
	if level == "" {
		level = "info"
	}

	var attributesJSON sql.NullString
	if len(attributes) > 0 {
		attributesBytes, err := json.Marshal(attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal log attributes: %w", err)
		}
		attributesJSON = sql.NullString{String: string(attributesBytes), Valid: true}
	}

	now := time.Now()
	params := db.CreateLogParams{
		ID:         uuid.New().String(),
		RunID:      sql.NullString{String: runID, Valid: runID != ""},
		Timestamp:  timestamp.UnixMilli(),
		Level:      level,
		Message:    message,
		Attributes: attributesJSON,
		CreatedAt:  now.UnixMilli(),
	}
	if err := s.q.CreateLog(ctx, params); err != nil {
		return fmt.Errorf("db.CreateLog: %w", err)
	}

	s.broker.Publish(EventLogCreated, Log{
		ID:         params.ID,
		RunID:      runID,
		Timestamp:  time.UnixMilli(params.Timestamp),
		Level:      level,
		Message:    message,
		Attributes: attributes,
		CreatedAt:  time.UnixMilli(params.CreatedAt),
	})
	return nil
}

func (s *service) ListByRun(ctx context.Context, runID string) ([]Log, error) {
	dbLogs, err := s.q.ListLogsByRun(ctx, sql.NullString{String: runID, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("db.ListLogsByRun: %w", err)
	}
	logs := make([]Log, len(dbLogs))
	for i, item := range dbLogs {
		logs[i] = s.fromDBItem(item)
	}
	return logs, nil
}

func (s *service) ListAll(ctx context.Context, limit int) ([]Log, error) {
	dbLogs, err := s.q.ListAllLogs(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("db.ListAllLogs: %w", err)
	}
	logs := make([]Log, len(dbLogs))
	for i, item := range dbLogs {
		logs[i] = s.fromDBItem(item)
	}
	return logs, nil
}

func (s *service) Subscribe(ctx context.Context) <-chan pubsub.Event[Log] {
	return s.broker.Subscribe(ctx)
}

func (s *service) fromDBItem(item db.Log) Log {
	log := Log{
		ID:         item.ID,
		RunID:      item.RunID.String,
		Timestamp:  time.UnixMilli(item.Timestamp),
		Level:      item.Level,
		Message:    item.Message,
		CreatedAt:  time.UnixMilli(item.CreatedAt),
		Attributes: make(map[string]string),
	}
	if item.Attributes.Valid && item.Attributes.String != "" {
		if err := json.Unmarshal([]byte(item.Attributes.String), &log.Attributes); err != nil {
			slog.Error("Failed to unmarshal log attributes", "log_id", item.ID, "error", err)
			log.Attributes = make(map[string]string)
		}
	}
	return log
}

func ListByRun(ctx context.Context, runID string) ([]Log, error) {
	return GetService().ListByRun(ctx, runID)
}

func ListAll(ctx context.Context, limit int) ([]Log, error) {
	return GetService().ListAll(ctx, limit)
}

func Subscribe(ctx context.Context) <-chan pubsub.Event[Log] {
	return GetService().Subscribe(ctx)
}

type slogWriter struct{}

func (sw *slogWriter) Write(p []byte) (n int, err error) {
	// time=2025-03-01T12:34:56.789+01:00 level=INFO msg="operation done" run_id=xyz index=0
	d := logfmt.NewDecoder(bytes.NewReader(p))
	for d.ScanRecord() {
		var (
			timestamp    time.Time
			level        string
			message      string
			runID        string
			hasTimestamp bool
		)
		attributes := make(map[string]string)

		for d.ScanKeyval() {
			key := string(d.Key())
			value := string(d.Value())

			switch key {
			case "time":
				parsed, timeErr := time.Parse(time.RFC3339Nano, value)
				if timeErr != nil {
					parsed = time.Now().UTC()
				}
				timestamp = parsed
				hasTimestamp = true
			case "level":
				level = strings.ToLower(value)
			case "msg", "message":
				message = value
			case RunIDKey:
				runID = value
			default:
				attributes[key] = value
			}
		}
		if d.Err() != nil {
			return len(p), fmt.Errorf("logfmt.ScanRecord: %w", d.Err())
		}
		if !hasTimestamp {
			timestamp = time.Now()
		}

		svc := current()
		if svc == nil {
			continue
		}
		svc.pending.Add(1)
		// slog must not block on the database
		go func(timestamp time.Time, level, message string, attributes map[string]string, runID string) {
			defer svc.pending.Done()
			if err := svc.Create(context.Background(), timestamp, level, message, attributes, runID); err != nil {
				fmt.Fprintf(os.Stderr, "ERROR [logging.slogWriter]: failed to persist log: %v\n", err)
			}
		}(timestamp, level, message, attributes, runID)
	}
	if d.Err() != nil {
		return len(p), fmt.Errorf("logfmt.ScanRecord final: %w", d.Err())
	}
	return len(p), nil
}

// NewSlogWriter returns a writer for slog.TextHandler that stores each
// record through the logging service.
func NewSlogWriter() io.Writer {
	return &slogWriter{}
}

// RecoverPanic logs a panic, writes its stack trace to a file in the working
// directory and runs cleanup. Use it deferred.
func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		errorMsg := fmt.Sprintf("Panic in %s: %v", name, r)
		slog.Error(errorMsg)

		timestamp := time.Now().Format("20060102-150405")
		filename := fmt.Sprintf("wordkit-panic-%s-%s.log", name, timestamp)

		file, err := os.Create(filename)
		if err != nil {
			slog.Error(fmt.Sprintf("Failed to create panic log file '%s': %v", filename, err))
		} else {
			defer file.Close()
			fmt.Fprintf(file, "Panic in %s: %v\n\n", name, r)
			fmt.Fprintf(file, "Time: %s\n\n", time.Now().Format(time.RFC3339))
			fmt.Fprintf(file, "Stack Trace:\n%s\n", string(debug.Stack()))
			slog.Info(fmt.Sprintf("Panic details written to %s", filename))
		}

		if cleanup != nil {
			cleanup()
		}
	}
}
