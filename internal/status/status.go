// Package status carries short user-facing messages about a running flow.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/legal-assistant/wordkit/internal/pubsub"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelDebug Level = "debug"
)

// StatusMessage is one update shown to the user.
type StatusMessage struct {
	Level     Level         `json:"level"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Critical  bool          `json:"critical"`
	Duration  time.Duration `json:"duration,omitempty"`
}

type StatusOption func(*StatusMessage)

// WithCritical marks a message the user has to see even in quiet output.
func WithCritical(critical bool) StatusOption {
	return func(msg *StatusMessage) {
		msg.Critical = critical
	}
}

// WithDuration sets how long a message stays relevant, such as a retry wait.
func WithDuration(d time.Duration) StatusOption {
	return func(msg *StatusMessage) {
		msg.Duration = d
	}
}

type Service interface {
	pubsub.Subscriber[StatusMessage]
	Info(message string, opts ...StatusOption)
	Warn(message string, opts ...StatusOption)
	Error(message string, opts ...StatusOption)
	Debug(message string, opts ...StatusOption)
	Shutdown()
}

type service struct {
	*pubsub.Broker[StatusMessage]
}

func (s *service) Info(message string, opts ...StatusOption) {
	s.publish(LevelInfo, message, opts)
	slog.Info(message)
}

func (s *service) Warn(message string, opts ...StatusOption) {
	s.publish(LevelWarn, message, opts)
	slog.Warn(message)
}

func (s *service) Error(message string, opts ...StatusOption) {
	s.publish(LevelError, message, opts)
	slog.Error(message)
}

func (s *service) Debug(message string, opts ...StatusOption) {
	s.publish(LevelDebug, message, opts)
	slog.Debug(message)
}

func (s *service) publish(level Level, message string, opts []StatusOption) {
	msg := StatusMessage{
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	for _, o := range opts {
		o(&msg)
	}
	s.Publish(pubsub.EventTypeCreated, msg)
}

func NewService() Service {
	return &service{Broker: pubsub.NewBroker[StatusMessage]()}
}

var (
	globalMu      sync.RWMutex
	globalService Service
)

// InitService installs the process-wide status service.
func InitService(svc Service) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalService = svc
}

// GetService returns the process-wide service, creating one on first use.
func GetService() Service {
	globalMu.RLock()
	svc := globalService
	globalMu.RUnlock()
	if svc != nil {
		return svc
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalService == nil {
		globalService = NewService()
	}
	return globalService
}

func Info(message string, opts ...StatusOption) {
	GetService().Info(message, opts...)
}

func Warn(message string, opts ...StatusOption) {
	GetService().Warn(message, opts...)
}

func Error(message string, opts ...StatusOption) {
	GetService().Error(message, opts...)
}

func Debug(message string, opts ...StatusOption) {
	GetService().Debug(message, opts...)
}

func Subscribe(ctx context.Context) <-chan pubsub.Event[StatusMessage] {
	return GetService().Subscribe(ctx)
}
