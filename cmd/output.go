package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"

	"github.com/legal-assistant/wordkit/internal/logging"
	"github.com/legal-assistant/wordkit/internal/status"
)

// syncWriter is a thread-safe writer that prevents interleaved output
type syncWriter struct {
	w  io.Writer
	mu sync.Mutex
}

// Write implements io.Writer
func (sw *syncWriter) Write(p []byte) (n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}

// newSyncWriter creates a new synchronized writer
func newSyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

// setupVerboseLogging sends slog records to w through charmbracelet/log
// instead of the log database.
func setupVerboseLogging(w io.Writer) {
	charmLogger := charmlog.NewWithOptions(newSyncWriter(w), charmlog.Options{
		Level:           charmlog.DebugLevel,
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "wordkit",
	})
	charmlog.SetDefault(charmLogger)
	slog.SetDefault(slog.New(logging.NewRunIDHandler(charmLogger)))
	charmLogger.Info("Verbose logging enabled")
}

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#58A6FF"})
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"})
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"})
)

// statusPrinter shows status messages on the terminal as they happen and
// still publishes them to subscribers.
type statusPrinter struct {
	status.Service
	w     io.Writer
	quiet bool
	mu    sync.Mutex
}

func newStatusPrinter(w io.Writer, quiet bool) *statusPrinter {
	return &statusPrinter{Service: status.NewService(), w: w, quiet: quiet}
}

func (p *statusPrinter) Info(message string, opts ...status.StatusOption) {
	p.print(status.LevelInfo, message, opts)
	p.Service.Info(message, opts...)
}

func (p *statusPrinter) Warn(message string, opts ...status.StatusOption) {
	p.print(status.LevelWarn, message, opts)
	p.Service.Warn(message, opts...)
}

func (p *statusPrinter) Error(message string, opts ...status.StatusOption) {
	p.print(status.LevelError, message, opts)
	p.Service.Error(message, opts...)
}

func (p *statusPrinter) print(level status.Level, message string, opts []status.StatusOption) {
	msg := status.StatusMessage{Level: level, Message: message}
	for _, o := range opts {
		o(&msg)
	}
	if p.quiet && !msg.Critical && level != status.LevelError {
		return
	}

	var line string
	switch level {
	case status.LevelWarn:
		line = warnStyle.Render("! " + message)
	case status.LevelError:
		line = errorStyle.Render("✗ " + message)
	default:
		line = infoStyle.Render("• " + message)
	}
	if msg.Duration > 0 {
		line += fmt.Sprintf(" (%s)", msg.Duration.Round(time.Second))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

// checkStdinPipe reads stdin when data is piped in.
func checkStdinPipe() (string, bool) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", false
	}
	if stat.Mode()&os.ModeNamedPipe == 0 {
		return "", false
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil || len(data) == 0 {
		return "", false
	}
	return strings.TrimRight(string(data), "\r\n"), true
}
