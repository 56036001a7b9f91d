// Package apply carries edit operations out against a host document, one at
// a time and in order.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/legal-assistant/wordkit/internal/document"
	"github.com/legal-assistant/wordkit/internal/operation"
	"github.com/legal-assistant/wordkit/internal/pubsub"
)

var (
	// ErrNotFound is logged when a quote has no match in the selection. It
	// never fails an operation.
	ErrNotFound  = errors.New("quote not found in selection")
	ErrHostError = errors.New("host error")
)

const DefaultHighlightColor = "Yellow"

// HostError wraps a failed host call.
type HostError struct {
	Call string
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s: %v", e.Call, e.Err)
}

func (e *HostError) Unwrap() []error {
	return []error{ErrHostError, e.Err}
}

func hostError(call string, err error) error {
	return &HostError{Call: call, Err: err}
}

var locations = map[operation.Kind]document.Location{
	operation.ReplaceSelection:      document.LocationReplace,
	operation.InsertBeforeSelection: document.LocationStart,
	operation.InsertAfterSelection:  document.LocationEnd,
}

type Option func(*Applier)

func WithHighlightColor(color string) Option {
	return func(a *Applier) {
		if strings.TrimSpace(color) != "" {
			a.highlightColor = color
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Applier) {
		a.logger = logger
	}
}

// Applier mutates a document.Host according to edit operations. Every
// outcome is published on the embedded broker.
type Applier struct {
	*pubsub.Broker[Outcome]
	highlightColor string
	logger         *slog.Logger
}

func New(opts ...Option) *Applier {
	a := &Applier{
		Broker:         pubsub.NewBroker[Outcome](),
		highlightColor: DefaultHighlightColor,
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Apply carries out a single operation against sel. Track changes is
// requested first; hosts that cannot track changes are edited anyway.
func (a *Applier) Apply(ctx context.Context, op operation.EditOperation, doc document.Host, sel document.Range) error {
	a.enableTracking(ctx, doc)
	_, err := a.apply(ctx, op, doc, &sel)
	return err
}

// ApplyBatch applies every operation in order and never stops early. Once
// started it ignores cancellation of ctx so a half-applied batch is not
// abandoned between operations. sel stays anchored to the captured text
// across the batch's own edits.
func (a *Applier) ApplyBatch(ctx context.Context, ops operation.Batch, doc document.Host, sel document.Range) Report {
	ctx = context.WithoutCancel(ctx)
	report := Report{Outcomes: make([]Outcome, 0, len(ops))}
	if len(ops) == 0 {
		return report
	}

	a.enableTracking(ctx, doc)
	for i, op := range ops {
		status, err := a.apply(ctx, op, doc, &sel)
		out := Outcome{Index: i, Kind: op.Kind, Status: status, Err: err}
		if err != nil {
			a.logger.Warn("operation failed", "index", i, "kind", op.Kind, "error", err)
		} else {
			a.logger.Debug("operation done", "index", i, "kind", op.Kind, "status", status)
		}
		report.Outcomes = append(report.Outcomes, out)
		a.Publish(pubsub.EventTypeCreated, out)
	}
	return report
}

func (a *Applier) enableTracking(ctx context.Context, doc document.Host) {
	if err := doc.EnableTrackChanges(ctx); err != nil {
		a.logger.Debug("track changes unavailable", "error", err)
	}
}

func (a *Applier) apply(ctx context.Context, op operation.EditOperation, doc document.Host, sel *document.Range) (Status, error) {
	if err := op.Validate(); err != nil {
		return StatusFailed, err
	}

	switch op.Kind {
	case operation.ReplaceSelection, operation.InsertBeforeSelection, operation.InsertAfterSelection:
		loc := locations[op.Kind]
		inserted, err := doc.InsertText(ctx, *sel, op.Text(), loc)
		if err != nil {
			return StatusFailed, hostError("insert text", err)
		}
		*sel = reanchor(*sel, inserted, loc)
		return a.sync(ctx, doc, StatusApplied)
	case operation.CommentOnQuote:
		return a.commentOnQuote(ctx, op, doc, *sel)
	default:
		return StatusFailed, fmt.Errorf("%w: unhandled kind %s", operation.ErrInvalidOperation, op.Kind)
	}
}

func (a *Applier) commentOnQuote(ctx context.Context, op operation.EditOperation, doc document.Host, sel document.Range) (Status, error) {
	if op.Quote == "" {
		return a.sync(ctx, doc, StatusSkipped)
	}

	matches, err := doc.Search(ctx, sel, op.Quote, document.SearchOptions{})
	if err != nil {
		return StatusFailed, hostError("search", err)
	}
	if len(matches) == 0 {
		a.logger.Info("skipping comment", "quote", op.Quote, "error", ErrNotFound)
		return a.sync(ctx, doc, StatusSkipped)
	}
	target := matches[0]

	if op.Highlight {
		if err := doc.SetHighlight(ctx, target, a.highlightColor); err != nil {
			a.logger.Debug("highlight failed", "range", target, "error", err)
		}
	}
	if op.HasComment() {
		if _, err := doc.InsertComment(ctx, target, op.Comment.Text()); err != nil {
			return StatusFailed, hostError("insert comment", err)
		}
	}
	return a.sync(ctx, doc, StatusApplied)
}

func (a *Applier) sync(ctx context.Context, doc document.Host, status Status) (Status, error) {
	if err := doc.Sync(ctx); err != nil {
		return StatusFailed, hostError("sync", err)
	}
	return status, nil
}

// reanchor follows the selection over text inserted relative to it.
func reanchor(sel, inserted document.Range, loc document.Location) document.Range {
	switch loc {
	case document.LocationReplace:
		return inserted
	case document.LocationStart:
		return document.Range{Start: inserted.End, End: inserted.End + sel.Len()}
	default:
		return sel
	}
}
