package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/legal-assistant/wordkit/internal/apply"
	"github.com/legal-assistant/wordkit/internal/document"
	"github.com/legal-assistant/wordkit/internal/history"
	"github.com/legal-assistant/wordkit/internal/logging"
	"github.com/legal-assistant/wordkit/internal/operation"
	"github.com/legal-assistant/wordkit/internal/selection"
	"github.com/legal-assistant/wordkit/internal/status"
	"github.com/legal-assistant/wordkit/internal/suggest"
)

var ErrUnknownAction = errors.New("unknown action")

type Action string

const (
	ActionImprove   Action = "improve"
	ActionDraft     Action = "draft"
	ActionProofread Action = "proofread"
	// ActionApply applies a batch the caller already has.
	ActionApply Action = "apply"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionImprove, ActionDraft, ActionProofread, ActionApply:
		return true
	}
	return false
}

// needsSelection reports whether the action works on the selected text.
// Drafting only uses the selection as context.
func (a Action) needsSelection() bool {
	return a == ActionImprove || a == ActionProofread
}

// Input carries the per-action parameters.
type Input struct {
	Instructions      string
	ClauseRequest     string
	StyleInstructions string
	// Batch is applied as is by ActionApply.
	Batch operation.Batch
	// Document names the document in history.
	Document string
}

type Result struct {
	RunID     string
	Action    Action
	Source    string
	Model     string
	Selection selection.Snapshot
	Batch     operation.Batch
	Report    apply.Report
	Duration  time.Duration
}

// Run carries out one flow against doc: read the selection, request
// operations, apply them, and record the run. Only one flow runs at a time;
// a second caller gets ErrBusy. Operation failures are reported in the
// result and as status messages, not as the returned error.
func (a *App) Run(ctx context.Context, action Action, doc document.Host, in Input) (Result, error) {
	if !action.IsValid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if !a.flow.TryAcquire(1) {
		a.Status.Warn("Please wait for the current request to finish.")
		return Result{}, ErrBusy
	}
	defer a.flow.Release(1)

	res := Result{
		RunID:  uuid.New().String(),
		Action: action,
		Source: a.SourceName,
	}
	if action == ActionApply {
		res.Source = SourceFile
	}
	ctx = logging.WithRunID(ctx, res.RunID)
	start := time.Now()

	snap, err := a.reader.Read(ctx, doc)
	if err != nil {
		a.Status.Error(err.Error())
		return res, err
	}
	res.Selection = snap
	if action.needsSelection() {
		if err := selection.Require(snap); err != nil {
			a.Status.Warn(selection.NoSelectionMessage)
			return res, err
		}
	}

	slog.InfoContext(ctx, "run started", "action", action, "source", res.Source, "selection", snap.Range)

	resp, err := a.request(ctx, action, snap, in)
	if err != nil {
		res.Duration = time.Since(start)
		err = a.requestFailed(ctx, err)
		a.record(ctx, res, in, err)
		return res, err
	}
	res.Batch = resp.Operations
	res.Model = resp.Model

	if len(res.Batch) == 0 {
		a.Status.Info("No suggestions for the selected text.")
	}
	res.Report = a.Applier.ApplyBatch(ctx, res.Batch, doc, snap.Range)
	for _, o := range res.Report.Failed() {
		a.Status.Error(fmt.Sprintf("Suggestion %d (%s) could not be applied: %v", o.Index+1, o.Kind, o.Err))
	}
	if n := len(res.Report.Outcomes); n > 0 {
		a.Status.Info(fmt.Sprintf("Applied %d of %d suggestions.", res.Report.Count(apply.StatusApplied), n))
	}

	res.Duration = time.Since(start)
	a.record(ctx, res, in, nil)
	slog.InfoContext(ctx, "run finished", "action", action,
		"applied", res.Report.Count(apply.StatusApplied),
		"skipped", res.Report.Count(apply.StatusSkipped),
		"failed", res.Report.Count(apply.StatusFailed),
		"duration", res.Duration)
	return res, nil
}

func (a *App) request(ctx context.Context, action Action, snap selection.Snapshot, in Input) (suggest.Response, error) {
	switch action {
	case ActionImprove:
		return a.Source.ImproveWriting(ctx, suggest.ImproveRequest{
			SelectionText: snap.Text,
			Instructions:  in.Instructions,
		})
	case ActionDraft:
		req := suggest.DraftRequest{
			ClauseRequest:     in.ClauseRequest,
			StyleInstructions: in.StyleInstructions,
		}
		if !snap.IsEmpty() {
			req.ContextText = snap.Text
		}
		return a.Source.DraftClause(ctx, req)
	case ActionProofread:
		return a.Source.Proofread(ctx, suggest.ProofreadRequest{SelectionText: snap.Text})
	case ActionApply:
		batch := in.Batch
		if batch == nil {
			batch = operation.Batch{}
		}
		return suggest.Response{Operations: batch}, nil
	}
	return suggest.Response{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// requestFailed turns a source error into the status message the user
// sees and the error Run returns.
func (a *App) requestFailed(ctx context.Context, err error) error {
	slog.WarnContext(ctx, "suggestion request failed", "error", err)
	switch {
	case errors.Is(err, suggest.ErrUnauthorized):
		return a.authFailed(ctx, err)
	case errors.Is(err, suggest.ErrTimeout):
		a.Status.Error("The assistant took too long to respond. Try again.", status.WithCritical(true))
	case errors.Is(err, suggest.ErrEmptySelection), errors.Is(err, suggest.ErrInvalidRequest):
		a.Status.Warn(err.Error())
	case suggest.IsRetryable(err):
		a.Status.Error(fmt.Sprintf("The assistant is unavailable (%v). Try again.", err))
	default:
		a.Status.Error(err.Error())
	}
	return err
}

// record stores the run. A history failure is logged and never fails the
// flow.
func (a *App) record(ctx context.Context, res Result, in Input, runErr error) {
	run := history.Run{
		ID:             res.RunID,
		Action:         string(res.Action),
		Source:         res.Source,
		Model:          res.Model,
		Document:       in.Document,
		SelectionStart: res.Selection.Range.Start,
		SelectionEnd:   res.Selection.Range.End,
		Operations:     len(res.Batch),
		Applied:        res.Report.Count(apply.StatusApplied),
		Skipped:        res.Report.Count(apply.StatusSkipped),
		Failed:         res.Report.Count(apply.StatusFailed),
		Duration:       res.Duration,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if _, err := a.History.Create(ctx, run); err != nil {
		slog.WarnContext(ctx, "failed to record run", "error", err)
	}
}
