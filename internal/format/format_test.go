package format

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legal-assistant/wordkit/internal/apply"
	"github.com/legal-assistant/wordkit/internal/history"
	"github.com/legal-assistant/wordkit/internal/logging"
	"github.com/legal-assistant/wordkit/internal/operation"
)

func TestOutputFormat_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format OutputFormat
		want   bool
	}{
		{
			name:   "text format",
			format: TextFormat,
			want:   true,
		},
		{
			name:   "json format",
			format: JSONFormat,
			want:   true,
		},
		{
			name:   "invalid format",
			format: "invalid",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.format.IsValid(); got != tt.want {
				t.Errorf("OutputFormat.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		format  OutputFormat
		want    string
		wantErr bool
	}{
		{
			name:    "text format",
			content: "test content",
			format:  TextFormat,
			want:    "test content",
			wantErr: false,
		},
		{
			name:    "json format",
			content: "test content",
			format:  JSONFormat,
			want:    "{\n  \"response\": \"test content\"\n}",
			wantErr: false,
		},
		{
			name:    "invalid format",
			content: "test content",
			format:  "invalid",
			want:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FormatOutput(tt.content, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("FormatOutput() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("FormatOutput() = %v, want %v", got, tt.want)
			}
		})
	}
}

func proofreadResult() Result {
	risk := operation.CommentOn("12 months", operation.Comment{Title: "RISK", Body: "Confirm duration"})
	risk.Severity = operation.SeverityRisk
	missing := operation.CommentOn("Exclusivity", operation.Comment{Title: "INFO", Body: "Define the term"})
	return Result{
		RunID:    "run-1",
		Action:   "proofread",
		Model:    "gpt-4o-mini",
		Document: "contract.txt",
		Batch:    operation.Batch{risk, missing, operation.Replace("x")},
		Report: apply.Report{Outcomes: []apply.Outcome{
			{Index: 0, Kind: operation.CommentOnQuote, Status: apply.StatusApplied},
			{Index: 1, Kind: operation.CommentOnQuote, Status: apply.StatusSkipped},
			{Index: 2, Kind: operation.ReplaceSelection, Status: apply.StatusFailed, Err: errors.New("host error: insertText: boom")},
		}},
	}
}

func TestFormatResultText(t *testing.T) {
	t.Parallel()

	out, err := FormatResult(proofreadResult(), TextFormat)
	require.NoError(t, err)
	assert.Contains(t, out, "proofread · gpt-4o-mini · run run-1")
	assert.Contains(t, out, `1 comment_on_quote "12 months"`)
	assert.Contains(t, out, "RISK: Confirm duration")
	assert.Contains(t, out, `2 comment_on_quote "Exclusivity" skipped`)
	assert.Contains(t, out, "host error: insertText: boom")
	assert.Contains(t, out, "3 operations: 1 applied, 1 skipped, 1 failed")
}

func TestFormatResultTextEmpty(t *testing.T) {
	t.Parallel()

	out, err := FormatResult(Result{Action: "proofread"}, TextFormat)
	require.NoError(t, err)
	assert.Contains(t, out, "no suggestions")
	assert.NotContains(t, out, "operations:")
}

func TestFormatResultJSON(t *testing.T) {
	t.Parallel()

	out, err := FormatResult(proofreadResult(), JSONFormat)
	require.NoError(t, err)

	var got struct {
		RunID      string `json:"run_id"`
		Applied    int    `json:"applied"`
		Skipped    int    `json:"skipped"`
		Failed     int    `json:"failed"`
		Operations []struct {
			Type     string `json:"type"`
			Quote    string `json:"quote"`
			Severity string `json:"severity"`
			Status   string `json:"status"`
			Error    string `json:"error"`
		} `json:"operations"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 1, got.Applied)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Operations, 3)
	assert.Equal(t, "12 months", got.Operations[0].Quote)
	assert.Equal(t, "risk", got.Operations[0].Severity)
	assert.Equal(t, "skipped", got.Operations[1].Status)
	assert.Equal(t, "replace_selection", got.Operations[2].Type)
	assert.Contains(t, got.Operations[2].Error, "boom")
}

func TestFormatResultUndecodedOperation(t *testing.T) {
	t.Parallel()

	// an entry that failed to decode has no kind and must still render
	r := Result{Action: "apply", Batch: operation.Batch{{}}}
	out, err := FormatResult(r, JSONFormat)
	require.NoError(t, err)
	assert.Contains(t, out, `"type": "unknown"`)
}

func TestFormatRuns(t *testing.T) {
	t.Parallel()

	runs := []history.Run{{
		ID:         "run-2",
		Action:     "improve",
		Document:   "nda.txt",
		Operations: 1,
		Applied:    1,
		Duration:   1500 * time.Millisecond,
		CreatedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	text, err := FormatRuns(runs, TextFormat)
	require.NoError(t, err)
	assert.Contains(t, text, "improve")
	assert.Contains(t, text, "1/1 applied")
	assert.Contains(t, text, "run-2")

	js, err := FormatRuns(runs, JSONFormat)
	require.NoError(t, err)
	assert.Contains(t, js, `"duration_ms": 1500`)
	assert.Contains(t, js, `"created_at": "2025-03-01T12:00:00Z"`)

	empty, err := FormatRuns(nil, TextFormat)
	require.NoError(t, err)
	assert.Contains(t, empty, "no runs recorded")

	_, err = FormatRuns(runs, "yaml")
	assert.Error(t, err)
}

func TestFormatRun(t *testing.T) {
	t.Parallel()

	run := history.Run{
		ID:             "run-3",
		Action:         "proofread",
		Source:         "api",
		SelectionStart: 4,
		SelectionEnd:   20,
		Operations:     2,
		Applied:        1,
		Failed:         1,
		Error:          "",
		CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	logs := []logging.Log{
		{Timestamp: run.CreatedAt, Level: "info", Message: "run started"},
		{Timestamp: run.CreatedAt, Level: "warn", Message: "operation failed", Attributes: map[string]string{"index": "1"}},
	}

	text, err := FormatRun(run, logs, TextFormat)
	require.NoError(t, err)
	assert.Contains(t, text, "proofread · run-3")
	assert.Contains(t, text, "[4,20)")
	assert.Contains(t, text, "2 (1 applied, 0 skipped, 1 failed)")
	assert.Contains(t, text, "WARN  operation failed")
	assert.NotContains(t, text, "model")

	js, err := FormatRun(run, logs, JSONFormat)
	require.NoError(t, err)
	var got struct {
		ID   string `json:"id"`
		Logs []struct {
			Level      string            `json:"level"`
			Attributes map[string]string `json:"attributes"`
		} `json:"logs"`
	}
	require.NoError(t, json.Unmarshal([]byte(js), &got))
	assert.Equal(t, "run-3", got.ID)
	require.Len(t, got.Logs, 2)
	assert.Equal(t, "1", got.Logs[1].Attributes["index"])
}
