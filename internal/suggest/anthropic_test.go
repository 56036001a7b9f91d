package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legal-assistant/wordkit/internal/operation"
)

func claudeMessage(text string) string {
	data, _ := json.Marshal(map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         DefaultClaudeModel,
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
	return string(data)
}

func fakeClaude(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClaude(srv *httptest.Server, opts ...AnthropicOption) *AnthropicSource {
	opts = append([]AnthropicOption{WithAnthropicKey("sk-ant-test"), WithAnthropicBaseURL(srv.URL + "/"), WithAnthropicBackoff(0)}, opts...)
	return NewAnthropicSource(opts...)
}

func TestAnthropicImproveWriting(t *testing.T) {
	t.Parallel()

	srv := fakeClaude(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, DefaultClaudeModel, body["model"])
		system := body["system"].([]any)
		require.Len(t, system, 1)
		assert.Equal(t, improveSystemPrompt, system[0].(map[string]any)["text"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 1)
		content := msgs[0].(map[string]any)["content"].([]any)
		assert.Contains(t, content[0].(map[string]any)["text"], "effective date")
		_, _ = w.Write([]byte(claudeMessage(" the Effective Date ")))
	})

	resp, err := newTestClaude(srv).ImproveWriting(context.Background(), ImproveRequest{SelectionText: "effective date"})
	require.NoError(t, err)
	require.Len(t, resp.Operations, 1)
	assert.Equal(t, operation.ReplaceSelection, resp.Operations[0].Kind)
	assert.Equal(t, "the Effective Date", resp.Operations[0].Text())
	assert.Equal(t, DefaultClaudeModel, resp.Model)
}

func TestAnthropicProofread(t *testing.T) {
	t.Parallel()

	srv := fakeClaude(t, func(w http.ResponseWriter, body map[string]any) {
		assert.InDelta(t, 0, body["temperature"], 1e-9)
		_, _ = w.Write([]byte(claudeMessage("```json\n" + `{"issues":[{"quote":"best efforts","severity":"risk","message":"Undefined standard."}]}` + "\n```")))
	})

	resp, err := newTestClaude(srv, WithAnthropicModel("claude-sonnet-4-0")).Proofread(context.Background(), ProofreadRequest{SelectionText: "use best efforts"})
	require.NoError(t, err)
	require.Len(t, resp.Operations, 1)
	op := resp.Operations[0]
	assert.Equal(t, operation.CommentOnQuote, op.Kind)
	assert.Equal(t, "best efforts", op.Quote)
	assert.Equal(t, operation.SeverityRisk, op.Severity)
	assert.Equal(t, "claude-sonnet-4-0", resp.Model)
}

func TestAnthropicErrors(t *testing.T) {
	t.Parallel()

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		srv := fakeClaude(t, func(w http.ResponseWriter, _ map[string]any) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
		})
		_, err := newTestClaude(srv).ImproveWriting(context.Background(), ImproveRequest{SelectionText: "a"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("overloaded is retried", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		srv := fakeClaude(t, func(w http.ResponseWriter, _ map[string]any) {
			if calls.Add(1) == 1 {
				w.WriteHeader(529)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
				return
			}
			_, _ = w.Write([]byte(claudeMessage("done")))
		})
		resp, err := newTestClaude(srv).ImproveWriting(context.Background(), ImproveRequest{SelectionText: "a"})
		require.NoError(t, err)
		assert.Equal(t, "done", resp.Operations[0].Text())
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("bad request", func(t *testing.T) {
		t.Parallel()
		srv := fakeClaude(t, func(w http.ResponseWriter, _ map[string]any) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
		})
		_, err := newTestClaude(srv).ImproveWriting(context.Background(), ImproveRequest{SelectionText: "a"})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.False(t, IsRetryable(err))
	})
}

func TestAnthropicTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClaude(srv, WithAnthropicTimeout(50*time.Millisecond)).
		DraftClause(context.Background(), DraftRequest{ClauseRequest: "termination"})
	assert.ErrorIs(t, err, ErrTimeout)
}
