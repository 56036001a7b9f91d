package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/legal-assistant/wordkit/internal/apply"
	"github.com/legal-assistant/wordkit/internal/config"
	"github.com/legal-assistant/wordkit/internal/db"
	"github.com/legal-assistant/wordkit/internal/document"
	"github.com/legal-assistant/wordkit/internal/operation"
	"github.com/legal-assistant/wordkit/internal/selection"
	"github.com/legal-assistant/wordkit/internal/settings"
	"github.com/legal-assistant/wordkit/internal/status"
	"github.com/legal-assistant/wordkit/internal/suggest"
)

type fakeSource struct {
	calls     atomic.Int32
	improve   func(context.Context, suggest.ImproveRequest) (suggest.Response, error)
	draft     func(context.Context, suggest.DraftRequest) (suggest.Response, error)
	proofread func(context.Context, suggest.ProofreadRequest) (suggest.Response, error)
}

func (f *fakeSource) ImproveWriting(ctx context.Context, req suggest.ImproveRequest) (suggest.Response, error) {
	f.calls.Add(1)
	return f.improve(ctx, req)
}

func (f *fakeSource) DraftClause(ctx context.Context, req suggest.DraftRequest) (suggest.Response, error) {
	f.calls.Add(1)
	return f.draft(ctx, req)
}

func (f *fakeSource) Proofread(ctx context.Context, req suggest.ProofreadRequest) (suggest.Response, error) {
	f.calls.Add(1)
	return f.proofread(ctx, req)
}

type recorder struct {
	status.Service
	mu   sync.Mutex
	msgs map[status.Level][]string
}

func newRecorder() *recorder {
	return &recorder{Service: status.NewService(), msgs: map[status.Level][]string{}}
}

func (r *recorder) add(level status.Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[level] = append(r.msgs[level], msg)
}

func (r *recorder) Info(msg string, _ ...status.StatusOption)  { r.add(status.LevelInfo, msg) }
func (r *recorder) Warn(msg string, _ ...status.StatusOption)  { r.add(status.LevelWarn, msg) }
func (r *recorder) Error(msg string, _ ...status.StatusOption) { r.add(status.LevelError, msg) }

func (r *recorder) get(level status.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs[level]...)
}

func newTestApp(t *testing.T, baseURL string, opts ...Option) (*App, *recorder) {
	t.Helper()
	return newTestAppWith(t, func(cfg *config.Config) { cfg.API.BaseURL = baseURL }, opts...)
}

func newTestAppWith(t *testing.T, configure func(*config.Config), opts ...Option) (*App, *recorder) {
	t.Helper()
	ctx := context.Background()

	conn, err := db.ConnectMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	store, err := settings.Open(ctx, bucket, "test")
	require.NoError(t, err)

	cfg := &config.Config{
		Source:         config.SourceAPI,
		Profile:        "test",
		HighlightColor: "Yellow",
		API:            config.API{Timeout: time.Second},
	}
	configure(cfg)
	rec := newRecorder()
	a, err := New(ctx, conn, cfg, store, append([]Option{WithStatus(rec)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a, rec
}

func memoryDoc(t *testing.T, text, sel string) *document.Memory {
	t.Helper()
	m := document.NewMemory(text)
	if sel != "" {
		require.NoError(t, m.SelectText(sel))
	}
	return m
}

func TestRunImprove(t *testing.T) {
	t.Parallel()

	src := &fakeSource{improve: func(_ context.Context, req suggest.ImproveRequest) (suggest.Response, error) {
		assert.Equal(t, "effective date", req.SelectionText)
		assert.Equal(t, "formal", req.Instructions)
		return suggest.Response{Operations: operation.Batch{operation.Replace("the Effective Date")}, Model: "m1"}, nil
	}}
	a, rec := newTestApp(t, "http://unused", WithSource("fake", src))
	doc := memoryDoc(t, "On the effective date, the parties agree.", "effective date")

	ctx := context.Background()
	res, err := a.Run(ctx, ActionImprove, doc, Input{Instructions: "formal", Document: "nda.txt"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "m1", res.Model)
	assert.Equal(t, 1, res.Report.Count(apply.StatusApplied))
	assert.Equal(t, "On the the Effective Date, the parties agree.", doc.Committed().Text)
	assert.Contains(t, rec.get(status.LevelInfo), "Applied 1 of 1 suggestions.")

	runs, err := a.History.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, "improve", runs[0].Action)
	assert.Equal(t, "fake", runs[0].Source)
	assert.Equal(t, "nda.txt", runs[0].Document)
	assert.Equal(t, 1, runs[0].Applied)
}

func TestRunRequiresSelection(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	a, rec := newTestApp(t, "http://unused", WithSource("fake", src))

	for _, action := range []Action{ActionImprove, ActionProofread} {
		doc := memoryDoc(t, "Some text   here", "")
		_, err := a.Run(context.Background(), action, doc, Input{})
		assert.ErrorIs(t, err, selection.ErrNoSelection, action)
	}
	assert.Zero(t, src.calls.Load())
	assert.Equal(t, []string{selection.NoSelectionMessage, selection.NoSelectionMessage}, rec.get(status.LevelWarn))

	runs, err := a.History.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunDraftWithoutSelection(t *testing.T) {
	t.Parallel()

	src := &fakeSource{draft: func(_ context.Context, req suggest.DraftRequest) (suggest.Response, error) {
		assert.Equal(t, "termination for convenience", req.ClauseRequest)
		assert.Empty(t, req.ContextText)
		return suggest.Response{Operations: operation.Batch{operation.InsertAfter("\nEither party may terminate.\n")}}, nil
	}}
	a, _ := newTestApp(t, "http://unused", WithSource("fake", src))
	doc := memoryDoc(t, "1. Term", "")

	res, err := a.Run(context.Background(), ActionDraft, doc, Input{ClauseRequest: "termination for convenience"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Count(apply.StatusApplied))
	assert.Equal(t, "\nEither party may terminate.\n1. Term", doc.Committed().Text)
}

func TestRunProofreadAnchorsComment(t *testing.T) {
	t.Parallel()

	src := &fakeSource{proofread: func(_ context.Context, req suggest.ProofreadRequest) (suggest.Response, error) {
		op := operation.CommentOn("12 MONTHS", operation.Comment{Title: "RISK", Body: "Confirm duration"})
		op.Severity = operation.SeverityRisk
		op.Highlight = true
		missing := operation.CommentOn("Exclusivity", operation.Comment{Body: "Define the term"})
		return suggest.Response{Operations: operation.Batch{op, missing}}, nil
	}}
	a, _ := newTestApp(t, "http://unused", WithSource("fake", src))
	text := "Confidentiality lasts 12 months."
	doc := memoryDoc(t, text, text)

	res, err := a.Run(context.Background(), ActionProofread, doc, Input{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Count(apply.StatusApplied))
	assert.Equal(t, 1, res.Report.Count(apply.StatusSkipped))

	snap := doc.Committed()
	assert.Equal(t, text, snap.Text)
	require.Len(t, snap.Comments, 1)
	assert.Equal(t, "12 months", snap.Comments[0].Anchor)
	assert.Equal(t, "RISK: Confirm duration", snap.Comments[0].Text)
	require.Len(t, snap.Highlights, 1)
	assert.Equal(t, "Yellow", snap.Highlights[0].Color)
}

func TestRunUnauthorizedClearsToken(t *testing.T) {
	t.Parallel()

	src := &fakeSource{improve: func(context.Context, suggest.ImproveRequest) (suggest.Response, error) {
		return suggest.Response{}, fmt.Errorf("%w: token expired", suggest.ErrUnauthorized)
	}}
	a, rec := newTestApp(t, "http://unused", WithSource("fake", src))
	ctx := context.Background()
	require.NoError(t, a.Tokens.SaveToken(ctx, "stale"))

	doc := memoryDoc(t, "effective date", "effective date")
	_, err := a.Run(ctx, ActionImprove, doc, Input{})
	assert.ErrorIs(t, err, ErrReauthenticate)
	assert.ErrorIs(t, err, suggest.ErrUnauthorized)

	_, ok := a.Tokens.Token()
	assert.False(t, ok)
	assert.NotEmpty(t, rec.get(status.LevelError))
	assert.Equal(t, "effective date", doc.Committed().Text)
	assert.Zero(t, doc.Calls(document.CallInsertText))

	runs, err := a.History.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "unauthorized")
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	src := &fakeSource{proofread: func(context.Context, suggest.ProofreadRequest) (suggest.Response, error) {
		return suggest.Response{}, fmt.Errorf("%w after 30s", suggest.ErrTimeout)
	}}
	a, rec := newTestApp(t, "http://unused", WithSource("fake", src))
	ctx := context.Background()
	require.NoError(t, a.Tokens.SaveToken(ctx, "good"))

	_, err := a.Run(ctx, ActionProofread, memoryDoc(t, "text", "text"), Input{})
	assert.ErrorIs(t, err, suggest.ErrTimeout)
	assert.True(t, suggest.IsRetryable(err))
	assert.Equal(t, []string{"The assistant took too long to respond. Try again."}, rec.get(status.LevelError))

	_, ok := a.Tokens.Token()
	assert.True(t, ok, "a timeout must not sign the user out")
}

func TestRunDirectModelTimeout(t *testing.T) {
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

	a, rec := newTestAppWith(t, func(cfg *config.Config) {
		cfg.Source = config.SourceOpenAI
		cfg.OpenAI = config.OpenAI{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-4o-mini"}
		cfg.API.Timeout = 100 * time.Millisecond
	})
	require.Equal(t, string(config.SourceOpenAI), a.SourceName)

	ctx := context.Background()
	doc := memoryDoc(t, "effective date", "effective date")
	_, err := a.Run(ctx, ActionImprove, doc, Input{})
	assert.ErrorIs(t, err, suggest.ErrTimeout)
	assert.Equal(t, []string{"The assistant took too long to respond. Try again."}, rec.get(status.LevelError))

	_, err = a.Run(ctx, ActionImprove, doc, Input{})
	assert.ErrorIs(t, err, suggest.ErrTimeout, "the flow must be free again after a timeout")
	assert.NotErrorIs(t, err, ErrBusy)
}

func TestNewSourceSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source config.Source
		want   any
	}{
		{source: config.SourceAPI, want: &suggest.Client{}},
		{source: config.SourceOpenAI, want: &suggest.OpenAISource{}},
		{source: config.SourceAnthropic, want: &suggest.AnthropicSource{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			t.Parallel()
			a, _ := newTestAppWith(t, func(cfg *config.Config) {
				cfg.Source = tt.source
				cfg.API.BaseURL = "http://unused"
				cfg.OpenAI.APIKey = "sk-test"
				cfg.Anthropic.APIKey = "sk-ant-test"
			})
			assert.Equal(t, string(tt.source), a.SourceName)
			assert.IsType(t, tt.want, a.Source)
		})
	}
}

func TestRunApplyReportsFailures(t *testing.T) {
	t.Parallel()

	a, rec := newTestApp(t, "http://unused")
	doc := document.NewMemory("effective date", document.WithFaults(func(call document.Call, n int) error {
		if call == document.CallInsertText && n == 2 {
			return errors.New("host gone")
		}
		return nil
	}))
	require.NoError(t, doc.SelectText("effective date"))

	batch := operation.Batch{
		operation.InsertBefore("A. "),
		operation.InsertAfter(" B"),
		operation.InsertAfter(" C"),
	}
	res, err := a.Run(context.Background(), ActionApply, doc, Input{Batch: batch})
	require.NoError(t, err)
	assert.Equal(t, SourceFile, res.Source)
	assert.Equal(t, 2, res.Report.Count(apply.StatusApplied))
	require.Len(t, res.Report.Failed(), 1)
	assert.Equal(t, 1, res.Report.Failed()[0].Index)
	assert.Equal(t, "A. effective date C", doc.Committed().Text)

	errs := rec.get(status.LevelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Suggestion 2 (insert_after_selection) could not be applied")
}

func TestRunBusy(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	src := &fakeSource{improve: func(context.Context, suggest.ImproveRequest) (suggest.Response, error) {
		close(started)
		<-release
		return suggest.Response{Operations: operation.Batch{}}, nil
	}}
	a, _ := newTestApp(t, "http://unused", WithSource("fake", src))

	first := memoryDoc(t, "abc", "abc")
	done := make(chan error, 1)
	go func() {
		_, err := a.Run(context.Background(), ActionImprove, first, Input{})
		done <- err
	}()
	<-started

	_, err := a.Run(context.Background(), ActionImprove, memoryDoc(t, "abc", "abc"), Input{})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)

	_, err = a.Run(context.Background(), ActionApply, memoryDoc(t, "abc", "abc"), Input{})
	assert.NoError(t, err)
}

func TestRunUnknownAction(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, "http://unused")
	_, err := a.Run(context.Background(), Action("summarize"), memoryDoc(t, "abc", "abc"), Input{})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestLoginWhoAmILogout(t *testing.T) {
	t.Parallel()

	var expired atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ada@example.com", body["email"])
			_, _ = w.Write([]byte(`{"access_token":"jwt-1","token_type":"bearer"}`))
		case "/auth/me":
			if expired.Load() || r.Header.Get("Authorization") != "Bearer jwt-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"u1","email":"ada@example.com","full_name":"Ada","is_active":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a, _ := newTestApp(t, srv.URL)
	ctx := context.Background()

	_, err := a.WhoAmI(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)

	user, err := a.Login(ctx, " ada@example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.FullName)
	tok, ok := a.Tokens.Token()
	require.True(t, ok)
	assert.Equal(t, "jwt-1", tok)

	user, err = a.WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	expired.Store(true)
	_, err = a.WhoAmI(ctx)
	assert.ErrorIs(t, err, ErrReauthenticate)
	_, ok = a.Tokens.Token()
	assert.False(t, ok)

	require.NoError(t, a.Tokens.SaveToken(ctx, "jwt-1"))
	require.NoError(t, a.Logout(ctx))
	_, ok = a.Tokens.Token()
	assert.False(t, ok)
}
