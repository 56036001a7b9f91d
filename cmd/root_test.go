package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/legal-assistant/wordkit/internal/document"
	"github.com/legal-assistant/wordkit/internal/status"
)

func TestCheckStdinPipe(t *testing.T) {
	// Save original stdin
	origStdin := os.Stdin

	// Restore original stdin when test completes
	defer func() {
		os.Stdin = origStdin
	}()

	t.Run("WithPipedData", func(t *testing.T) {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		os.Stdin = r

		go func() {
			defer w.Close()
			w.Write([]byte("correct horse\n"))
		}()

		data, hasPiped := checkStdinPipe()
		assert.True(t, hasPiped)
		assert.Equal(t, "correct horse", data)
	})

	t.Run("EmptyPipe", func(t *testing.T) {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		os.Stdin = r
		w.Close()

		data, hasPiped := checkStdinPipe()
		assert.False(t, hasPiped)
		assert.Empty(t, data)
	})

	t.Run("WithoutPipedData", func(t *testing.T) {
		// a regular file stands in for a terminal
		f, err := os.CreateTemp(t.TempDir(), "terminal-sim")
		require.NoError(t, err)
		defer f.Close()
		os.Stdin = f

		data, hasPiped := checkStdinPipe()
		assert.False(t, hasPiped)
		assert.Empty(t, data)
	})
}

func TestOpenDocumentFromClipboard(t *testing.T) {
	orig := readClipboard
	t.Cleanup(func() { readClipboard = orig })

	path := filepath.Join(t.TempDir(), "nda.txt")
	require.NoError(t, os.WriteFile(path, []byte("The Recipient shall keep the Information confidential."), 0o644))

	newCmd := func() *cobra.Command {
		c := &cobra.Command{}
		addDocumentFlags(c)
		require.NoError(t, c.Flags().Set("from-clipboard", "true"))
		return c
	}

	tests := []struct {
		name    string
		read    func() (string, error)
		want    string
		wantErr string
	}{
		{name: "selects clipboard text", read: func() (string, error) { return " the Information\n", nil }, want: "the Information"},
		{name: "empty clipboard", read: func() (string, error) { return "  ", nil }, wantErr: "clipboard is empty"},
		{name: "unavailable", read: func() (string, error) { return "", errNoClipboard }, wantErr: errNoClipboard.Error()},
		{name: "not in document", read: func() (string, error) { return "Disclosing Party", nil }, wantErr: "--select"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readClipboard = tt.read
			doc, err := openDocument(newCmd(), path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			_, text, err := doc.Selection(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    document.Range
		wantErr bool
	}{
		{in: "0:5", want: document.Range{Start: 0, End: 5}},
		{in: " 3 : 3 ", want: document.Range{Start: 3, End: 3}},
		{in: "5", wantErr: true},
		{in: "a:4", wantErr: true},
		{in: "4:b", wantErr: true},
		{in: "6:2", wantErr: true},
		{in: "-1:2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusPrinter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := newStatusPrinter(&buf, false)
	p.Info("Applied 2 of 2 suggestions.")
	p.Warn(selectionMessage)
	p.Error("Suggestion 1 could not be applied")
	out := buf.String()
	assert.Contains(t, out, "Applied 2 of 2 suggestions.")
	assert.Contains(t, out, selectionMessage)
	assert.Contains(t, out, "Suggestion 1 could not be applied")

	buf.Reset()
	quiet := newStatusPrinter(&buf, true)
	quiet.Info("hidden")
	quiet.Warn("also hidden")
	quiet.Warn("shown", status.WithCritical(true))
	quiet.Error("error shown")
	out = buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "error shown")
}

const selectionMessage = "Select some text in the document first."

// TestApplyCommand drives the whole command path once. Setup installs
// process-wide services, so it cannot run twice in one test binary.
func TestApplyCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { os.Chdir(wd) })

	dir := t.TempDir()
	docPath := filepath.Join(dir, "nda.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("The term is 12 months. On the effective date, the parties agree."), 0o644))
	opsPath := filepath.Join(dir, "ops.jsonc")
	require.NoError(t, os.WriteFile(opsPath, []byte(`{
		// from a saved proofread
		"operations": [
			{"type": "comment_on_quote", "quote": "12 months", "severity": "risk", "highlight": true,
			 "comment": {"title": "RISK", "body": "Confirm duration"}},
			{"type": "comment_on_quote", "quote": "exclusivity", "comment": {"body": "missing"}}
		]
	}`), 0o644))

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"apply", docPath, "--ops", opsPath, "--cwd", dir, "--output-format", "json"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err = rootCmd.Execute()
	shutdown()
	require.NoError(t, err, stderr.String())

	assert.Contains(t, stdout.String(), `"applied": 1`)
	assert.Contains(t, stdout.String(), `"skipped": 1`)
	assert.Contains(t, stderr.String(), "Applied 1 of 2 suggestions.")

	doc, err := document.LoadFile(docPath)
	require.NoError(t, err)
	snap := doc.Committed()
	require.Len(t, snap.Comments, 1)
	assert.Equal(t, "12 months", snap.Comments[0].Anchor)
	assert.Equal(t, "RISK: Confirm duration", snap.Comments[0].Text)
	assert.FileExists(t, filepath.Join(dir, ".wordkit", "wordkit.db"))
}
