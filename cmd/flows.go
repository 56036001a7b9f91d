package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/legal-assistant/wordkit/internal/app"
	"github.com/legal-assistant/wordkit/internal/diff"
	"github.com/legal-assistant/wordkit/internal/document"
	"github.com/legal-assistant/wordkit/internal/format"
	"github.com/legal-assistant/wordkit/internal/operation"
)

var improveCmd = &cobra.Command{
	Use:   "improve <document>",
	Short: "Rewrite the selection for clarity and legal style",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instructions, _ := cmd.Flags().GetString("instructions")
		return runFlow(cmd, app.ActionImprove, args[0], app.Input{Instructions: instructions})
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft <document>",
	Short: "Draft a clause and insert it after the selection",
	Long: `Draft a clause from a short request and insert it after the selection.
The selected text, if any, is sent along as context so defined terms carry
over. Without --select or --range the clause is appended to the document.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clause, _ := cmd.Flags().GetString("clause")
		style, _ := cmd.Flags().GetString("style")
		return runFlow(cmd, app.ActionDraft, args[0], app.Input{ClauseRequest: clause, StyleInstructions: style})
	},
}

var proofreadCmd = &cobra.Command{
	Use:   "proofread <document>",
	Short: "Comment on issues found in the selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlow(cmd, app.ActionProofread, args[0], app.Input{})
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <document>",
	Short: "Apply a batch of operations from a file",
	Long: `Apply operations read from a JSON file (comments allowed). The file holds
either {"operations": [...]} or a bare array. Use --ops - to read stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("ops")
		batch, err := readBatch(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		return runFlow(cmd, app.ActionApply, args[0], app.Input{Batch: batch})
	},
}

func readBatch(stdin io.Reader, path string) (operation.Batch, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read operations: %w", err)
	}
	env, err := operation.DecodeBatchJSONC(data)
	if err != nil {
		return nil, err
	}
	return env.Operations, nil
}

// openDocument loads path and selects the text the flow works on: the
// first match of --select, the --range offsets, or the whole document.
func openDocument(cmd *cobra.Command, path string) (*document.Memory, error) {
	doc, err := document.LoadFile(path)
	if err != nil {
		return nil, err
	}

	sel, _ := cmd.Flags().GetString("select")
	rangeSpec, _ := cmd.Flags().GetString("range")
	if fromClipboard, _ := cmd.Flags().GetBool("from-clipboard"); fromClipboard {
		text, err := readClipboard()
		if err != nil {
			return nil, fmt.Errorf("--from-clipboard: %w", err)
		}
		if sel = strings.TrimSpace(text); sel == "" {
			return nil, errors.New("--from-clipboard: clipboard is empty")
		}
	}
	switch {
	case sel != "":
		if err := doc.SelectText(sel); err != nil {
			return nil, fmt.Errorf("--select %q: %w", sel, err)
		}
	case rangeSpec != "":
		r, err := parseRange(rangeSpec)
		if err != nil {
			return nil, err
		}
		if err := doc.Select(r); err != nil {
			return nil, fmt.Errorf("--range %s: %w", rangeSpec, err)
		}
	default:
		if err := doc.Select(document.Range{End: utf8.RuneCountInString(doc.Live())}); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

var errNoClipboard = errors.New("no clipboard available on this system")

// readClipboard returns the system clipboard text.
var readClipboard = func() (string, error) {
	if clipboard.Unsupported {
		return "", errNoClipboard
	}
	return clipboard.ReadAll()
}

// parseRange reads "start:end" rune offsets.
func parseRange(s string) (document.Range, error) {
	startStr, endStr, ok := strings.Cut(s, ":")
	if !ok {
		return document.Range{}, fmt.Errorf("invalid range %q: want start:end", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return document.Range{}, fmt.Errorf("invalid range start %q: %w", startStr, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return document.Range{}, fmt.Errorf("invalid range end %q: %w", endStr, err)
	}
	if start < 0 || end < start {
		return document.Range{}, fmt.Errorf("invalid range %q: need 0 <= start <= end", s)
	}
	return document.Range{Start: start, End: end}, nil
}

func runFlow(cmd *cobra.Command, action app.Action, path string, in app.Input) error {
	doc, err := openDocument(cmd, path)
	if err != nil {
		return err
	}
	before := doc.Committed()
	in.Document = path

	res, err := rt.app.Run(cmd.Context(), action, doc, in)
	if err != nil {
		return reauthHint(err)
	}

	after := doc.Committed()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out := format.Result{
		RunID:    res.RunID,
		Action:   string(res.Action),
		Model:    res.Model,
		Document: path,
		DryRun:   dryRun,
		Batch:    res.Batch,
		Report:   res.Report,
	}
	switch {
	case dryRun:
		out.Diff = diff.Unified(path, before.Text, after.Text)
		if rt.output == format.TextFormat {
			out.Diff = diff.Colorize(out.Diff)
		}
	case after.Version != before.Version:
		if err := document.SaveFile(path, after); err != nil {
			return err
		}
	}

	text, err := format.FormatResult(out, rt.output)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)

	if err := res.Report.Err(); err != nil {
		return fmt.Errorf("%d of %d operations failed:\n%w", len(res.Report.Failed()), len(res.Report.Outcomes), err)
	}
	return nil
}

func addDocumentFlags(c *cobra.Command) {
	c.Flags().String("select", "", "Select the first occurrence of this text")
	c.Flags().String("range", "", "Select rune offsets start:end")
	c.Flags().Bool("from-clipboard", false, "Select the first occurrence of the clipboard text")
	c.Flags().Bool("dry-run", false, "Print a diff instead of saving the document")
	c.MarkFlagsMutuallyExclusive("select", "range", "from-clipboard")
}

func init() {
	for _, c := range []*cobra.Command{improveCmd, draftCmd, proofreadCmd, applyCmd} {
		addDocumentFlags(c)
	}
	improveCmd.Flags().String("instructions", "", "Extra instructions for the rewrite")
	draftCmd.Flags().String("clause", "", "What the clause should cover")
	draftCmd.Flags().String("style", "", "Drafting style instructions")
	_ = draftCmd.MarkFlagRequired("clause")
	applyCmd.Flags().String("ops", "", "Operations file, or - for stdin")
	_ = applyCmd.MarkFlagRequired("ops")
}
