package suggest

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/legal-assistant/wordkit/internal/operation"
)

const improveSystemPrompt = `You are a senior legal editor. Rewrite the user's text to improve clarity, precision, and professionalism while preserving meaning. Do not add new facts. Return ONLY the rewritten text, no quotes, no markdown.`

const draftSystemPrompt = `You are an expert transactional lawyer. Draft a clause suitable for insertion into a contract. Use clear legal drafting, preserve defined terms from context if present, and do not invent facts. Return ONLY the clause text, no markdown, no headings unless they are part of the clause label.`

const proofreadSystemPrompt = `You are a senior legal reviewer. Identify issues in the provided contract text. Focus on: ambiguous language, missing definitions, inconsistent terms, risky obligations, and basic grammar/clarity. Return a JSON object with an array 'issues'. Each issue must include: quote (exact substring from input), severity (info|warning|risk), message (explain), and optional suggestion (replacement text). Return ONLY valid JSON.`

func improveUserPrompt(req ImproveRequest) string {
	prompt := "Rewrite the following text:\n\n" + strings.TrimSpace(req.SelectionText)
	if req.Instructions != "" {
		prompt += "\n\nAdditional instructions: " + req.Instructions
	}
	return prompt
}

func draftUserPrompt(req DraftRequest) string {
	parts := []string{"Clause to draft: " + strings.TrimSpace(req.ClauseRequest)}
	if req.StyleInstructions != "" {
		parts = append(parts, "Style instructions: "+req.StyleInstructions)
	}
	if req.ContextText != "" {
		parts = append(parts, "Context (may include defined terms and surrounding language):\n"+req.ContextText)
	}
	return strings.Join(parts, "\n\n")
}

type issue struct {
	Quote      string
	Severity   operation.Severity
	Message    string
	Suggestion string
}

func (is issue) operation() operation.EditOperation {
	title := "Issue"
	if is.Severity != operation.SeverityNone {
		title = strings.ToUpper(string(is.Severity))
	}
	body := is.Message
	if is.Suggestion != "" {
		body += "\nSuggestion: " + is.Suggestion
	}
	op := operation.CommentOn(is.Quote, operation.Comment{Title: title, Body: body})
	op.Severity = is.Severity
	op.Highlight = is.Severity == operation.SeverityWarning || is.Severity == operation.SeverityRisk
	return op
}

// parseIssues reads the proofreading reply. Models sometimes wrap the JSON
// in a code fence; entries with an unknown severity or a too short quote or
// message are dropped.
func parseIssues(content string) ([]issue, error) {
	body := strings.TrimSpace(content)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("invalid proofread JSON: %.80q", content)
	}

	var issues []issue
	gjson.Get(body, "issues").ForEach(func(_, v gjson.Result) bool {
		is := issue{
			Quote:      v.Get("quote").String(),
			Severity:   operation.Severity(strings.ToLower(v.Get("severity").String())),
			Message:    strings.TrimSpace(v.Get("message").String()),
			Suggestion: strings.TrimSpace(v.Get("suggestion").String()),
		}
		if len([]rune(is.Quote)) < 3 || len([]rune(is.Message)) < 3 || !is.Severity.IsValid() || is.Severity == operation.SeverityNone {
			return true
		}
		issues = append(issues, is)
		return true
	})
	return issues, nil
}
