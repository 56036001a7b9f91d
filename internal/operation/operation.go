// Package operation defines the edit operations a suggestion source produces
// and the add-in applies to the open document.
package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOperation reports a malformed operation payload.
var ErrInvalidOperation = errors.New("invalid operation")

// Kind identifies which edit an operation performs. The set is closed.
type Kind int

const (
	KindUnknown Kind = iota
	ReplaceSelection
	InsertAfterSelection
	InsertBeforeSelection
	CommentOnQuote
)

var kindNames = map[Kind]string{
	ReplaceSelection:      "replace_selection",
	InsertAfterSelection:  "insert_after_selection",
	InsertBeforeSelection: "insert_before_selection",
	CommentOnQuote:        "comment_on_quote",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

// NeedsText reports whether the kind carries a NewText payload.
func (k Kind) NeedsText() bool {
	return k == ReplaceSelection || k == InsertAfterSelection || k == InsertBeforeSelection
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: unknown operation type %q", ErrInvalidOperation, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("%w: cannot encode kind %d", ErrInvalidOperation, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Severity is advisory metadata attached by proofreading. It never changes
// how an operation is applied.
type Severity string

const (
	SeverityNone    Severity = ""
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityRisk    Severity = "risk"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityNone, SeverityInfo, SeverityWarning, SeverityRisk:
		return true
	}
	return false
}

func (s *Severity) UnmarshalText(b []byte) error {
	v := Severity(b)
	if !v.IsValid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidOperation, string(b))
	}
	*s = v
	return nil
}

// Comment is attached to the document range an operation targets.
type Comment struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

// Text is the visible comment text.
func (c Comment) Text() string {
	if c.Title != "" {
		return c.Title + ": " + c.Body
	}
	return c.Body
}

// EditOperation is one unit of work. Which fields matter depends on Kind.
type EditOperation struct {
	Kind      Kind     `json:"type"`
	NewText   *string  `json:"new_text,omitempty"`
	Quote     string   `json:"quote,omitempty"`
	Severity  Severity `json:"severity,omitempty"`
	Highlight bool     `json:"highlight,omitempty"`
	Comment   *Comment `json:"comment,omitempty"`

	// set when the entry could not be decoded; Validate reports it
	decodeErr error
}

// Replace builds a ReplaceSelection operation.
func Replace(text string) EditOperation {
	return EditOperation{Kind: ReplaceSelection, NewText: &text}
}

// InsertAfter builds an InsertAfterSelection operation.
func InsertAfter(text string) EditOperation {
	return EditOperation{Kind: InsertAfterSelection, NewText: &text}
}

// InsertBefore builds an InsertBeforeSelection operation.
func InsertBefore(text string) EditOperation {
	return EditOperation{Kind: InsertBeforeSelection, NewText: &text}
}

// CommentOn builds a CommentOnQuote operation.
func CommentOn(quote string, comment Comment) EditOperation {
	return EditOperation{Kind: CommentOnQuote, Quote: quote, Comment: &comment}
}

// Validate checks the fields required by the operation's kind. An empty
// quote is allowed: applying it is a no-op.
func (op EditOperation) Validate() error {
	if op.decodeErr != nil {
		return op.decodeErr
	}
	if !op.Kind.IsValid() {
		return fmt.Errorf("%w: missing or unknown type", ErrInvalidOperation)
	}
	if op.Kind.NeedsText() && op.NewText == nil {
		return fmt.Errorf("%w: %s requires new_text", ErrInvalidOperation, op.Kind)
	}
	if !op.Severity.IsValid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidOperation, op.Severity)
	}
	return nil
}

// Text returns NewText or the empty string.
func (op EditOperation) Text() string {
	if op.NewText == nil {
		return ""
	}
	return *op.NewText
}

// HasComment reports whether the operation carries a non-blank comment body.
func (op EditOperation) HasComment() bool {
	return op.Comment != nil && strings.TrimSpace(op.Comment.Body) != ""
}

func (op EditOperation) String() string {
	switch {
	case op.Kind == CommentOnQuote:
		return fmt.Sprintf("%s %q", op.Kind, op.Quote)
	case op.Kind.NeedsText():
		return fmt.Sprintf("%s (%d chars)", op.Kind, len([]rune(op.Text())))
	default:
		return op.Kind.String()
	}
}

// UnmarshalJSON requires the type field so a payload without one is
// rejected instead of decoding to KindUnknown.
func (op *EditOperation) UnmarshalJSON(b []byte) error {
	type wire EditOperation
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	if head.Type == nil {
		return fmt.Errorf("%w: missing type", ErrInvalidOperation)
	}
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		if errors.Is(err, ErrInvalidOperation) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	*op = EditOperation(w)
	return nil
}
