// Package suggest requests edit operations for a selection, either from the
// legal assistant API or directly from an OpenAI-compatible model.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/legal-assistant/wordkit/internal/operation"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTimeout        = errors.New("suggestion request timed out")
	ErrEmptySelection = errors.New("no selection text provided")
	ErrInvalidRequest = errors.New("invalid request")
	ErrEmptyResponse  = errors.New("model returned an empty response")
)

const (
	MinClauseRequest = 3
	MaxClauseRequest = 2000
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("suggestion service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("suggestion service returned %d: %s", e.StatusCode, e.Detail)
}

// IsRetryable reports whether repeating the request may succeed.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}

type ImproveRequest struct {
	SelectionText string `json:"selection_text"`
	Instructions  string `json:"instructions,omitempty"`
}

func (r ImproveRequest) Validate() error {
	if strings.TrimSpace(r.SelectionText) == "" {
		return ErrEmptySelection
	}
	return nil
}

type DraftRequest struct {
	ClauseRequest     string `json:"clause_request"`
	ContextText       string `json:"context_text,omitempty"`
	StyleInstructions string `json:"style_instructions,omitempty"`
}

func (r DraftRequest) Validate() error {
	n := utf8.RuneCountInString(strings.TrimSpace(r.ClauseRequest))
	if n < MinClauseRequest || n > MaxClauseRequest {
		return fmt.Errorf("%w: clause request must be %d to %d characters, got %d",
			ErrInvalidRequest, MinClauseRequest, MaxClauseRequest, n)
	}
	return nil
}

type ProofreadRequest struct {
	SelectionText string `json:"selection_text"`
}

func (r ProofreadRequest) Validate() error {
	if strings.TrimSpace(r.SelectionText) == "" {
		return ErrEmptySelection
	}
	return nil
}

// Response is the ordered batch for one request and the model that made it.
type Response struct {
	Operations operation.Batch `json:"operations"`
	Model      string          `json:"model"`
}

// Source produces operation batches. Implementations validate requests
// before doing any I/O.
type Source interface {
	ImproveWriting(ctx context.Context, req ImproveRequest) (Response, error)
	DraftClause(ctx context.Context, req DraftRequest) (Response, error)
	Proofread(ctx context.Context, req ProofreadRequest) (Response, error)
}

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() (string, bool)
}
