package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/legal-assistant/wordkit/internal/operation"
	"github.com/legal-assistant/wordkit/internal/status"
)

const (
	DefaultTemperature = 0.2
	maxRetries         = 3
	maxIssues          = 25
	maxTokens          = 2048
)

// exchangeFunc sends one system and user message pair to a chat model and
// returns the reply text.
type exchangeFunc func(ctx context.Context, system, user string, temperature float64) (string, error)

// providerError is what a chat provider reports about a failed exchange.
// ok is false for errors that did not come from the provider's API.
type providerError struct {
	ok         bool
	statusCode int
	detail     string
	response   *http.Response
}

// chatSource shapes chat model replies into operation batches. Providers
// supply the exchange and the error inspection.
type chatSource struct {
	provider    string
	model       string
	temperature float64
	timeout     time.Duration
	backoff     time.Duration
	logger      *slog.Logger
	exchange    exchangeFunc
	inspect     func(err error) providerError
}

func (s *chatSource) Model() string {
	return s.model
}

func (s *chatSource) ImproveWriting(ctx context.Context, req ImproveRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	rewritten, err := s.complete(ctx, improveSystemPrompt, improveUserPrompt(req), s.temperature)
	if err != nil {
		return Response{}, err
	}
	op := operation.Replace(rewritten)
	op.Comment = &operation.Comment{
		Title: "Improve writing",
		Body:  "Rewrote for clarity and legal style while preserving meaning.",
	}
	return Response{Operations: operation.Batch{op}, Model: s.model}, nil
}

func (s *chatSource) DraftClause(ctx context.Context, req DraftRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	clause, err := s.complete(ctx, draftSystemPrompt, draftUserPrompt(req), s.temperature)
	if err != nil {
		return Response{}, err
	}
	op := operation.InsertAfter("\n" + clause + "\n")
	op.Comment = &operation.Comment{
		Title: "Draft clause",
		Body:  "Drafted clause for request: " + strings.TrimSpace(req.ClauseRequest),
	}
	return Response{Operations: operation.Batch{op}, Model: s.model}, nil
}

func (s *chatSource) Proofread(ctx context.Context, req ProofreadRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	content, err := s.complete(ctx, proofreadSystemPrompt, strings.TrimSpace(req.SelectionText), 0)
	if err != nil {
		return Response{}, err
	}
	issues, err := parseIssues(content)
	if err != nil {
		return Response{}, err
	}
	if len(issues) > maxIssues {
		issues = issues[:maxIssues]
	}
	ops := make(operation.Batch, 0, len(issues))
	for _, is := range issues {
		ops = append(ops, is.operation())
	}
	return Response{Operations: ops, Model: s.model}, nil
}

// complete runs one exchange, retrying rate limited and server errors, and
// returns the trimmed reply. The whole call, retries included, is bounded by
// the source's timeout.
func (s *chatSource) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attempts := 0
	for {
		attempts++
		content, err := s.exchange(ctx, system, user, temperature)
		if err != nil {
			if s.timedOut(ctx, err) {
				return "", s.timeoutError()
			}
			retry, after, retryErr := s.shouldRetry(attempts, err)
			if retryErr != nil {
				return "", retryErr
			}
			if retry {
				status.Warn(fmt.Sprintf("Rate limited, retrying... attempt %d of %d", attempts, maxRetries), status.WithDuration(after))
				select {
				case <-ctx.Done():
					if s.timedOut(ctx, ctx.Err()) {
						return "", s.timeoutError()
					}
					return "", ctx.Err()
				case <-time.After(after):
					continue
				}
			}
			return "", err
		}

		content = strings.TrimSpace(content)
		if content == "" {
			return "", ErrEmptyResponse
		}
		s.logger.Debug("completion done", "provider", s.provider, "model", s.model, "attempts", attempts)
		return content, nil
	}
}

func (s *chatSource) timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func (s *chatSource) timeoutError() error {
	return fmt.Errorf("%w after %s: %s %s", ErrTimeout, s.timeout, s.provider, s.model)
}

func (s *chatSource) shouldRetry(attempts int, err error) (bool, time.Duration, error) {
	perr := s.inspect(err)
	if !perr.ok {
		return false, 0, err
	}
	if perr.statusCode == http.StatusUnauthorized {
		return false, 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	apiErr := &APIError{StatusCode: perr.statusCode, Detail: perr.detail}
	if perr.statusCode != http.StatusTooManyRequests && perr.statusCode != http.StatusInternalServerError {
		return false, 0, apiErr
	}
	if attempts > maxRetries {
		return false, 0, fmt.Errorf("maximum retry attempts reached: %d retries: %w", maxRetries, apiErr)
	}

	backoff := s.backoff * time.Duration(1<<(attempts-1))
	wait := backoff + backoff/5
	if perr.response != nil {
		if value := perr.response.Header.Get("Retry-After"); value != "" {
			if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
	}
	return true, wait, nil
}
