package suggest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultClaudeModel = "claude-3-7-sonnet-latest"

type anthropicOptions struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	backoff     time.Duration
	timeout     time.Duration
	logger      *slog.Logger
}

type AnthropicOption func(*anthropicOptions)

func WithAnthropicKey(key string) AnthropicOption {
	return func(o *anthropicOptions) {
		o.apiKey = key
	}
}

func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(o *anthropicOptions) {
		o.baseURL = baseURL
	}
}

func WithAnthropicModel(model string) AnthropicOption {
	return func(o *anthropicOptions) {
		if model != "" {
			o.model = model
		}
	}
}

func WithAnthropicTemperature(t float64) AnthropicOption {
	return func(o *anthropicOptions) {
		o.temperature = t
	}
}

func WithAnthropicBackoff(d time.Duration) AnthropicOption {
	return func(o *anthropicOptions) {
		o.backoff = d
	}
}

// WithAnthropicTimeout bounds every request, retries included. Zero or less
// keeps the default.
func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(o *anthropicOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithAnthropicLogger(logger *slog.Logger) AnthropicOption {
	return func(o *anthropicOptions) {
		o.logger = logger
	}
}

// AnthropicSource asks a Claude model directly.
type AnthropicSource struct {
	chatSource
	client anthropic.Client
}

var _ Source = (*AnthropicSource)(nil)

func NewAnthropicSource(opts ...AnthropicOption) *AnthropicSource {
	o := anthropicOptions{
		model:       DefaultClaudeModel,
		temperature: DefaultTemperature,
		backoff:     2 * time.Second,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	clientOptions := []anthropicoption.RequestOption{anthropicoption.WithMaxRetries(0)}
	if o.apiKey != "" {
		clientOptions = append(clientOptions, anthropicoption.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOptions = append(clientOptions, anthropicoption.WithBaseURL(o.baseURL))
	}

	s := &AnthropicSource{client: anthropic.NewClient(clientOptions...)}
	s.chatSource = chatSource{
		provider:    "anthropic",
		model:       o.model,
		temperature: o.temperature,
		timeout:     o.timeout,
		backoff:     o.backoff,
		logger:      o.logger,
		exchange:    s.exchange,
		inspect:     inspectAnthropicError,
	}
	return s
}

func (s *AnthropicSource) exchange(ctx context.Context, system, user string, temperature float64) (string, error) {
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func inspectAnthropicError(err error) providerError {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return providerError{}
	}
	// Claude reports overload as 529; treat it like a rate limit.
	code := apierr.StatusCode
	if code == 529 {
		code = http.StatusTooManyRequests
	}
	return providerError{
		ok:         true,
		statusCode: code,
		detail:     http.StatusText(apierr.StatusCode),
		response:   apierr.Response,
	}
}
