package suggest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultModel = "gpt-4o-mini"

type openaiOptions struct {
	apiKey       string
	baseURL      string
	model        string
	temperature  float64
	extraHeaders map[string]string
	backoff      time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

type OpenAIOption func(*openaiOptions)

func WithOpenAIKey(key string) OpenAIOption {
	return func(o *openaiOptions) {
		o.apiKey = key
	}
}

func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(o *openaiOptions) {
		o.baseURL = baseURL
	}
}

func WithOpenAIModel(model string) OpenAIOption {
	return func(o *openaiOptions) {
		if model != "" {
			o.model = model
		}
	}
}

func WithOpenAITemperature(t float64) OpenAIOption {
	return func(o *openaiOptions) {
		o.temperature = t
	}
}

func WithOpenAIExtraHeaders(headers map[string]string) OpenAIOption {
	return func(o *openaiOptions) {
		o.extraHeaders = headers
	}
}

// WithOpenAIBackoff sets the base delay between retries of rate limited
// calls.
func WithOpenAIBackoff(d time.Duration) OpenAIOption {
	return func(o *openaiOptions) {
		o.backoff = d
	}
}

// WithOpenAITimeout bounds every request, retries included. Zero or less
// keeps the default.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(o *openaiOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(o *openaiOptions) {
		o.logger = logger
	}
}

// OpenAISource asks a chat completion model directly and shapes its answer
// into the same operations the API returns.
type OpenAISource struct {
	chatSource
	client openai.Client
}

var _ Source = (*OpenAISource)(nil)

func NewOpenAISource(opts ...OpenAIOption) *OpenAISource {
	o := openaiOptions{
		model:       DefaultModel,
		temperature: DefaultTemperature,
		backoff:     2 * time.Second,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	clientOptions := []option.RequestOption{option.WithMaxRetries(0)}
	if o.apiKey != "" {
		clientOptions = append(clientOptions, option.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(o.baseURL))
	}
	for key, value := range o.extraHeaders {
		clientOptions = append(clientOptions, option.WithHeader(key, value))
	}

	s := &OpenAISource{client: openai.NewClient(clientOptions...)}
	s.chatSource = chatSource{
		provider:    "openai",
		model:       o.model,
		temperature: o.temperature,
		timeout:     o.timeout,
		backoff:     o.backoff,
		logger:      o.logger,
		exchange:    s.exchange,
		inspect:     inspectOpenAIError,
	}
	return s
}

func (s *OpenAISource) exchange(ctx context.Context, system, user string, temperature float64) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func inspectOpenAIError(err error) providerError {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return providerError{}
	}
	return providerError{
		ok:         true,
		statusCode: apierr.StatusCode,
		detail:     apierr.Message,
		response:   apierr.Response,
	}
}
