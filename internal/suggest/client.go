package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/legal-assistant/wordkit/internal/operation"
)

const (
	DefaultTimeout = 30 * time.Second
	maxBodySize    = 4 << 20
	maxDetailRunes = 200
)

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Role         string `json:"role,omitempty"`
	IsActive     bool   `json:"is_active"`
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request. Zero or less keeps the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = ts
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the legal assistant API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	tokens  TokenSource
	logger  *slog.Logger
}

var _ Source = (*Client)(nil)

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) ImproveWriting(ctx context.Context, req ImproveRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	return c.suggest(ctx, "/word/improve-writing", req)
}

func (c *Client) DraftClause(ctx context.Context, req DraftRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	return c.suggest(ctx, "/word/draft-clause", req)
}

func (c *Client) Proofread(ctx context.Context, req ProofreadRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	return c.suggest(ctx, "/word/proofread", req)
}

func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Token{}, fmt.Errorf("%w: email and password are required", ErrInvalidRequest)
	}
	var tok Token
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &tok); err != nil {
		return Token{}, err
	}
	if tok.AccessToken == "" {
		return Token{}, errors.New("login response carried no access token")
	}
	return tok, nil
}

// Refresh exchanges the current token for a new one.
func (c *Client) Refresh(ctx context.Context) (Token, error) {
	var tok Token
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, &tok); err != nil {
		return Token{}, err
	}
	return tok, nil
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (c *Client) suggest(ctx context.Context, path string, req any) (Response, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, req, &raw); err != nil {
		return Response{}, err
	}
	env, err := operation.DecodeBatch(bytes.NewReader(raw))
	if err != nil {
		return Response{}, err
	}
	c.logger.Debug("suggestions received", "path", path, "operations", len(env.Operations), "model", env.Model)
	return Response(env), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return c.transportError(method, path, err)
	}
	c.logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, errorDetail(data, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(data, resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) transportError(method, path string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s: %s %s", ErrTimeout, c.timeout, method, path)
	}
	return fmt.Errorf("%s %s: %w", method, path, err)
}

// errorDetail extracts the message from a FastAPI error body. Validation
// errors carry a list of {loc, msg} entries.
func errorDetail(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		detail := gjson.GetBytes(body, "detail")
		switch {
		case detail.Type == gjson.String:
			return detail.String()
		case detail.IsArray():
			var msgs []string
			for _, m := range detail.Get("#.msg").Array() {
				msgs = append(msgs, m.String())
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		case detail.Exists():
			return detail.Raw
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}
	if utf8.RuneCountInString(text) > maxDetailRunes {
		text = string([]rune(text)[:maxDetailRunes]) + "..."
	}
	return text
}
