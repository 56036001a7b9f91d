package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/legal-assistant/wordkit/internal/apply"
	"github.com/legal-assistant/wordkit/internal/auth"
	"github.com/legal-assistant/wordkit/internal/config"
	"github.com/legal-assistant/wordkit/internal/db"
	"github.com/legal-assistant/wordkit/internal/history"
	"github.com/legal-assistant/wordkit/internal/selection"
	"github.com/legal-assistant/wordkit/internal/status"
	"github.com/legal-assistant/wordkit/internal/suggest"
)

var (
	ErrBusy = errors.New("another request is still running")
	// ErrReauthenticate means the stored token was rejected and has been
	// cleared. The user has to sign in again.
	ErrReauthenticate = errors.New("sign in again")
	ErrNotSignedIn    = errors.New("not signed in")
)

const SourceFile = "file"

type App struct {
	History history.Service
	Status  status.Service
	Tokens  *auth.TokenStore
	Applier *apply.Applier

	// API is the legal assistant backend. It handles sign in even when
	// suggestions come from another source.
	API        *suggest.Client
	Source     suggest.Source
	SourceName string

	reader *selection.Reader
	flow   *semaphore.Weighted
}

type Option func(*App)

// WithSource replaces the suggestion source chosen from the configuration.
func WithSource(name string, src suggest.Source) Option {
	return func(a *App) {
		a.SourceName = name
		a.Source = src
	}
}

func WithStatus(svc status.Service) Option {
	return func(a *App) {
		a.Status = svc
	}
}

// New wires the services for one document session. kv holds the access
// token; conn stores run history.
func New(ctx context.Context, conn *sql.DB, cfg *config.Config, kv auth.KV, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	tokens := auth.NewTokenStore(kv)
	api := suggest.NewClient(cfg.API.BaseURL,
		suggest.WithTimeout(cfg.API.Timeout),
		suggest.WithTokenSource(tokens),
	)

	app := &App{
		History: history.NewService(db.New(conn)),
		Status:  status.GetService(),
		Tokens:  tokens,
		Applier: apply.New(apply.WithHighlightColor(cfg.HighlightColor)),
		API:     api,
		reader:  selection.NewReader(),
		flow:    semaphore.NewWeighted(1),
	}
	app.SourceName, app.Source = newSource(cfg, api)

	for _, o := range opts {
		o(app)
	}

	slog.DebugContext(ctx, "app ready", "source", app.SourceName, "profile", cfg.Profile)
	return app, nil
}

func newSource(cfg *config.Config, api *suggest.Client) (string, suggest.Source) {
	switch cfg.Source {
	case config.SourceOpenAI:
		return string(config.SourceOpenAI), suggest.NewOpenAISource(
			suggest.WithOpenAIKey(cfg.OpenAI.APIKey),
			suggest.WithOpenAIBaseURL(cfg.OpenAI.BaseURL),
			suggest.WithOpenAIModel(cfg.OpenAI.Model),
			suggest.WithOpenAITemperature(cfg.OpenAI.Temperature),
			suggest.WithOpenAITimeout(cfg.API.Timeout),
		)
	case config.SourceAnthropic:
		return string(config.SourceAnthropic), suggest.NewAnthropicSource(
			suggest.WithAnthropicKey(cfg.Anthropic.APIKey),
			suggest.WithAnthropicBaseURL(cfg.Anthropic.BaseURL),
			suggest.WithAnthropicModel(cfg.Anthropic.Model),
			suggest.WithAnthropicTemperature(cfg.Anthropic.Temperature),
			suggest.WithAnthropicTimeout(cfg.API.Timeout),
		)
	}
	return string(config.SourceAPI), api
}

// Login exchanges credentials for a token, stores it, and returns the
// signed in user.
func (a *App) Login(ctx context.Context, email, password string) (suggest.User, error) {
	tok, err := a.API.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return suggest.User{}, fmt.Errorf("login: %w", err)
	}
	if err := a.Tokens.SaveToken(ctx, tok.AccessToken); err != nil {
		return suggest.User{}, err
	}
	user, err := a.API.Me(ctx)
	if err != nil {
		return suggest.User{}, a.authFailed(ctx, err)
	}
	a.Status.Info(fmt.Sprintf("Signed in as %s", user.Email))
	return user, nil
}

// Refresh swaps the stored token for a fresh one.
func (a *App) Refresh(ctx context.Context) error {
	if _, ok := a.Tokens.Token(); !ok {
		return ErrNotSignedIn
	}
	tok, err := a.API.Refresh(ctx)
	if err != nil {
		return a.authFailed(ctx, err)
	}
	return a.Tokens.SaveToken(ctx, tok.AccessToken)
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.Tokens.ClearToken(ctx); err != nil {
		return err
	}
	a.Status.Info("Signed out")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) (suggest.User, error) {
	if _, ok := a.Tokens.Token(); !ok {
		return suggest.User{}, ErrNotSignedIn
	}
	user, err := a.API.Me(ctx)
	if err != nil {
		return suggest.User{}, a.authFailed(ctx, err)
	}
	return user, nil
}

// authFailed clears a rejected token so the next call starts signed out.
func (a *App) authFailed(ctx context.Context, err error) error {
	if !errors.Is(err, suggest.ErrUnauthorized) {
		return err
	}
	if clearErr := a.Tokens.ClearToken(ctx); clearErr != nil {
		slog.WarnContext(ctx, "failed to clear rejected token", "error", clearErr)
	}
	a.Status.Error("Your session has expired. Sign in again.", status.WithCritical(true))
	return fmt.Errorf("%w: %w", ErrReauthenticate, err)
}

// Shutdown releases the event brokers.
func (a *App) Shutdown() {
	a.Applier.Shutdown()
}
