// Package auth keeps the API access token in the roaming settings store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TokenKey is the settings key the token is stored under.
const TokenKey = "authToken"

var ErrEmptyToken = errors.New("empty token")

// KV is the subset of settings.Store the token store needs.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
	SaveAsync(ctx context.Context) <-chan error
}

type TokenStore struct {
	kv KV
}

func NewTokenStore(kv KV) *TokenStore {
	return &TokenStore{kv: kv}
}

// SaveToken stores the token and waits until it is persisted.
func (s *TokenStore) SaveToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	s.kv.Set(TokenKey, token)
	if err := await(ctx, s.kv.SaveAsync(ctx)); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Token returns the stored token. ok is false when none is stored.
func (s *TokenStore) Token() (string, bool) {
	tok, ok := s.kv.Get(TokenKey)
	if !ok || tok == "" {
		return "", false
	}
	return tok, true
}

// ClearToken removes the token and waits until the removal is persisted.
func (s *TokenStore) ClearToken(ctx context.Context) error {
	s.kv.Remove(TokenKey)
	if err := await(ctx, s.kv.SaveAsync(ctx)); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

func await(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
