// Package settings is a per-profile key-value store that follows the user
// between machines. Values live in one JSON document per profile inside a
// blob bucket.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

var ErrInvalidProfile = errors.New("invalid profile name")

const DefaultProfile = "default"

type document struct {
	Version   int               `json:"version"`
	Values    map[string]string `json:"values"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type Store struct {
	bucket      *blob.Bucket
	ownsBucket  bool
	key         string
	mu          sync.RWMutex
	values      map[string]string
	seq         uint64
	saveMu      sync.Mutex
	lastWritten uint64
}

// Open loads the profile's settings from bucket. A profile that was never
// saved starts empty.
func Open(ctx context.Context, bucket *blob.Bucket, profile string) (*Store, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	if strings.ContainsAny(profile, `/\`) || strings.HasPrefix(profile, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
	}

	s := &Store{
		bucket: bucket,
		key:    "profiles/" + profile + ".json",
		values: make(map[string]string),
	}
	data, err := bucket.ReadAll(ctx, s.key)
	switch {
	case gcerrors.Code(err) == gcerrors.NotFound:
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", s.key, err)
	}
	if doc.Values != nil {
		s.values = doc.Values
	}
	return s, nil
}

// OpenDir opens a file-backed store rooted at dir.
func OpenDir(ctx context.Context, dir, profile string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		NoTempDir: true,
	})
	if err != nil {
		return nil, err
	}
	s, err := Open(ctx, bucket, profile)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	s.ownsBucket = true
	return s, nil
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set changes the in-memory value. Call SaveAsync to persist it.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.seq++
}

func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.seq++
	}
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// SaveAsync persists the values as they are now. The channel yields one
// result and is closed; callers must wait on it before assuming the values
// are stored. A save overtaken by a newer one is skipped.
func (s *Store) SaveAsync(ctx context.Context) <-chan error {
	s.mu.RLock()
	doc := document{Version: 1, Values: maps.Clone(s.values), UpdatedAt: time.Now().UTC()}
	seq := s.seq
	s.mu.RUnlock()

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.write(ctx, seq, doc)
	}()
	return done
}

// Save is SaveAsync followed by the wait.
func (s *Store) Save(ctx context.Context) error {
	select {
	case err := <-s.SaveAsync(ctx):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) write(ctx context.Context, seq uint64, doc document) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if seq < s.lastWritten {
		return nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := s.bucket.WriteAll(ctx, s.key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	s.lastWritten = seq
	return nil
}

// Close releases the bucket when the store opened it.
func (s *Store) Close() error {
	if s.ownsBucket {
		return s.bucket.Close()
	}
	return nil
}
