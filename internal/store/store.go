// Package store defines the repositories the state coordinator persists
// through, and the versioned JSON envelope every backend writes.
//
// Repositories must treat missing data as empty (or default, for
// settings) and must report corrupt payloads with ErrMalformed so callers
// can tell them apart from I/O faults.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/settings"
)

// Version is the envelope format written by this build.
const Version = 1

// ErrMalformed reports stored data that exists but cannot be decoded.
var ErrMalformed = errors.New("malformed stored data")

// HistoryRepository persists clipboard history, newest first.
type HistoryRepository interface {
	Load(ctx context.Context) ([]item.Item, error)
	Save(ctx context.Context, items []item.Item) error
	Clear(ctx context.Context) error
}

// PinnedRepository persists pinned items, most recently pinned first.
type PinnedRepository interface {
	Load(ctx context.Context) ([]item.Pinned, error)
	Save(ctx context.Context, pins []item.Pinned) error
}

// SettingsRepository persists the settings snapshot.
type SettingsRepository interface {
	Load(ctx context.Context) (settings.Settings, error)
	Save(ctx context.Context, s settings.Settings) error
}

type envelope[T any] struct {
	Version int `json:"version"`
	Data    T   `json:"data"`
}

// Encode wraps v in a versioned envelope.
func Encode[T any](v T) ([]byte, error) {
	b, err := json.Marshal(envelope[T]{Version: Version, Data: v})
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return b, nil
}

// Decode unwraps an envelope written by Encode. Unknown versions and
// undecodable bytes are ErrMalformed.
func Decode[T any](b []byte) (T, error) {
	var v T
	if err := DecodeInto(b, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// DecodeInto is Decode into an existing value; fields absent from the
// payload keep what dst already holds.
func DecodeInto[T any](b []byte, dst *T) error {
	env := envelope[*T]{Data: dst}
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, env.Version)
	}
	return nil
}
