// Package docindex maintains the authoritative list of document keys as a
// single JSON record in the remote store.
package docindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/remote"
)

// Key is the well-known store key the index record lives under.
const Key = "__index__"

// Manager performs read-modify-write cycles on the index record. The cycles
// are not transactional: two concurrent writers can race and one update can
// be lost. That gap is accepted; see DESIGN.md.
type Manager struct {
	store  remote.Store
	logger *slog.Logger
}

// NewManager creates an index manager over store.
func NewManager(store remote.Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Read returns the current key set. An absent or corrupt index record is
// indistinguishable from an empty one and never produces an error; the only
// failure Read reports is an unreachable store, so callers can distinguish
// "no documents yet" from "no connectivity".
func (m *Manager) Read(ctx context.Context) ([]string, error) {
	raw, ok, err := m.store.Get(ctx, Key)
	if err != nil {
		if errors.Is(err, apperr.ErrUnreachable) {
			return nil, fmt.Errorf("docindex: read: %w", err)
		}
		m.logger.Warn("docindex: read failed, treating as empty", slog.String("error", err.Error()))
		return []string{}, nil
	}
	if !ok {
		return []string{}, nil
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		m.logger.Warn("docindex: corrupt index record, treating as empty", slog.String("error", err.Error()))
		return []string{}, nil
	}
	return keys, nil
}

// Write replaces the index record with the deduplicated, lexicographically
// sorted key set. This is a full replace, never a merge.
func (m *Manager) Write(ctx context.Context, keys []string) error {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)

	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("docindex: encode: %w", err)
	}
	if err := m.store.Set(ctx, Key, string(raw)); err != nil {
		return fmt.Errorf("docindex: write: %w", err)
	}
	return nil
}

// Add inserts key into the index if absent.
func (m *Manager) Add(ctx context.Context, key string) error {
	keys, err := m.Read(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k == key {
			return nil
		}
	}
	return m.Write(ctx, append(keys, key))
}

// Remove filters key out of the index.
func (m *Manager) Remove(ctx context.Context, key string) error {
	keys, err := m.Read(ctx)
	if err != nil {
		return err
	}
	out := keys[:0]
	found := false
	for _, k := range keys {
		if k == key {
			found = true
			continue
		}
		out = append(out, k)
	}
	if !found {
		return nil
	}
	return m.Write(ctx, out)
}
