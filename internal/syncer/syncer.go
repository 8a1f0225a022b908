// Package syncer orchestrates document load, save, delete, and rename
// against the remote store, keeping the index, the in-memory list, and the
// local cache consistent.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/laguz/internal/cache"
	"github.com/starford/laguz/internal/checksum"
	"github.com/starford/laguz/internal/docindex"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/parser"
	"github.com/starford/laguz/internal/remote"
	"github.com/starford/laguz/internal/retry"
)

// fetchLimit bounds how many parallel gets a load runs at once.
const fetchLimit = 8

// Synchronizer owns the authoritative in-memory document list and is the
// only writer of the local cache and the remote index.
type Synchronizer struct {
	store  remote.Store
	index  *docindex.Manager
	cache  *cache.DB
	policy retry.Policy
	logger *slog.Logger

	mu        sync.Mutex
	identity  string
	docs      []models.Document
	persisted map[string]string // key -> fingerprint of last persisted title+contents
}

// New creates a synchronizer. identity scopes the local cache.
func New(store remote.Store, index *docindex.Manager, db *cache.DB, policy retry.Policy, logger *slog.Logger, identity string) *Synchronizer {
	return &Synchronizer{
		store:     store,
		index:     index,
		cache:     db,
		policy:    policy,
		logger:    logger,
		identity:  identity,
		persisted: map[string]string{},
	}
}

// Identity returns the identity the cache is currently scoped by.
func (s *Synchronizer) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity rescopes the cache, used when the identity provider becomes
// reachable after an offline start. The current snapshot is written through
// under the new scope immediately so it survives a restart.
func (s *Synchronizer) SetIdentity(identity string) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	s.writeThrough()
}

// Documents returns a copy of the in-memory document list, most recent
// first.
func (s *Synchronizer) Documents() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Document(nil), s.docs...)
}

// Get returns the in-memory document at key.
func (s *Synchronizer) Get(key string) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.Key == key {
			return d, true
		}
	}
	return models.Document{}, false
}

// LoadCached seeds the in-memory list from the local cache for instant
// display before the first remote load completes. Returns nil when no
// snapshot exists.
func (s *Synchronizer) LoadCached() []models.Document {
	docs, ok := s.cache.Load(s.Identity())
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.docs = docs
	s.rebuildPersistedLocked()
	s.mu.Unlock()
	return append([]models.Document(nil), docs...)
}

// Load reads the index and fetches every key from the remote store in
// parallel. Individual fetch or decode failures are logged and that
// document is dropped; only an unreachable store fails the whole load.
// The result replaces the in-memory list and is written through to the
// cache.
func (s *Synchronizer) Load(ctx context.Context) ([]models.Document, error) {
	keys, err := s.index.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	fetched := make([]*models.Document, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for i, key := range keys {
		g.Go(func() error {
			var raw string
			var ok bool
			err := s.policy.Do(gctx, func(ctx context.Context) error {
				var gerr error
				raw, ok, gerr = s.store.Get(ctx, key)
				return gerr
			})
			if err != nil {
				s.logger.Warn("syncer: fetch failed, dropping document",
					slog.String("key", key), slog.String("error", err.Error()))
				return nil
			}
			if !ok {
				s.logger.Warn("syncer: key in index but absent in store", slog.String("key", key))
				return nil
			}
			doc, derr := parser.Decode(key, raw)
			if derr != nil {
				s.logger.Warn("syncer: undecodable document, dropping",
					slog.String("key", key), slog.String("error", derr.Error()))
				return nil
			}
			fetched[i] = doc
			return nil
		})
	}
	_ = g.Wait() // workers swallow their own failures

	docs := make([]models.Document, 0, len(fetched))
	for _, d := range fetched {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	// Most recent first; legacy records with no timestamp sort last.
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].LastModified > docs[j].LastModified
	})

	s.mu.Lock()
	s.docs = docs
	s.rebuildPersistedLocked()
	s.mu.Unlock()

	s.writeThrough()
	return append([]models.Document(nil), docs...), nil
}

// Save persists doc. Unchanged title+contents make it a no-op. A changed
// title on an existing document is a rename: the old key is removed from
// the store and the index before the new key is written. The rename is not
// atomic across the two keys. On success doc's Key and LastModified are
// updated and the document moves to the front of the in-memory list.
func (s *Synchronizer) Save(ctx context.Context, doc *models.Document) error {
	newKey := models.KeyForTitle(doc.Title)
	oldKey := doc.Key
	fp := checksum.Fingerprint(doc.Title, doc.Contents)

	s.mu.Lock()
	if oldKey != "" && s.persisted[oldKey] == fp {
		s.mu.Unlock()
		return nil // unchanged since last persist, skip the write
	}
	s.mu.Unlock()

	if oldKey != "" && oldKey != newKey {
		if err := s.policy.Do(ctx, func(ctx context.Context) error {
			return s.store.Remove(ctx, oldKey)
		}); err != nil {
			return fmt.Errorf("save %s: remove old key: %w", newKey, err)
		}
		if err := s.policy.Do(ctx, func(ctx context.Context) error {
			return s.index.Remove(ctx, oldKey)
		}); err != nil {
			return fmt.Errorf("save %s: deindex old key: %w", newKey, err)
		}
	}

	doc.LastModified = time.Now().UnixMilli()
	payload, err := parser.Encode(doc)
	if err != nil {
		return fmt.Errorf("save %s: %w", newKey, err)
	}
	if err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.store.Set(ctx, newKey, payload)
	}); err != nil {
		return fmt.Errorf("save %s: %w", newKey, err)
	}
	if err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.index.Add(ctx, newKey)
	}); err != nil {
		return fmt.Errorf("save %s: index: %w", newKey, err)
	}

	doc.Key = newKey

	s.mu.Lock()
	next := make([]models.Document, 0, len(s.docs)+1)
	next = append(next, *doc.Clone())
	for _, d := range s.docs {
		if d.Key == newKey || d.Key == oldKey {
			continue // stale entries under both the new and the prior key
		}
		next = append(next, d)
	}
	s.docs = next
	if oldKey != "" && oldKey != newKey {
		delete(s.persisted, oldKey)
	}
	s.persisted[newKey] = fp
	s.mu.Unlock()

	s.writeThrough()
	return nil
}

// Delete removes key from the remote store and the index, drops it from the
// in-memory list, and writes the shortened list through to the cache.
func (s *Synchronizer) Delete(ctx context.Context, key string) error {
	if err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.store.Remove(ctx, key)
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.index.Remove(ctx, key)
	}); err != nil {
		return fmt.Errorf("delete %s: index: %w", key, err)
	}

	s.mu.Lock()
	next := s.docs[:0]
	for _, d := range s.docs {
		if d.Key != key {
			next = append(next, d)
		}
	}
	s.docs = next
	delete(s.persisted, key)
	s.mu.Unlock()

	s.writeThrough()
	return nil
}

// rebuildPersistedLocked resets the persisted fingerprints to match the
// current list; everything in the list is, by definition, persisted state.
func (s *Synchronizer) rebuildPersistedLocked() {
	s.persisted = make(map[string]string, len(s.docs))
	for _, d := range s.docs {
		s.persisted[d.Key] = checksum.Fingerprint(d.Title, d.Contents)
	}
}

// writeThrough replaces the cached snapshot with the current list. Cache
// failures are logged and swallowed; the cache is never authoritative.
func (s *Synchronizer) writeThrough() {
	s.mu.Lock()
	identity := s.identity
	docs := append([]models.Document(nil), s.docs...)
	s.mu.Unlock()

	if err := s.cache.Store(identity, docs); err != nil {
		s.logger.Warn("syncer: cache write-through failed", slog.String("error", err.Error()))
	}
}
