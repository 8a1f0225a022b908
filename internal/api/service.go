package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/parser"
	"github.com/starford/laguz/internal/scheduler"
	"github.com/starford/laguz/internal/sse"
	"github.com/starford/laguz/internal/syncer"
)

// Service drives the synchronizer on behalf of the editing surface. Each
// open document gets a draft with its own debounce scheduler; the scheduler
// is the single save driver for that document.
type Service struct {
	sync     *syncer.Synchronizer
	broker   *sse.Broker // nil disables event broadcasting
	debounce time.Duration

	online atomic.Bool

	mu     sync.Mutex
	drafts map[string]*draft
}

// draft is one open editing session: the working copy plus its scheduler.
type draft struct {
	mu    sync.Mutex
	doc   *models.Document
	sched *scheduler.Scheduler
}

// NewService creates the API service. debounce is the quiet period between
// the last edit and the save.
func NewService(sy *syncer.Synchronizer, broker *sse.Broker, debounce time.Duration) *Service {
	s := &Service{
		sync:     sy,
		broker:   broker,
		debounce: debounce,
		drafts:   map[string]*draft{},
	}
	s.online.Store(true)
	return s
}

// Documents returns the authoritative in-memory list, most recent first.
func (s *Service) Documents() []models.Document {
	return s.sync.Documents()
}

// Document returns the open draft for key if one exists (so unsaved edits
// are visible), otherwise the persisted in-memory entry.
func (s *Service) Document(key string) (models.Document, error) {
	s.mu.Lock()
	d, ok := s.drafts[key]
	s.mu.Unlock()
	if ok {
		d.mu.Lock()
		doc := *d.doc.Clone()
		d.mu.Unlock()
		if doc.Key == "" {
			doc.Key = key
		}
		return doc, nil
	}
	doc, ok := s.sync.Get(key)
	if !ok {
		return models.Document{}, apperr.ErrNotFound
	}
	return doc, nil
}

// CreateDraft opens a new document draft and schedules its first save.
// Returns the draft key.
func (s *Service) CreateDraft(title, contents string, tags []string, format models.Format) (string, error) {
	if title == "" {
		title = parser.DeriveTitle(contents)
	}
	if format == "" {
		format = models.FormatMarkdown
	}
	key := models.KeyForTitle(title)

	s.mu.Lock()
	if _, exists := s.drafts[key]; exists {
		s.mu.Unlock()
		return "", errors.New("draft already open for " + key)
	}
	doc := &models.Document{Title: title, Contents: contents, Tags: tags, Format: format}
	d := s.newDraft(key, doc)
	s.drafts[key] = d
	s.mu.Unlock()

	d.sched.Notify()
	return key, nil
}

// UpdateDraft records an edit to the document at key, opening a draft
// seeded from the persisted entry if needed, and notifies the scheduler.
func (s *Service) UpdateDraft(key, title, contents string, tags []string, format models.Format) error {
	s.mu.Lock()
	d, ok := s.drafts[key]
	if !ok {
		persisted, found := s.sync.Get(key)
		if !found {
			s.mu.Unlock()
			return apperr.ErrNotFound
		}
		d = s.newDraft(key, persisted.Clone())
		s.drafts[key] = d
	}
	s.mu.Unlock()

	d.mu.Lock()
	d.doc.Contents = contents
	if title != "" {
		d.doc.Title = title
	} else {
		d.doc.Title = parser.DeriveTitle(contents)
	}
	if tags != nil {
		d.doc.Tags = tags
	}
	if format != "" {
		d.doc.Format = format
	}
	d.mu.Unlock()

	d.sched.Notify()
	return nil
}

// FlushDraft forces any pending save for key to complete before returning.
func (s *Service) FlushDraft(ctx context.Context, key string) (scheduler.Status, error) {
	s.mu.Lock()
	d, ok := s.drafts[key]
	s.mu.Unlock()
	if !ok {
		return "", apperr.ErrNotFound
	}
	d.sched.Flush(ctx)
	return d.sched.Status(), nil
}

// CloseDraft flushes and discards the editing session for key.
func (s *Service) CloseDraft(ctx context.Context, key string) {
	s.mu.Lock()
	d, ok := s.drafts[key]
	if ok {
		delete(s.drafts, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	d.sched.Flush(ctx)
	d.sched.Stop()
}

// DeleteDocument removes the document at key everywhere. An open draft for
// it is cancelled first; the in-flight save, if any, runs to completion
// before the delete proceeds.
func (s *Service) DeleteDocument(ctx context.Context, key string) error {
	s.mu.Lock()
	d, ok := s.drafts[key]
	if ok {
		delete(s.drafts, key)
	}
	s.mu.Unlock()
	if ok {
		d.sched.Cancel()
		d.sched.Stop()
	}

	if err := s.sync.Delete(ctx, key); err != nil {
		s.observeErr(err)
		return err
	}
	s.markOnline()
	if s.broker != nil {
		s.broker.PublishDocumentEvent("deleted", key)
	}
	return nil
}

// Reload re-runs a full load from the remote store.
func (s *Service) Reload(ctx context.Context) ([]models.Document, error) {
	docs, err := s.sync.Load(ctx)
	if err != nil {
		s.observeErr(err)
		return nil, err
	}
	s.markOnline()
	if s.broker != nil {
		s.broker.Publish(sse.Event{Type: "list.updated", Data: map[string]string{}})
	}
	return docs, nil
}

// StatusReport is the connectivity and per-draft save state exposed to the
// UI.
type StatusReport struct {
	Online   bool              `json:"online"`
	Identity string            `json:"identity"`
	Drafts   map[string]string `json:"drafts"`
}

// Status returns the current report.
func (s *Service) Status() StatusReport {
	s.mu.Lock()
	drafts := make(map[string]string, len(s.drafts))
	for k, d := range s.drafts {
		drafts[k] = string(d.sched.Status())
	}
	s.mu.Unlock()
	return StatusReport{
		Online:   s.online.Load(),
		Identity: s.sync.Identity(),
		Drafts:   drafts,
	}
}

// Online reports the last observed connectivity.
func (s *Service) Online() bool { return s.online.Load() }

// SetOnline records a connectivity transition and broadcasts it.
func (s *Service) SetOnline(online bool) {
	if s.online.Swap(online) != online && s.broker != nil {
		s.broker.PublishConnectivity(online)
	}
}

// Shutdown flushes every open draft so no pending edit is lost, then stops
// the schedulers.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	open := make([]*draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		open = append(open, d)
	}
	s.drafts = map[string]*draft{}
	s.mu.Unlock()

	for _, d := range open {
		d.sched.Flush(ctx)
		d.sched.Stop()
	}
}

func (s *Service) newDraft(key string, doc *models.Document) *draft {
	d := &draft{doc: doc}
	d.sched = scheduler.New(
		func(ctx context.Context) error { return s.saveDraft(ctx, d) },
		s.debounce,
		scheduler.WithStatusFunc(func(st scheduler.Status) {
			if s.broker == nil {
				return
			}
			d.mu.Lock()
			k := d.doc.Key
			d.mu.Unlock()
			if k == "" {
				k = key
			}
			s.broker.PublishSaveStatus(k, string(st))
		}),
	)
	return d
}

// saveDraft is the scheduler's save action: snapshot the working copy,
// persist it, then fold the assigned key and timestamp back into the draft.
func (s *Service) saveDraft(ctx context.Context, d *draft) error {
	d.mu.Lock()
	snapshot := d.doc.Clone()
	d.mu.Unlock()

	oldKey := snapshot.Key
	if err := s.sync.Save(ctx, snapshot); err != nil {
		s.observeErr(err)
		return err
	}
	s.markOnline()

	d.mu.Lock()
	d.doc.Key = snapshot.Key
	d.doc.LastModified = snapshot.LastModified
	d.mu.Unlock()

	if oldKey != "" && oldKey != snapshot.Key {
		s.remapDraft(d, snapshot.Key)
		if s.broker != nil {
			s.broker.PublishDocumentEvent("renamed", snapshot.Key)
		}
	} else {
		s.remapDraft(d, snapshot.Key)
		if s.broker != nil {
			s.broker.PublishDocumentEvent("saved", snapshot.Key)
		}
	}
	return nil
}

// remapDraft keys the draft under the key the save assigned, so follow-up
// requests address it by its current key.
func (s *Service) remapDraft(d *draft, newKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, existing := range s.drafts {
		if existing == d {
			if k != newKey {
				delete(s.drafts, k)
				s.drafts[newKey] = d
			}
			return
		}
	}
}

func (s *Service) observeErr(err error) {
	if errors.Is(err, apperr.ErrUnreachable) {
		s.SetOnline(false)
	} else {
		slog.Debug("api: operation failed", slog.String("error", err.Error()))
	}
}

func (s *Service) markOnline() {
	s.SetOnline(true)
}
