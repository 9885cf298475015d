package studio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/pkg/models"
)

// ImagePublisher broadcasts image change events outside the process
type ImagePublisher interface {
	PublishImageChanged(ctx context.Context, event models.ImageChangedEvent) error
}

// Dependencies are shared by every session orchestrator
type Dependencies struct {
	Renderer  Renderer
	Decoder   ImageDecoder
	Remover   BackgroundRemover
	Store     SessionStore
	Publisher ImagePublisher
	Options   Options
	Logger    *zap.Logger
	// IdleTTL evicts sessions from memory after this long without a
	// request. Zero keeps them until deleted.
	IdleTTL time.Duration
}

type sessionEntry struct {
	o        *Orchestrator
	lastSeen atomic.Int64 // unix nanos
}

func (e *sessionEntry) touch(now time.Time) {
	e.lastSeen.Store(now.UnixNano())
}

// Sessions keeps one orchestrator per editor session
type Sessions struct {
	deps   Dependencies
	mu     sync.RWMutex
	byID   map[string]*sessionEntry
	now    func() time.Time
	logger *zap.Logger
}

// NewSessions creates an empty session registry
func NewSessions(deps Dependencies) *Sessions {
	if deps.Store == nil {
		deps.Store = NewMemoryStore()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Sessions{
		deps:   deps,
		byID:   make(map[string]*sessionEntry),
		now:    time.Now,
		logger: deps.Logger,
	}
}

// Create starts a new session
func (s *Sessions) Create(ctx context.Context) *Orchestrator {
	id := uuid.NewString()
	o := s.build(id)

	s.mu.Lock()
	s.byID[id] = s.newEntry(o)
	s.mu.Unlock()

	s.logger.Info("Session created", zap.String("session_id", id))
	return o
}

// Get returns the session with id. Sessions that are not in memory are
// restored from the store when a working logo was persisted for them.
func (s *Sessions) Get(ctx context.Context, id string) (*Orchestrator, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.RLock()
	e, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		e.touch(s.now())
		return e.o, nil
	}

	o := s.build(id)
	restored, err := o.Restore(ctx)
	if err != nil {
		s.logger.Warn("Failed to restore session", zap.String("session_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if !restored {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// another request may have restored it first
	if existing, ok := s.byID[id]; ok {
		existing.touch(s.now())
		return existing.o, nil
	}
	s.byID[id] = s.newEntry(o)
	s.logger.Info("Session restored", zap.String("session_id", id))
	return o, nil
}

// Delete ends a session: it is dropped from memory and its persisted data
// is flushed. Deleting an unknown session only flushes the store.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()

	if err := s.deps.Store.ForSession(id).Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush session %s: %w", id, err)
	}

	s.logger.Info("Session deleted", zap.String("session_id", id))
	return nil
}

// Sweep evicts sessions idle for longer than IdleTTL from memory and purges
// expired entries of in-process stores. Sessions with an export in flight
// are kept. Evicted sessions can still be restored from a durable store.
func (s *Sessions) Sweep(now time.Time) int {
	evicted := 0
	if s.deps.IdleTTL > 0 {
		cutoff := now.Add(-s.deps.IdleTTL).UnixNano()

		s.mu.Lock()
		for id, e := range s.byID {
			if e.lastSeen.Load() > cutoff || e.o.State().Exporting {
				continue
			}
			delete(s.byID, id)
			evicted++
		}
		s.mu.Unlock()
	}

	purged := 0
	if p, ok := s.deps.Store.(Purger); ok {
		purged = p.Purge(now)
	}

	if evicted > 0 || purged > 0 {
		s.logger.Info("Swept idle sessions",
			zap.Int("evicted", evicted),
			zap.Int("purged_entries", purged),
			zap.Int("remaining", s.Len()))
	}
	return evicted
}

// RunJanitor sweeps every interval until ctx is done
func (s *Sessions) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Len returns the number of sessions held in memory
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Sessions) newEntry(o *Orchestrator) *sessionEntry {
	e := &sessionEntry{o: o}
	e.touch(s.now())
	return e
}

func (s *Sessions) build(id string) *Orchestrator {
	o := NewOrchestrator(
		id,
		s.deps.Renderer,
		s.deps.Decoder,
		s.deps.Remover,
		s.deps.Store.ForSession(id),
		s.deps.Options,
		s.deps.Logger,
	)

	if s.deps.Publisher != nil {
		publisher := s.deps.Publisher
		logger := s.logger
		o.Subscribe(func(event models.ImageChangedEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := publisher.PublishImageChanged(ctx, event); err != nil {
				logger.Warn("Failed to publish image change",
					zap.String("session_id", event.SessionID),
					zap.Error(err))
			}
		})
	}
	return o
}
