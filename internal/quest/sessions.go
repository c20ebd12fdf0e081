package quest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
)

// Backpack is the reward store together with its session lifecycle.
type Backpack interface {
	Rewarder
	Sync(ctx context.Context, userID string) ([]models.InventoryItem, error)
	Forget(userID string)
}

type session struct {
	engine   *Engine
	synced   sync.Once
	lastUsed time.Time
}

// Sessions holds one Engine per user session.
type Sessions struct {
	cases    CaseSource
	backpack Backpack
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessions(cases CaseSource, backpack Backpack, logger *slog.Logger) *Sessions {
	return &Sessions{
		cases:    cases,
		backpack: backpack,
		logger:   logger,
		mu:       sync.Mutex{},
		sessions: make(map[string]*session),
	}
}

// Engine returns the user's engine, creating it on first use. The first call per session synchronizes the backpack,
// legacy migration included, before the engine is handed out so that no reward can be added ahead of it.
func (s *Sessions) Engine(ctx context.Context, userID string) *Engine {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{engine: NewEngine(userID, s.cases, s.backpack, s.logger), synced: sync.Once{}}
		s.sessions[userID] = sess
	}
	sess.lastUsed = time.Now()
	s.mu.Unlock()

	sess.synced.Do(func() {
		// The sync outlives the request that triggered it.
		if _, err := s.backpack.Sync(context.WithoutCancel(ctx), userID); err != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to load backpack at session start",
				slog.String("user_id", userID), errors.SlogError(err))
		}
	})
	return sess.engine
}

// EvictIdle tears down the sessions last used before cutoff and returns their user IDs.
func (s *Sessions) EvictIdle(ctx context.Context, cutoff time.Time) []string {
	var evicted []string
	s.mu.Lock()
	for userID, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, userID)
			evicted = append(evicted, userID)
		}
	}
	s.mu.Unlock()

	for _, userID := range evicted {
		s.backpack.Forget(userID)
	}
	if len(evicted) > 0 {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "evicted idle quest sessions", slog.Int("count", len(evicted)))
	}
	return evicted
}

// End tears down the user's engine.
func (s *Sessions) End(userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	s.backpack.Forget(userID)
}
