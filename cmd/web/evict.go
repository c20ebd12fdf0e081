package main

import (
	"context"
	"time"
)

// evictIdleSessions drops the quest engines and conversations of players idle for longer than maxIdle. It checks
// every interval until ctx is cancelled.
func (app *application) evictIdleSessions(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, userID := range app.quests.EvictIdle(ctx, time.Now().Add(-maxIdle)) {
			app.conversations.End(userID)
		}
	}
}
