package conversation

import (
	"log/slog"
	"sync"

	"github.com/myrjola/misterio/internal/ai"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/quest"
)

type sessionKey struct {
	userID   string
	location models.Location
}

// Registry keeps one Session per user and location so that each character remembers the conversation.
type Registry struct {
	completer ai.Completer
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

func NewRegistry(completer ai.Completer, logger *slog.Logger) *Registry {
	return &Registry{
		completer: completer,
		logger:    logger,
		mu:        sync.Mutex{},
		sessions:  make(map[sessionKey]*Session),
	}
}

// Session returns the conversation of userID at location, bound to the user's engine.
func (r *Registry) Session(userID string, location models.Location, engine *quest.Engine) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey{userID: userID, location: location}
	s, ok := r.sessions[key]
	if !ok || s.engine != engine {
		s = NewSession(location, engine, r.completer, r.logger.With(slog.String("user_id", userID)))
		r.sessions[key] = s
	}
	return s
}

// End forgets all conversations of userID.
func (r *Registry) End(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.sessions {
		if key.userID == userID {
			delete(r.sessions, key)
		}
	}
}
