// Package actor resolves the display snapshot of users who perform audited
// actions.
package actor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/clinaudit/internal/domain"
)

// Cache stores snapshots by actor id. Get returns nil on a miss.
type Cache interface {
	Get(ctx context.Context, actorID string) (*domain.ActorSnapshot, error)
	Set(ctx context.Context, actorID string, snap *domain.ActorSnapshot) error
}

// Lookup reads snapshots from the user directory, optionally through a cache.
// Cache failures degrade to a direct directory read.
type Lookup struct {
	users domain.UserRepository
	cache Cache
}

func NewLookup(users domain.UserRepository, cache Cache) *Lookup {
	return &Lookup{users: users, cache: cache}
}

// Snapshot returns the actor's current username, email and role. Actor ids
// that are not UUIDs cannot be in the directory and yield domain.ErrNotFound.
func (l *Lookup) Snapshot(ctx context.Context, actorID string) (*domain.ActorSnapshot, error) {
	id, err := uuid.Parse(actorID)
	if err != nil {
		return nil, fmt.Errorf("actor.Lookup.Snapshot: %q: %w", actorID, domain.ErrNotFound)
	}

	if l.cache != nil {
		snap, err := l.cache.Get(ctx, actorID)
		if err != nil {
			log.Debug().Err(err).Str("actor_id", actorID).Msg("actor.Lookup: cache read failed")
		} else if snap != nil {
			return snap, nil
		}
	}

	u, err := l.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("actor.Lookup.Snapshot: %w", err)
	}
	snap := u.Snapshot()

	if l.cache != nil {
		if err := l.cache.Set(ctx, actorID, snap); err != nil {
			log.Debug().Err(err).Str("actor_id", actorID).Msg("actor.Lookup: cache write failed")
		}
	}

	return snap, nil
}
