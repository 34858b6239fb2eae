package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
)

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*model.Session
}

func newSessionRepository() *sessionRepository {
	return &sessionRepository{
		sessions: make(map[model.SessionID]*model.Session),
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := session.Copy()
	if created.ID == "" {
		created.ID = model.NewSessionID()
	}
	created.State = created.State.Normalize()

	r.sessions[created.ID] = created
	return created.Copy(), nil
}

func (r *sessionRepository) Get(ctx context.Context, id model.SessionID) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found in memory", goerr.V(model.SessionIDKey, id))
	}
	return s.Copy(), nil
}

func (r *sessionRepository) Update(ctx context.Context, id model.SessionID, fn func(s *model.Session) error) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found in memory", goerr.V(model.SessionIDKey, id))
	}

	// fn works on a copy so a failed update leaves the stored session intact
	working := s.Copy()
	if err := fn(working); err != nil {
		return nil, err
	}

	r.sessions[id] = working
	return working.Copy(), nil
}
