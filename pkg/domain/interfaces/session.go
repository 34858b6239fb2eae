package interfaces

import (
	"context"

	"github.com/secmon-lab/malinsight/pkg/domain/model"
)

// SessionRepository stores workflow sessions
type SessionRepository interface {
	// Create stores a new session
	Create(ctx context.Context, session *model.Session) (*model.Session, error)

	// Get returns a copy of the session. Returns model.ErrSessionNotFound if
	// no session has the ID.
	Get(ctx context.Context, id model.SessionID) (*model.Session, error)

	// Update applies fn to the stored session atomically and returns a copy
	// of the result. The session is left unchanged if fn returns an error.
	Update(ctx context.Context, id model.SessionID, fn func(s *model.Session) error) (*model.Session, error)
}
