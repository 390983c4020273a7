package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreSQLite = "sqlite"
)

// Transition describes a compare-and-set state change of a session.
type Transition struct {
	From      Status
	To        Status
	Reason    string
	Artifact  *Artifact
	ExpiresAt time.Time // zero keeps the current expiry
}

// SessionStore persists upload sessions.
// Every method returns ErrUnknownSession for ids that do not exist.
type SessionStore interface {
	// Create stores a new session
	Create(ctx context.Context, s *Session) error

	// Get returns a copy of the session
	Get(ctx context.Context, id string) (*Session, error)

	// AddChunk marks index as received and slides the expiry, only while the session is open
	AddChunk(ctx context.Context, id string, index uint32, expiresAt time.Time) (*Session, error)

	// Transition moves the session from t.From to t.To atomically.
	// It returns false, without error, if the session is not in t.From.
	Transition(ctx context.Context, id string, t Transition) (bool, error)

	Delete(ctx context.Context, id string) error

	// ListExpired returns sessions whose expiry is before now
	ListExpired(ctx context.Context, now time.Time) ([]*Session, error)

	ListByStatus(ctx context.Context, status Status) ([]*Session, error)

	// CountActive counts open and assembling sessions
	CountActive(ctx context.Context) (int, error)

	Close() error
}

// NewSessionStore builds the store named by kind. db is required for SessionStoreSQLite.
func NewSessionStore(kind string, db *sqlx.DB) (SessionStore, error) {
	switch kind {
	case "", SessionStoreMemory:
		return NewMemorySessionStore(), nil
	case SessionStoreSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite session store: no database")
		}
		return NewSQLiteSessionStore(db)
	default:
		return nil, fmt.Errorf("unknown session store %q", kind)
	}
}

// closedError maps a non-open status to the error a chunk write against it reports
func closedError(id string, status Status) error {
	switch status {
	case StatusAssembling:
		return fmt.Errorf("%w: session %s", ErrAssemblyInProgress, id)
	case StatusExpired:
		return fmt.Errorf("%w: session %s expired", ErrUnknownSession, id)
	default:
		return fmt.Errorf("%w: session %s is %s", ErrSessionClosed, id, status)
	}
}
