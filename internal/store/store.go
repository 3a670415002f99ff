package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/abxy/internal/models"
)

var ErrEmailTaken = errors.New("email already registered")

// MaxMessageLimit caps the page size of ListMessages.
const MaxMessageLimit = 200

// MessageQuery selects a page of the shared feed. Ordering is applied
// before Limit/Offset.
type MessageQuery struct {
	Limit      int
	Offset     int
	Descending bool
}

func (q MessageQuery) normalize() MessageQuery {
	if q.Limit <= 0 || q.Limit > MaxMessageLimit {
		q.Limit = MaxMessageLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// DataStore defines the interface for persistent storage of users and messages.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Message operations
	InsertMessage(ctx context.Context, id, userID uuid.UUID, content string) (*models.StoredMessage, error)
	ListMessages(ctx context.Context, q MessageQuery) ([]models.StoredMessage, error)
	CountMessages(ctx context.Context) (int64, error)
	GetMostRecentActivity(ctx context.Context) (*time.Time, error)
}

// SessionStore tracks issued access sessions so tokens can be revoked.
// RedisStore and MemorySessionStore implement this interface.
type SessionStore interface {
	Ping(ctx context.Context) error
	SaveSession(ctx context.Context, s models.AccessSession) error
	GetSession(ctx context.Context, id string) (*models.AccessSession, error)
	DeleteSession(ctx context.Context, id string) error
}
