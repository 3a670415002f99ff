package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/abxy/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at
	`, email, passwordHash).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users WHERE id = $1
	`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users WHERE email = $1
	`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CountUsers returns the number of registered users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// InsertMessage stores a new message.
func (s *PostgresStore) InsertMessage(ctx context.Context, id, userID uuid.UUID, content string) (*models.StoredMessage, error) {
	msg := &models.StoredMessage{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, content, created_at
	`, id, userID, content).Scan(
		&msg.ID,
		&msg.UserID,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

const (
	pgListMessagesAsc = `
		SELECT m.id, m.user_id, m.content, m.created_at, COALESCE(u.email, '')
		FROM messages m LEFT JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT $1 OFFSET $2`
	pgListMessagesDesc = `
		SELECT m.id, m.user_id, m.content, m.created_at, COALESCE(u.email, '')
		FROM messages m LEFT JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $1 OFFSET $2`
)

// ListMessages retrieves a page of messages with their author emails.
func (s *PostgresStore) ListMessages(ctx context.Context, q MessageQuery) ([]models.StoredMessage, error) {
	q = q.normalize()
	query := pgListMessagesAsc
	if q.Descending {
		query = pgListMessagesDesc
	}

	rows, err := s.pool.Query(ctx, query, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.StoredMessage, 0, q.Limit)
	for rows.Next() {
		var msg models.StoredMessage
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Content, &msg.CreatedAt, &msg.AuthorEmail); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of stored messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// GetMostRecentActivity returns the time of the newest message, or nil.
func (s *PostgresStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}
