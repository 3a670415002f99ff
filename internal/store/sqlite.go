package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/abxy/internal/models"
)

// sqliteTimeFormat is fixed width so that text ordering matches time ordering.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/abxy.db". ":memory:" keeps
// everything in a single in-process database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/abxy.db"
	}

	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=on"
	if dbPath == ":memory:" {
		dsn = "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db, now: time.Now}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(sqliteTimeFormat)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	id := uuid.New()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), email, passwordHash, s.timestamp())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users WHERE id = ?
	`, id.String())
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users WHERE email = ?
	`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	var idStr, createdAt string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&idStr,
		&user.Email,
		&user.PasswordHash,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if user.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if user.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAt); err != nil {
		return nil, err
	}
	return user, nil
}

// CountUsers returns the number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// InsertMessage stores a new message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, id, userID uuid.UUID, content string) (*models.StoredMessage, error) {
	createdAt := s.timestamp()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, user_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), userID.String(), content, createdAt)
	if err != nil {
		return nil, err
	}

	ts, _ := time.Parse(sqliteTimeFormat, createdAt)
	return &models.StoredMessage{
		ID:        id,
		UserID:    userID,
		Content:   content,
		CreatedAt: ts,
	}, nil
}

const (
	sqliteListMessagesAsc = `
		SELECT m.id, m.user_id, m.content, m.created_at, COALESCE(u.email, '')
		FROM messages m LEFT JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT ? OFFSET ?`
	sqliteListMessagesDesc = `
		SELECT m.id, m.user_id, m.content, m.created_at, COALESCE(u.email, '')
		FROM messages m LEFT JOIN users u ON u.id = m.user_id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?`
)

// ListMessages retrieves a page of messages with their author emails.
func (s *SQLiteStore) ListMessages(ctx context.Context, q MessageQuery) ([]models.StoredMessage, error) {
	q = q.normalize()
	query := sqliteListMessagesAsc
	if q.Descending {
		query = sqliteListMessagesDesc
	}

	rows, err := s.db.QueryContext(ctx, query, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.StoredMessage, 0, q.Limit)
	for rows.Next() {
		var msg models.StoredMessage
		var idStr, userIDStr, createdAt string
		if err := rows.Scan(&idStr, &userIDStr, &msg.Content, &createdAt, &msg.AuthorEmail); err != nil {
			return nil, err
		}
		if msg.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if msg.UserID, err = uuid.Parse(userIDStr); err != nil {
			return nil, err
		}
		if msg.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of stored messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// GetMostRecentActivity returns the time of the newest message, or nil.
func (s *SQLiteStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&latest); err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	t, err := time.Parse(sqliteTimeFormat, latest.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
