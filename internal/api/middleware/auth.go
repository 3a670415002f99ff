package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/abxy/internal/crypto"
	"github.com/eldtechnologies/abxy/internal/models"
	"github.com/eldtechnologies/abxy/internal/store"
)

type contextKey string

const (
	UserContextKey    contextKey = "user"
	SessionContextKey contextKey = "session"
)

// AuthMiddleware handles bearer token verification for authenticated endpoints.
type AuthMiddleware struct {
	data     store.DataStore
	sessions store.SessionStore
	tokens   *crypto.TokenIssuer
	logger   zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(data store.DataStore, sessions store.SessionStore, tokens *crypto.TokenIssuer, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		data:     data,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// RequireAuth middleware verifies the bearer access token and loads its user.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		// Revoked sessions are removed from the store on sign-out
		sess, err := m.sessions.GetSession(r.Context(), claims.ID)
		if err != nil {
			m.logger.Error().Err(err).Msg("session lookup failed")
			jsonError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if sess == nil || sess.UserID != claims.Subject {
			jsonError(w, http.StatusUnauthorized, "session expired")
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token subject")
			return
		}

		user, err := m.data.GetUserByID(r.Context(), userID)
		if err != nil {
			m.logger.Error().Err(err).Msg("user lookup failed")
			jsonError(w, http.StatusInternalServerError, "database error")
			return
		}
		if user == nil {
			jsonError(w, http.StatusUnauthorized, "user not found")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		ctx = context.WithValue(ctx, SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetSessionFromContext retrieves the access session from the request context.
func GetSessionFromContext(ctx context.Context) *models.AccessSession {
	sess, ok := ctx.Value(SessionContextKey).(*models.AccessSession)
	if !ok {
		return nil
	}
	return sess
}

// WithUser returns a context carrying user, for callers outside RequireAuth.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}
