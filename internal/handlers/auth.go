package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/eldtechnologies/abxy/internal/api/middleware"
	"github.com/eldtechnologies/abxy/internal/crypto"
	"github.com/eldtechnologies/abxy/internal/metrics"
	"github.com/eldtechnologies/abxy/internal/models"
	"github.com/eldtechnologies/abxy/internal/store"
)

// CredentialsRequest is the body accepted by /signup and /login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by /signup and /login.
type AuthResponse struct {
	User    models.Identity `json:"user"`
	Session *models.Session `json:"session,omitempty"`
}

// UserResponse represents the current user.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// SignUp handles account creation and signs the new user in.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	email := normalizeEmail(req.Email)
	if !isValidEmail(email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooShort) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := h.data.CreateUser(r.Context(), email, hash)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			h.Error(w, http.StatusConflict, "email already in use")
			return
		}
		h.logger.Error().Err(err).Msg("create user failed")
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	metrics.UsersRegistered.Inc()

	session, err := h.issueSession(r.Context(), user)
	if err != nil {
		h.logger.Error().Err(err).Msg("issue session failed")
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.JSON(w, http.StatusCreated, AuthResponse{User: session.User, Session: session})
}

// Login handles email/password sign-in.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.data.GetUserByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil || crypto.CheckPassword(user.PasswordHash, req.Password) != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		h.Error(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	session, err := h.issueSession(r.Context(), user)
	if err != nil {
		h.logger.Error().Err(err).Msg("issue session failed")
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	metrics.Logins.WithLabelValues("success").Inc()

	h.JSON(w, http.StatusOK, AuthResponse{User: session.User, Session: session})
}

// SignOut revokes the caller's access session (authenticated).
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())
	if sess == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.sessions.DeleteSession(r.Context(), sess.ID); err != nil {
		h.logger.Error().Err(err).Msg("delete session failed")
		h.Error(w, http.StatusInternalServerError, "failed to sign out")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CurrentUser returns the authenticated user's profile.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	h.JSON(w, http.StatusOK, UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// issueSession records a new access session and signs its token.
func (h *Handler) issueSession(ctx context.Context, user *models.User) (*models.Session, error) {
	sid := crypto.NewSessionID()
	token, expiresAt, err := h.tokens.Issue(user.ID.String(), user.Email, sid)
	if err != nil {
		return nil, err
	}

	if err := h.sessions.SaveSession(ctx, models.AccessSession{
		ID:        sid,
		UserID:    user.ID.String(),
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	return &models.Session{
		User:        models.Identity{ID: user.ID.String(), Email: user.Email},
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}
