// Package handlers serves the Abxy HTTP API: account endpoints, the GraphQL
// message feed, health and stats.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/abxy/internal/crypto"
	"github.com/eldtechnologies/abxy/internal/store"
)

// maxEmailLength is the RFC 5321 path limit.
const maxEmailLength = 254

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// Handler holds what every endpoint needs.
type Handler struct {
	data     store.DataStore
	sessions store.SessionStore
	tokens   *crypto.TokenIssuer
	logger   zerolog.Logger
	schema   *graphql.Schema
}

// NewHandler parses the GraphQL schema and returns a Handler.
func NewHandler(data store.DataStore, sessions store.SessionStore, tokens *crypto.TokenIssuer, logger zerolog.Logger) *Handler {
	h := &Handler{data: data, sessions: sessions, tokens: tokens, logger: logger}
	h.schema = graphql.MustParseSchema(schemaSDL, &rootResolver{h: h})
	return h
}

// JSON writes v with the given status.
func (h *Handler) JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug().Err(err).Msg("write response failed")
	}
}

// Error writes {"error": message}.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v. On failure it answers the request and
// returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	h.Error(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isValidEmail expects an already normalized address.
func isValidEmail(email string) bool {
	return email != "" && len(email) <= maxEmailLength && emailPattern.MatchString(email)
}
