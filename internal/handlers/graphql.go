package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/abxy/internal/api/middleware"
	"github.com/eldtechnologies/abxy/internal/crypto"
	"github.com/eldtechnologies/abxy/internal/metrics"
	"github.com/eldtechnologies/abxy/internal/models"
	"github.com/eldtechnologies/abxy/internal/store"
)

// maxContentBytes caps the size of a posted message.
const maxContentBytes = 4096

// schemaSDL is the Hasura-shaped subset of the messages API.
const schemaSDL = `
scalar uuid
scalar timestamptz

enum order_by {
	asc
	desc
}

input messages_order_by {
	created_at: order_by
}

input messages_insert_input {
	user_id: uuid!
	content: String!
}

type users {
	id: uuid!
	email: String
}

type messages {
	id: uuid!
	content: String!
	created_at: timestamptz!
	user_id: uuid!
	user: users
}

type query_root {
	messages(order_by: messages_order_by, limit: Int, offset: Int): [messages!]!
}

type mutation_root {
	insert_messages_one(object: messages_insert_input!): messages
}

schema {
	query: query_root
	mutation: mutation_root
}
`

var (
	errUnauthenticated = errors.New("authentication required")
	errWrongUser       = errors.New("permission denied: user_id must match the signed-in user")
	errEmptyContent    = errors.New("content must not be empty")
	errContentTooLong  = fmt.Errorf("content too long (max %d bytes)", maxContentBytes)
)

// GraphQLRequest is a standard GraphQL-over-HTTP request body.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// GraphQL executes a query or mutation against the messages schema (authenticated).
func (h *Handler) GraphQL(w http.ResponseWriter, r *http.Request) {
	var req GraphQLRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	resp := h.schema.Exec(r.Context(), req.Query, req.OperationName, req.Variables)

	result := "ok"
	if len(resp.Errors) > 0 {
		result = "error"
		h.logger.Warn().
			Str("operation", req.OperationName).
			Int("errors", len(resp.Errors)).
			Str("first_error", resp.Errors[0].Message).
			Msg("graphql operation failed")
	}
	metrics.GraphQLOperations.WithLabelValues(operationKind(req.Query), result).Inc()

	// GraphQL reports execution errors in the body, not the status code
	h.JSON(w, http.StatusOK, resp)
}

// operationKind returns "mutation" or "query" for metrics labelling.
func operationKind(query string) string {
	if strings.HasPrefix(strings.TrimSpace(query), "mutation") {
		return "mutation"
	}
	return "query"
}

// UUID is the GraphQL "uuid" scalar.
type UUID struct {
	uuid.UUID
}

// ImplementsGraphQLType maps this type to the "uuid" scalar.
func (UUID) ImplementsGraphQLType(name string) bool {
	return name == "uuid"
}

// UnmarshalGraphQL parses a uuid literal or variable.
func (u *UUID) UnmarshalGraphQL(input interface{}) error {
	s, ok := input.(string)
	if !ok {
		return fmt.Errorf("uuid: expected string, got %T", input)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("uuid: %w", err)
	}
	u.UUID = id
	return nil
}

// MarshalJSON encodes the canonical string form.
func (u UUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.UUID.String())
}

// Timestamptz is the GraphQL "timestamptz" scalar.
type Timestamptz struct {
	time.Time
}

// ImplementsGraphQLType maps this type to the "timestamptz" scalar.
func (Timestamptz) ImplementsGraphQLType(name string) bool {
	return name == "timestamptz"
}

// UnmarshalGraphQL parses an RFC 3339 timestamp.
func (t *Timestamptz) UnmarshalGraphQL(input interface{}) error {
	s, ok := input.(string)
	if !ok {
		return fmt.Errorf("timestamptz: expected string, got %T", input)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamptz: %w", err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON encodes the timestamp as RFC 3339 in UTC.
func (t Timestamptz) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

type rootResolver struct {
	h *Handler
}

type messagesOrderBy struct {
	CreatedAt *string
}

type messagesArgs struct {
	OrderBy *messagesOrderBy
	Limit   *int32
	Offset  *int32
}

// Messages resolves the shared feed. Ordering is applied before limit and
// offset, so ascending order with a limit returns the oldest page.
func (r *rootResolver) Messages(ctx context.Context, args messagesArgs) ([]*messageResolver, error) {
	if middleware.GetUserFromContext(ctx) == nil {
		return nil, errUnauthenticated
	}

	q := store.MessageQuery{}
	if args.OrderBy != nil && args.OrderBy.CreatedAt != nil && *args.OrderBy.CreatedAt == "desc" {
		q.Descending = true
	}
	if args.Limit != nil {
		q.Limit = int(*args.Limit)
	}
	if args.Offset != nil {
		q.Offset = int(*args.Offset)
	}

	rows, err := r.h.data.ListMessages(ctx, q)
	if err != nil {
		r.h.logger.Error().Err(err).Msg("list messages failed")
		return nil, errors.New("failed to fetch messages")
	}

	out := make([]*messageResolver, len(rows))
	for i := range rows {
		out[i] = &messageResolver{msg: rows[i]}
	}
	return out, nil
}

type messagesInsertInput struct {
	UserID  UUID
	Content string
}

type insertMessageArgs struct {
	Object messagesInsertInput
}

// InsertMessagesOne stores one message on behalf of the signed-in user.
func (r *rootResolver) InsertMessagesOne(ctx context.Context, args insertMessageArgs) (*messageResolver, error) {
	user := middleware.GetUserFromContext(ctx)
	if user == nil {
		return nil, errUnauthenticated
	}
	if args.Object.UserID.UUID != user.ID {
		return nil, errWrongUser
	}

	content := strings.TrimSpace(args.Object.Content)
	if content == "" {
		return nil, errEmptyContent
	}
	if len(content) > maxContentBytes {
		return nil, errContentTooLong
	}

	msg, err := r.h.data.InsertMessage(ctx, crypto.NewUUIDv7(), user.ID, content)
	if err != nil {
		r.h.logger.Error().Err(err).Msg("insert message failed")
		return nil, errors.New("failed to store message")
	}
	msg.AuthorEmail = user.Email
	metrics.MessagesPosted.Inc()

	return &messageResolver{msg: *msg}, nil
}

type messageResolver struct {
	msg models.StoredMessage
}

func (m *messageResolver) ID() UUID {
	return UUID{m.msg.ID}
}

func (m *messageResolver) Content() string {
	return m.msg.Content
}

func (m *messageResolver) CreatedAt() Timestamptz {
	return Timestamptz{m.msg.CreatedAt}
}

func (m *messageResolver) UserID() UUID {
	return UUID{m.msg.UserID}
}

func (m *messageResolver) User() *userResolver {
	return &userResolver{id: m.msg.UserID, email: m.msg.AuthorEmail}
}

type userResolver struct {
	id    uuid.UUID
	email string
}

func (u *userResolver) ID() UUID {
	return UUID{u.id}
}

func (u *userResolver) Email() *string {
	if u.email == "" {
		return nil
	}
	return &u.email
}
