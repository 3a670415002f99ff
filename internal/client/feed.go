package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	graphql "github.com/hasura/go-graphql-client"

	"github.com/eldtechnologies/abxy/internal/models"
)

// DefaultMessageLimit is the number of messages requested per fetch.
const DefaultMessageLimit = 200

// listMessagesQuery asks for the first limit messages in ascending order.
// Hasura applies order_by before limit, so once the feed holds more than
// limit messages this is the oldest page, not the most recent one.
const listMessagesQuery = `query GetMessages { messages(order_by: { created_at: asc }, limit: %d) { id content created_at user { email } } }`

const insertMessageMutation = `mutation InsertMessage($userId: uuid!, $content: String!) { insert_messages_one(object: { user_id: $userId, content: $content }) { id content created_at } }`

// QueryError is a GraphQL error list returned by the backend.
type QueryError struct {
	Messages []string
}

func (e *QueryError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// Feed reads and writes the shared message feed over GraphQL.
type Feed struct {
	gql   *graphql.Client
	token func() string
}

// NewFeed creates a Feed for the given GraphQL endpoint. token is called on
// every request and its value, if any, is sent as a bearer token.
func NewFeed(url string, hc *http.Client, token func() string) *Feed {
	if hc == nil {
		hc = DefaultHTTPClient()
	}
	// Copy the client so the status-recording transport stays private.
	c := *hc
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.Transport = statusTransport{base: base}

	f := &Feed{token: token}
	f.gql = graphql.NewClient(url, &c).WithRequestModifier(func(req *http.Request) {
		if f.token == nil {
			return
		}
		if t := f.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	})
	return f
}

// ListMessages returns up to limit messages, oldest first.
func (f *Feed) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	ctx, status := withStatus(ctx)
	data, err := f.gql.ExecRaw(ctx, fmt.Sprintf(listMessagesQuery, limit), nil)
	if err != nil {
		return nil, classify(err, *status)
	}

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return resp.Messages, nil
}

// InsertMessage posts one message as userID.
func (f *Feed) InsertMessage(ctx context.Context, userID, content string) (*models.Message, error) {
	vars := map[string]interface{}{
		"userId":  userID,
		"content": content,
	}

	ctx, status := withStatus(ctx)
	data, err := f.gql.ExecRaw(ctx, insertMessageMutation, vars)
	if err != nil {
		return nil, classify(err, *status)
	}

	var resp struct {
		InsertMessagesOne *models.Message `json:"insert_messages_one"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode insert: %w", err)
	}
	if resp.InsertMessagesOne == nil {
		return nil, &QueryError{Messages: []string{"insert returned no row"}}
	}
	return resp.InsertMessagesOne, nil
}

type statusKey struct{}

// withStatus returns a context that records the HTTP status of the request
// made with it.
func withStatus(ctx context.Context) (context.Context, *int) {
	status := new(int)
	return context.WithValue(ctx, statusKey{}, status), status
}

// statusTransport stores each response status in the request's context slot.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

// classify sorts an error from the GraphQL client into ErrUnauthorized,
// *QueryError, or a transport error.
func classify(err error, status int) error {
	if status == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	var gqlErrs graphql.Errors
	if !errors.As(err, &gqlErrs) {
		return err
	}

	messages := make([]string, 0, len(gqlErrs))
	for _, e := range gqlErrs {
		code, _ := e.Extensions["code"].(string)
		switch code {
		case "invalid-jwt", "invalid-headers":
			return ErrUnauthorized
		case "request_error", "json_decode_error":
			return fmt.Errorf("request failed: %w", err)
		}
		messages = append(messages, e.Message)
	}
	return &QueryError{Messages: messages}
}
