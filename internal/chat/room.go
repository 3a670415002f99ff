package chat

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/abxy/internal/client"
	"github.com/eldtechnologies/abxy/internal/models"
)

// User-facing error texts.
const (
	ErrTextSignInRequired = "You must be signed in to send messages."
	ErrTextSendFailed     = "Failed to send message."
	ErrTextSendNetwork    = "Network error while sending message."
	ErrTextAuthGeneric    = "Network error or invalid request"
)

// View is the screen the session gate selects.
type View int

const (
	ViewAuth View = iota
	ViewChat
)

func (v View) String() string {
	if v == ViewChat {
		return "chat"
	}
	return "auth"
}

// SubmitRequest is one accepted message submission. Generation ties it to
// the session it was made in.
type SubmitRequest struct {
	UserID     string
	Content    string
	Generation uint64
}

// Room is the local view state of the chat. It is not safe for concurrent
// use; the UI event loop owns it.
type Room struct {
	poller *Poller
	logger zerolog.Logger

	authenticated bool
	user          *models.Identity
	generation    uint64

	messages []models.Message
	input    string
	pending  bool
	errText  string
	fetchErr error
}

// NewRoom creates an unauthenticated room driven by poller.
func NewRoom(poller *Poller, logger zerolog.Logger) *Room {
	return &Room{poller: poller, logger: logger}
}

// SetAuthenticated flips the session gate. false→true starts the poller;
// true→false stops it and clears the message list. Repeating the current
// state only refreshes the user.
func (r *Room) SetAuthenticated(ok bool, user *models.Identity) {
	if !ok {
		user = nil
	}
	if ok == r.authenticated {
		r.user = user
		return
	}

	r.authenticated = ok
	r.user = user
	if ok {
		r.errText = ""
		r.generation = r.poller.Start()
		r.logger.Info().Str("user", userEmail(user)).Msg("signed in")
		return
	}

	r.poller.Stop()
	r.messages = nil
	r.pending = false
	r.fetchErr = nil
	r.logger.Info().Msg("signed out")
}

// Authenticated reports the session flag.
func (r *Room) Authenticated() bool { return r.authenticated }

// User returns the signed-in user, or nil.
func (r *Room) User() *models.Identity { return r.user }

// View returns the screen for the current session flag.
func (r *Room) View() View {
	if r.authenticated {
		return ViewChat
	}
	return ViewAuth
}

// Generation is the poller generation whose results are accepted.
func (r *Room) Generation() uint64 { return r.generation }

// Apply processes a fetch result. A successful result replaces the message
// list wholesale; a failed one leaves it untouched. Results from an earlier
// generation or arriving while signed out are dropped. It reports whether
// the backend rejected the session.
func (r *Room) Apply(res FetchResult) bool {
	if !r.authenticated || res.Generation != r.generation {
		return false
	}
	if res.Err != nil {
		r.fetchErr = res.Err
		return errors.Is(res.Err, client.ErrUnauthorized)
	}
	r.messages = res.Messages
	r.fetchErr = nil
	return false
}

// Messages returns the current list in backend order.
func (r *Room) Messages() []models.Message { return r.messages }

// FetchErr is the error of the last processed fetch, if it failed.
func (r *Room) FetchErr() error { return r.fetchErr }

// SetInput replaces the input buffer.
func (r *Room) SetInput(s string) { r.input = s }

// Input returns the input buffer.
func (r *Room) Input() string { return r.input }

// Pending reports whether a submission is in flight.
func (r *Room) Pending() bool { return r.pending }

// Err returns the user-facing error, or "".
func (r *Room) Err() string { return r.errText }

// SetErr sets the user-facing error.
func (r *Room) SetErr(text string) { r.errText = text }

// BeginSubmit validates the input buffer and marks a submission pending.
// Whitespace-only input and a submission while one is pending are no-ops.
func (r *Room) BeginSubmit() (SubmitRequest, bool) {
	content := strings.TrimSpace(r.input)
	if content == "" || r.pending {
		return SubmitRequest{}, false
	}
	if !r.authenticated || r.user == nil {
		r.errText = ErrTextSignInRequired
		return SubmitRequest{}, false
	}

	r.pending = true
	r.errText = ""
	return SubmitRequest{UserID: r.user.ID, Content: content, Generation: r.generation}, true
}

// FinishSubmit records the outcome of req. Success clears the input; the
// message appears with the next fetch. Outcomes of submissions from an
// earlier session are dropped and FinishSubmit reports false.
func (r *Room) FinishSubmit(req SubmitRequest, err error) bool {
	if !r.authenticated || req.Generation != r.generation {
		r.logger.Debug().Err(err).Msg("dropping send result from a previous session")
		return false
	}

	r.pending = false
	if err == nil {
		r.input = ""
		return true
	}

	var qErr *client.QueryError
	if errors.As(err, &qErr) {
		r.errText = ErrTextSendFailed
	} else {
		r.errText = ErrTextSendNetwork
	}
	r.logger.Warn().Err(err).Msg("send message failed")
	return true
}

// Close stops the poller.
func (r *Room) Close() {
	r.poller.Stop()
}

// AuthErrorText maps an authentication failure to the text shown in the
// auth form.
func AuthErrorText(err error) string {
	var authErr *client.AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	return ErrTextAuthGeneric
}

func userEmail(u *models.Identity) string {
	if u == nil {
		return ""
	}
	return u.Email
}
