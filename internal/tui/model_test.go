package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/abxy/internal/chat"
	"github.com/eldtechnologies/abxy/internal/client"
	"github.com/eldtechnologies/abxy/internal/models"
)

type fakeAuth struct {
	mu      sync.Mutex
	user    *models.Identity
	signIn  error
	signUps int
	signOut int
}

func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signIn != nil {
		return nil, f.signIn
	}
	f.user = &models.Identity{ID: "u1", Email: email}
	return f.user, nil
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (*models.Identity, error) {
	f.mu.Lock()
	f.signUps++
	f.mu.Unlock()
	return f.SignIn(ctx, email, password)
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOut++
	f.user = nil
	return nil
}

func (f *fakeAuth) FetchUser(ctx context.Context) (*models.Identity, error) {
	return f.CurrentUser(), nil
}

func (f *fakeAuth) Authenticated() bool { return f.CurrentUser() != nil }

func (f *fakeAuth) CurrentUser() *models.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakeAuth) AccessToken() string { return "" }

type fakeFeed struct {
	mu       sync.Mutex
	messages []models.Message
	listErr  error
	inserts  []string
	sendErr  error
}

func (f *fakeFeed) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages, f.listErr
}

func (f *fakeFeed) InsertMessage(ctx context.Context, userID, content string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, userID+":"+content)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.Message{ID: "new", Content: content}, nil
}

func (f *fakeFeed) Inserts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inserts...)
}

func newTestModel(t *testing.T, auth *fakeAuth, feed *fakeFeed) Model {
	t.Helper()
	m := NewModel(auth, feed, Options{PollInterval: time.Hour, Logger: zerolog.Nop()})
	t.Cleanup(m.Close)
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

// signIn walks the auth form and applies the resulting auth message.
func signIn(t *testing.T, m Model, email string) Model {
	t.Helper()
	m = typeText(t, m, email)
	m, _ = update(t, m, key(tea.KeyEnter))
	m = typeText(t, m, "secret1")
	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	return m
}

// nextFetch waits for the poller's next result the way the program would.
func nextFetch(t *testing.T, m Model) tea.Msg {
	t.Helper()
	done := make(chan tea.Msg, 1)
	go func() { done <- m.waitForFetch()() }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch")
		return nil
	}
}

func TestStartsOnAuthView(t *testing.T) {
	m := newTestModel(t, &fakeAuth{}, &fakeFeed{})
	assert.Equal(t, chat.ViewAuth, m.Room().View())

	view := m.View()
	assert.Contains(t, view, "ABXY CHAT")
	assert.Contains(t, view, "Login")
	assert.Contains(t, view, "Sign Up")
}

func TestTabTogglesAuthMode(t *testing.T) {
	m := newTestModel(t, &fakeAuth{}, &fakeFeed{})
	assert.Equal(t, modeLogin, m.mode)

	m, _ = update(t, m, key(tea.KeyTab))
	assert.Equal(t, modeSignUp, m.mode)
	assert.Contains(t, m.View(), "enter: sign up")

	m, _ = update(t, m, key(tea.KeyTab))
	assert.Equal(t, modeLogin, m.mode)
}

func TestSignUpUsesSignUp(t *testing.T) {
	auth := &fakeAuth{}
	m := newTestModel(t, auth, &fakeFeed{})

	m, _ = update(t, m, key(tea.KeyTab))
	m = signIn(t, m, "a@x.com")

	assert.Equal(t, 1, auth.signUps)
	assert.Equal(t, chat.ViewChat, m.Room().View())
}

func TestAuthErrorShownInline(t *testing.T) {
	auth := &fakeAuth{signIn: &client.AuthError{Status: 401, Message: "Incorrect email or password"}}
	m := newTestModel(t, auth, &fakeFeed{})

	m = signIn(t, m, "a@x.com")
	assert.Equal(t, chat.ViewAuth, m.Room().View())
	assert.Contains(t, m.View(), "Incorrect email or password")

	auth.signIn = errors.New("dial tcp: connection refused")
	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Contains(t, m.View(), chat.ErrTextAuthGeneric)
}

func TestMissingCredentials(t *testing.T) {
	m := newTestModel(t, &fakeAuth{}, &fakeFeed{})
	m, _ = update(t, m, key(tea.KeyEnter)) // to password
	m, cmd := update(t, m, key(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "Email and password are required.")
}

func TestSignInThenFetchRendersMessage(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)
	feed := &fakeFeed{messages: []models.Message{
		{ID: "1", Content: "hi", CreatedAt: models.NewTimestamp(created), User: &models.Author{Email: "a@x.com"}},
	}}
	m := newTestModel(t, &fakeAuth{}, feed)

	m = signIn(t, m, "a@x.com")
	require.Equal(t, chat.ViewChat, m.Room().View())
	assert.Contains(t, m.View(), "Welcome, a@x.com!")
	assert.Contains(t, m.View(), "No messages yet. Say something!")

	m, cmd := update(t, m, nextFetch(t, m))
	assert.NotNil(t, cmd)

	require.Len(t, m.Room().Messages(), 1)
	view := m.View()
	assert.Contains(t, view, "hi")
	assert.Contains(t, view, "a@x.com • "+created.Local().Format("15:04:05"))
	assert.NotContains(t, view, "No messages yet")
}

func TestUnknownAuthor(t *testing.T) {
	out := renderMessages(DefaultStyles(), []models.Message{{ID: "1", Content: "anon", CreatedAt: models.NewTimestamp(time.Now())}})
	assert.Contains(t, out, "Unknown • ")
	assert.Contains(t, out, "anon")
}

func TestRenderKeepsOrder(t *testing.T) {
	out := renderMessages(DefaultStyles(), []models.Message{
		{ID: "2", Content: "second"},
		{ID: "1", Content: "first"},
	})
	assert.Less(t, strings.Index(out, "second"), strings.Index(out, "first"))
}

func TestSendClearsInputOnSuccess(t *testing.T) {
	feed := &fakeFeed{}
	m := newTestModel(t, &fakeAuth{}, feed)
	m = signIn(t, m, "a@x.com")

	m = typeText(t, m, "hello")
	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.True(t, m.Room().Pending())

	// a second Enter while pending sends nothing
	m, again := update(t, m, key(tea.KeyEnter))
	assert.Nil(t, again)

	m, _ = update(t, m, cmd())
	assert.Equal(t, []string{"u1:hello"}, feed.Inserts())
	assert.Empty(t, m.compose.Value())
	assert.Empty(t, m.Room().Messages())
	assert.False(t, m.Room().Pending())
}

func TestSendFailureKeepsInput(t *testing.T) {
	feed := &fakeFeed{sendErr: &client.QueryError{Messages: []string{"denied"}}}
	m := newTestModel(t, &fakeAuth{}, feed)
	m = signIn(t, m, "a@x.com")

	m = typeText(t, m, "hello")
	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, "hello", m.compose.Value())
	assert.Contains(t, m.View(), chat.ErrTextSendFailed)
}

func TestWhitespaceSendIsNoop(t *testing.T) {
	feed := &fakeFeed{}
	m := newTestModel(t, &fakeAuth{}, feed)
	m = signIn(t, m, "a@x.com")

	m = typeText(t, m, "   ")
	m, cmd := update(t, m, key(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.False(t, m.Room().Pending())
	assert.Empty(t, feed.Inserts())
}

func TestSendResultAfterResignInIsIgnored(t *testing.T) {
	feed := &fakeFeed{sendErr: errors.New("connection reset")}
	m := newTestModel(t, &fakeAuth{}, feed)
	m = signIn(t, m, "a@x.com")

	m = typeText(t, m, "hello")
	m, send := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, send)

	m, _ = update(t, m, key(tea.KeyCtrlO))
	require.Equal(t, chat.ViewAuth, m.Room().View())
	stale := send()

	// arriving on the auth form
	m, _ = update(t, m, stale)
	assert.NotContains(t, m.View(), chat.ErrTextSendNetwork)

	m = signIn(t, m, "a@x.com")
	require.Equal(t, chat.ViewChat, m.Room().View())
	m = typeText(t, m, "draft")

	// arriving in the new session
	m, _ = update(t, m, stale)
	assert.Equal(t, "draft", m.compose.Value())
	assert.NotContains(t, m.View(), chat.ErrTextSendNetwork)
	assert.False(t, m.Room().Pending())
}

func TestSignOutReturnsToAuth(t *testing.T) {
	auth := &fakeAuth{}
	feed := &fakeFeed{messages: []models.Message{{ID: "1", Content: "hi"}}}
	m := newTestModel(t, auth, feed)
	m = signIn(t, m, "a@x.com")
	m, _ = update(t, m, nextFetch(t, m))
	require.Len(t, m.Room().Messages(), 1)

	m, cmd := update(t, m, key(tea.KeyCtrlO))
	require.NotNil(t, cmd)
	assert.Equal(t, chat.ViewAuth, m.Room().View())
	assert.Empty(t, m.Room().Messages())

	m, _ = update(t, m, cmd())
	assert.Equal(t, 1, auth.signOut)
	assert.False(t, auth.Authenticated())
}

func TestUnauthorizedFetchSignsOut(t *testing.T) {
	auth := &fakeAuth{}
	feed := &fakeFeed{listErr: client.ErrUnauthorized}
	m := newTestModel(t, auth, feed)
	m = signIn(t, m, "a@x.com")

	m, _ = update(t, m, nextFetch(t, m))
	assert.Equal(t, chat.ViewAuth, m.Room().View())
	assert.Contains(t, m.View(), "Session expired")
}

func TestCtrlCQuits(t *testing.T) {
	m := newTestModel(t, &fakeAuth{}, &fakeFeed{})
	m = signIn(t, m, "a@x.com")

	m, cmd := update(t, m, key(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestWindowResize(t *testing.T) {
	m := newTestModel(t, &fakeAuth{}, &fakeFeed{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.Equal(t, 96, m.messages.Width)
	assert.Equal(t, 28, m.messages.Height)

	// tiny terminals clamp rather than go negative
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 0, Height: 0})
	assert.Equal(t, 20, m.messages.Width)
	assert.Equal(t, 3, m.messages.Height)
}
