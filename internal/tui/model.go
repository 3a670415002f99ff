// Package tui is the terminal chat client: an auth form and a chat view
// switched by the session gate.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/abxy/internal/chat"
	"github.com/eldtechnologies/abxy/internal/client"
	"github.com/eldtechnologies/abxy/internal/models"
)

// requestTimeout bounds each auth or send request.
const requestTimeout = 15 * time.Second

// Feed is the message API the UI needs.
type Feed interface {
	ListMessages(ctx context.Context, limit int) ([]models.Message, error)
	InsertMessage(ctx context.Context, userID, content string) (*models.Message, error)
}

type authMode int

const (
	modeLogin authMode = iota
	modeSignUp
)

func (m authMode) String() string {
	if m == modeSignUp {
		return "Sign Up"
	}
	return "Login"
}

type (
	authResultMsg struct {
		user *models.Identity
		err  error
	}
	sendResultMsg struct {
		req chat.SubmitRequest
		err error
	}
	signOutMsg struct {
		err error
	}
	fetchMsg chat.FetchResult
)

// Options tune the model.
type Options struct {
	PollInterval time.Duration
	MessageLimit int
	Logger       zerolog.Logger
	PollerOpts   []chat.PollerOption
}

// Model is the bubbletea model of the chat client.
type Model struct {
	auth   client.Authenticator
	feed   Feed
	room   *chat.Room
	poller *chat.Poller
	logger zerolog.Logger
	styles Styles

	mode     authMode
	email    textinput.Model
	password textinput.Model
	compose  textinput.Model
	messages viewport.Model
	busy     bool
	quitting bool

	width  int
	height int
}

// NewModel wires the room, poller and inputs.
func NewModel(auth client.Authenticator, feed Feed, opts Options) Model {
	limit := opts.MessageLimit
	if limit <= 0 {
		limit = client.DefaultMessageLimit
	}

	pollerOpts := append([]chat.PollerOption{chat.WithLogger(opts.Logger)}, opts.PollerOpts...)
	poller := chat.NewPoller(func(ctx context.Context) ([]models.Message, error) {
		return feed.ListMessages(ctx, limit)
	}, opts.PollInterval, pollerOpts...)

	email := textinput.New()
	email.Placeholder = "Email"
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	compose := textinput.New()
	compose.Placeholder = "Type something clever (or don't, we won't judge)..."
	compose.CharLimit = 4096

	m := Model{
		auth:     auth,
		feed:     feed,
		room:     chat.NewRoom(poller, opts.Logger),
		poller:   poller,
		logger:   opts.Logger,
		styles:   DefaultStyles(),
		email:    email,
		password: password,
		compose:  compose,
		messages: viewport.New(80, 15),
	}

	if auth.Authenticated() {
		m.enterChat(auth.CurrentUser())
	}
	return m
}

// Room exposes the view state, mainly for tests.
func (m Model) Room() *chat.Room { return m.room }

// Close stops background polling.
func (m Model) Close() { m.room.Close() }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForFetch())
}

// waitForFetch blocks on the next poller result. It is re-armed after every
// delivery so exactly one reader is outstanding.
func (m Model) waitForFetch() tea.Cmd {
	results := m.poller.Results()
	return func() tea.Msg {
		return fetchMsg(<-results)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			m.room.Close()
			return m, tea.Quit
		}
		if m.room.View() == chat.ViewChat {
			return m.updateChat(msg)
		}
		return m.updateAuth(msg)

	case authResultMsg:
		m.busy = false
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Str("mode", m.mode.String()).Msg("authentication failed")
			m.room.SetErr(chat.AuthErrorText(msg.err))
			return m, nil
		}
		m.password.SetValue("")
		cmd := m.enterChat(msg.user)
		return m, cmd

	case fetchMsg:
		if m.room.Apply(chat.FetchResult(msg)) {
			m.logger.Warn().Msg("session rejected by backend, signing out")
			m.leaveChat()
			m.room.SetErr("Session expired. Please sign in again.")
			return m, tea.Batch(m.waitForFetch(), m.signOut())
		}
		m.refreshMessages()
		return m, m.waitForFetch()

	case sendResultMsg:
		if m.room.FinishSubmit(msg.req, msg.err) {
			m.compose.SetValue(m.room.Input())
		}
		return m, nil

	case signOutMsg:
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Msg("sign out request failed")
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.room.View() == chat.ViewChat {
		m.compose, cmd = m.compose.Update(msg)
	} else {
		cmd = m.updateFocused(msg)
	}
	return m, cmd
}

func (m Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		if m.mode == modeLogin {
			m.mode = modeSignUp
		} else {
			m.mode = modeLogin
		}
		m.room.SetErr("")
		return m, nil

	case tea.KeyUp, tea.KeyDown, tea.KeyShiftTab:
		cmd := m.toggleField()
		return m, cmd

	case tea.KeyEnter:
		var cmd tea.Cmd
		if m.email.Focused() {
			cmd = m.toggleField()
		} else {
			cmd = m.submitAuth()
		}
		return m, cmd
	}

	cmd := m.updateFocused(msg)
	return m, cmd
}

func (m *Model) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if m.email.Focused() {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return cmd
}

func (m *Model) toggleField() tea.Cmd {
	if m.email.Focused() {
		m.email.Blur()
		return m.password.Focus()
	}
	m.password.Blur()
	return m.email.Focus()
}

func (m *Model) submitAuth() tea.Cmd {
	if m.busy {
		return nil
	}
	email := strings.TrimSpace(m.email.Value())
	password := m.password.Value()
	if email == "" || password == "" {
		m.room.SetErr("Email and password are required.")
		return nil
	}

	m.busy = true
	m.room.SetErr("")
	auth, mode := m.auth, m.mode
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var user *models.Identity
		var err error
		if mode == modeSignUp {
			user, err = auth.SignUp(ctx, email, password)
		} else {
			user, err = auth.SignIn(ctx, email, password)
		}
		if err == nil && user == nil {
			err = errors.New("no user returned")
		}
		return authResultMsg{user: user, err: err}
	}
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.room.SetInput(m.compose.Value())
		req, ok := m.room.BeginSubmit()
		if !ok {
			return m, nil
		}
		return m, m.send(req)

	case tea.KeyCtrlO:
		m.leaveChat()
		return m, m.signOut()

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.messages, cmd = m.messages.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	m.room.SetInput(m.compose.Value())
	return m, cmd
}

func (m Model) send(req chat.SubmitRequest) tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := feed.InsertMessage(ctx, req.UserID, req.Content)
		return sendResultMsg{req: req, err: err}
	}
}

func (m Model) signOut() tea.Cmd {
	auth := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return signOutMsg{err: auth.SignOut(ctx)}
	}
}

// enterChat flips the gate on and focuses the compose box.
func (m *Model) enterChat(user *models.Identity) tea.Cmd {
	m.room.SetAuthenticated(true, user)
	m.email.Blur()
	m.password.Blur()
	m.refreshMessages()
	return m.compose.Focus()
}

// leaveChat flips the gate off and resets the chat inputs.
func (m *Model) leaveChat() {
	m.room.SetAuthenticated(false, nil)
	m.room.SetInput("")
	m.compose.SetValue("")
	m.compose.Blur()
	m.busy = false
	m.password.Blur()
	m.email.Focus()
	m.refreshMessages()
}

func (m *Model) resize() {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	h := m.height - 12
	if h < 3 {
		h = 3
	}
	m.messages.Width = w
	m.messages.Height = h
	m.compose.Width = w - 4
	m.refreshMessages()
}

func (m *Model) refreshMessages() {
	m.messages.SetContent(renderMessages(m.styles, m.room.Messages()))
	m.messages.GotoBottom()
}
