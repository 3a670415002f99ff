package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eldtechnologies/abxy/internal/models"
)

// Authenticator is an email/password authentication provider.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*models.Identity, error)
	SignUp(ctx context.Context, email, password string) (*models.Identity, error)
	SignOut(ctx context.Context) error
	FetchUser(ctx context.Context) (*models.Identity, error)
	Authenticated() bool
	CurrentUser() *models.Identity
	AccessToken() string
}

// sessionHolder keeps the current session. It is shared by the provider
// implementations and read from both the UI loop and poller goroutines.
type sessionHolder struct {
	mu      sync.RWMutex
	session *models.Session
}

func (s *sessionHolder) set(sess *models.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

func (s *sessionHolder) get() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Authenticated reports whether a session is held.
func (s *sessionHolder) Authenticated() bool {
	return s.get() != nil
}

// CurrentUser returns the signed-in user, or nil.
func (s *sessionHolder) CurrentUser() *models.Identity {
	sess := s.get()
	if sess == nil {
		return nil
	}
	user := sess.User
	return &user
}

// AccessToken returns the bearer token of the current session, or "".
func (s *sessionHolder) AccessToken() string {
	sess := s.get()
	if sess == nil {
		return ""
	}
	return sess.AccessToken
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EndpointAuth authenticates against the /signup, /login, /signout and /user
// endpoints of an Abxy server.
type EndpointAuth struct {
	BaseURL    string
	HTTPClient *http.Client
	sessionHolder
}

// NewEndpointAuth creates an EndpointAuth for the given server.
func NewEndpointAuth(baseURL string, hc *http.Client) *EndpointAuth {
	if hc == nil {
		hc = DefaultHTTPClient()
	}
	return &EndpointAuth{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: hc}
}

type endpointAuthResponse struct {
	User    models.Identity `json:"user"`
	Session *models.Session `json:"session"`
}

// SignIn signs in with email and password.
func (a *EndpointAuth) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	user, signedIn, err := a.authenticate(ctx, "/login", email, password)
	if err != nil {
		return nil, err
	}
	if !signedIn {
		return nil, &AuthError{Status: http.StatusBadGateway, Message: "no session returned"}
	}
	return user, nil
}

// SignUp creates an account. When the server does not hand back a session
// it signs in with the same credentials.
func (a *EndpointAuth) SignUp(ctx context.Context, email, password string) (*models.Identity, error) {
	user, signedIn, err := a.authenticate(ctx, "/signup", email, password)
	if err != nil {
		return nil, err
	}
	if signedIn {
		return user, nil
	}
	return a.SignIn(ctx, email, password)
}

// authenticate posts credentials and stores the returned session, if any.
func (a *EndpointAuth) authenticate(ctx context.Context, path, email, password string) (*models.Identity, bool, error) {
	body, err := doRequest(ctx, a.HTTPClient, http.MethodPost, a.BaseURL+path, "", credentials{Email: email, Password: password})
	if err != nil {
		return nil, false, err
	}

	var resp endpointAuthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, err
	}

	if resp.Session != nil && resp.Session.AccessToken != "" {
		if resp.Session.User.ID == "" {
			resp.Session.User = resp.User
		}
		a.set(resp.Session)
		return a.CurrentUser(), true, nil
	}

	user := resp.User
	return &user, false, nil
}

// SignOut revokes the session on the server and forgets it locally. The
// local session is cleared even when the server call fails.
func (a *EndpointAuth) SignOut(ctx context.Context) error {
	token := a.AccessToken()
	a.set(nil)
	if token == "" {
		return nil
	}
	_, err := doRequest(ctx, a.HTTPClient, http.MethodPost, a.BaseURL+"/signout", token, nil)
	return err
}

// FetchUser asks the server who the current token belongs to.
func (a *EndpointAuth) FetchUser(ctx context.Context) (*models.Identity, error) {
	token := a.AccessToken()
	if token == "" {
		return nil, nil
	}
	body, err := doRequest(ctx, a.HTTPClient, http.MethodGet, a.BaseURL+"/user", token, nil)
	if err != nil {
		return nil, unauthorizedOr(err)
	}
	var user models.Identity
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// NhostAuth authenticates against the Nhost (hasura-auth) REST API.
type NhostAuth struct {
	AuthURL    string
	HTTPClient *http.Client
	sessionHolder
}

// NewNhostAuth creates an NhostAuth for the given auth service URL.
func NewNhostAuth(authURL string, hc *http.Client) *NhostAuth {
	if hc == nil {
		hc = DefaultHTTPClient()
	}
	return &NhostAuth{AuthURL: strings.TrimRight(authURL, "/"), HTTPClient: hc}
}

type nhostUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type nhostSession struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresIn int       `json:"accessTokenExpiresIn"`
	RefreshToken         string    `json:"refreshToken"`
	User                 nhostUser `json:"user"`
}

type nhostAuthResponse struct {
	Session *nhostSession `json:"session"`
}

// SignIn signs in with email and password.
func (a *NhostAuth) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	user, err := a.authenticate(ctx, "/v1/signin/email-password", email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &AuthError{Status: http.StatusUnauthorized, Message: "no session returned"}
	}
	return user, nil
}

// SignUp creates an account and signs in when the provider returns no
// session (for example when email verification is pending).
func (a *NhostAuth) SignUp(ctx context.Context, email, password string) (*models.Identity, error) {
	user, err := a.authenticate(ctx, "/v1/signup/email-password", email, password)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	return a.SignIn(ctx, email, password)
}

func (a *NhostAuth) authenticate(ctx context.Context, path, email, password string) (*models.Identity, error) {
	body, err := doRequest(ctx, a.HTTPClient, http.MethodPost, a.AuthURL+path, "", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var resp nhostAuthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Session == nil || resp.Session.AccessToken == "" {
		return nil, nil
	}

	s := resp.Session
	a.set(&models.Session{
		User:         models.Identity{ID: s.User.ID, Email: s.User.Email},
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(s.AccessTokenExpiresIn) * time.Second),
	})
	return a.CurrentUser(), nil
}

// SignOut revokes the refresh token and forgets the session locally.
func (a *NhostAuth) SignOut(ctx context.Context) error {
	sess := a.get()
	a.set(nil)
	if sess == nil {
		return nil
	}
	_, err := doRequest(ctx, a.HTTPClient, http.MethodPost, a.AuthURL+"/v1/signout", sess.AccessToken,
		map[string]string{"refreshToken": sess.RefreshToken})
	return err
}

// FetchUser returns the user behind the current access token.
func (a *NhostAuth) FetchUser(ctx context.Context) (*models.Identity, error) {
	token := a.AccessToken()
	if token == "" {
		return nil, nil
	}
	body, err := doRequest(ctx, a.HTTPClient, http.MethodGet, a.AuthURL+"/v1/user", token, nil)
	if err != nil {
		return nil, unauthorizedOr(err)
	}
	var user nhostUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, err
	}
	return &models.Identity{ID: user.ID, Email: user.Email}, nil
}

// unauthorizedOr maps a 401 from the provider to ErrUnauthorized.
func unauthorizedOr(err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return err
}
