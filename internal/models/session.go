package models

import "time"

// Identity is the authenticated user as seen by the chat client.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated session handed out by an authentication provider.
type Session struct {
	User         Identity  `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AccessSession is the server-side record backing an issued access token.
type AccessSession struct {
	ID        string    `json:"id"` // ULID, also the token jti
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
