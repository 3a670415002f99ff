// Package client talks to the Abxy backend: authentication and the
// GraphQL message feed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the backend rejects the access token.
var ErrUnauthorized = errors.New("unauthorized")

// AuthError is an error reported by the authentication provider.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth error %d", e.Status)
	}
	return e.Message
}

// DefaultHTTPClient returns the HTTP client used when none is supplied.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// doRequest performs a JSON request and returns the response body.
// Statuses >= 400 come back as *AuthError built from {"error"} or {"message"}.
func doRequest(ctx context.Context, hc *http.Client, method, url, token string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		return nil, &AuthError{Status: resp.StatusCode, Message: msg}
	}

	return respBody, nil
}

// Health fetches the server's /health report.
func Health(ctx context.Context, hc *http.Client, baseURL string) (map[string]interface{}, error) {
	if hc == nil {
		hc = DefaultHTTPClient()
	}
	body, err := doRequest(ctx, hc, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", "", nil)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
