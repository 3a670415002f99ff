package models

import (
	"encoding/json"
	"time"
)

// Message represents a chat message in the shared feed.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
	User      *Author   `json:"user"`
}

// Author is the subset of the posting user exposed alongside a message.
type Author struct {
	Email string `json:"email,omitempty"`
}

// AuthorEmail returns the author's email, or "" if the backend did not expose one.
func (m Message) AuthorEmail() string {
	if m.User == nil {
		return ""
	}
	return m.User.Email
}

// timestampLayouts are tried in order. Zone-less values (Postgres
// "timestamp" columns served by Hasura) are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a message creation time as sent by the backend. A value no
// layout understands is kept in Raw so it can still be shown.
type Timestamp struct {
	time.Time
	Raw string
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = Timestamp{}
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// numbers and other oddities are shown verbatim
		ts.Raw = string(data)
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	ts.Raw = s
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() && ts.Raw != "" {
		return json.Marshal(ts.Raw)
	}
	return json.Marshal(ts.Time.Format(time.RFC3339Nano))
}

// Display formats the time in local time, or returns the raw value when it
// could not be parsed.
func (ts Timestamp) Display(layout string) string {
	if ts.Time.IsZero() && ts.Raw != "" {
		return ts.Raw
	}
	return ts.Time.Local().Format(layout)
}
