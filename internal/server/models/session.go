package models

import "time"

// Session is one logged-in device or browser. Token is the bearer secret;
// ID is the public identifier carried by events.
type Session struct {
	Token     string
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
