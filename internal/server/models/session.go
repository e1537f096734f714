package models

import "time"

// Session binds an opaque session id (held by the browser in a cookie) to a
// user.
type Session struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	LastSeenAt time.Time
}
