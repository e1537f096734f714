package models

import "time"

// User is an account in the user directory. Username is optional; EKSalt is
// the client's opaque encryption-key salt and is stored verbatim.
type User struct {
	ID                   string
	Email                string
	Username             *string
	HashedMasterPassword string
	EKSalt               string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ProfileUpdate is a partial update of a User. Nil fields are left alone.
type ProfileUpdate struct {
	Email    *string
	Username *string
}

func (p ProfileUpdate) Empty() bool {
	return p.Email == nil && p.Username == nil
}
