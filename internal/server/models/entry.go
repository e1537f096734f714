package models

import "time"

// PasswordEntry is a stored credential owned by exactly one user.
//
// An entry is Active while InTrash is false and Trashed while it is true;
// MovedAt is set only while Trashed.
type PasswordEntry struct {
	ID        int64
	UserID    string
	Name      string
	Username  string
	Password  string
	URL       *string
	Notes     *string
	InTrash   bool
	CreatedAt time.Time
	UpdatedAt *time.Time
	MovedAt   *time.Time
}

// NewEntry carries the fields accepted when creating an entry.
type NewEntry struct {
	Name     string
	Username string
	Password string
	URL      *string
	Notes    *string
}

// EntryPatch is a partial update over the mutable fields of an entry. Nil
// fields are left untouched.
type EntryPatch struct {
	Name     *string
	Username *string
	Password *string
	URL      *string
	Notes    *string
}

func (p EntryPatch) Empty() bool {
	return p.Name == nil && p.Username == nil && p.Password == nil && p.URL == nil && p.Notes == nil
}

// Page is a window over a user's entries.
type Page struct {
	Entries []*PasswordEntry
	Page    int
	PerPage int
	HasNext bool
	HasPrev bool
}
