package services

import (
	"fmt"
	"unicode/utf8"

	"github.com/dmitrijs2005/passvault/internal/common"
)

// Column widths of the users and password_entries tables, in characters.
const (
	maxEmailLen         = 120
	maxUsernameLen      = 80
	maxEntryNameLen     = 255
	maxEntryUsernameLen = 255
	maxEntryURLLen      = 2048
	maxEntryNotesLen    = 1000
)

// maxMasterPasswordBytes is the most bcrypt will hash.
const maxMasterPasswordBytes = 72

// checkLen fails with common.ErrValidation when v is longer than limit
// characters.
func checkLen(field, v string, limit int) error {
	if utf8.RuneCountInString(v) > limit {
		return fmt.Errorf("%w: %s must be at most %d characters", common.ErrValidation, field, limit)
	}
	return nil
}

func checkOptionalLen(field string, v *string, limit int) error {
	if v == nil {
		return nil
	}
	return checkLen(field, *v, limit)
}

func checkMasterPassword(p string) error {
	if len(p) > maxMasterPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", common.ErrValidation, maxMasterPasswordBytes)
	}
	return nil
}
