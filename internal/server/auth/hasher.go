// Package auth holds the credential hashing primitive used for master
// passwords.
package auth

import "golang.org/x/crypto/bcrypt"

// Hasher turns a plaintext password into a salted one-way digest and checks
// candidates against it.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost
// is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest never
// matches.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	return err == nil
}

// DummyDigest is compared against when a login names an unknown account, so
// both failure paths spend the same bcrypt work.
var DummyDigest = mustHash("passvault-timing-equaliser")

func mustHash(s string) string {
	d, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(d)
}
