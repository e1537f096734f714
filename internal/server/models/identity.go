package models

// FederatedIdentity is what an external identity provider vouches for after a
// successful login.
type FederatedIdentity struct {
	Subject     string
	Email       string
	DisplayName string
}
