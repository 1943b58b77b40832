package domain

import "time"

// MetadataRoleKey is the identity metadata entry that caches the resolved role.
const MetadataRoleKey = "role"

// Identity is the authenticated-user record owned by the credential store.
type Identity struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	EmailConfirmed bool              `json:"email_confirmed"`
	CreatedAt      time.Time         `json:"created_at"`
}

// MetadataRole returns the role cached in the identity metadata, if any.
func (i *Identity) MetadataRole() (Role, bool) {
	if i == nil || i.Metadata == nil {
		return "", false
	}
	return ParseRole(i.Metadata[MetadataRoleKey])
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Metadata != nil {
		c.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Account is the credential store's private view of an identity.
type Account struct {
	Identity
	PasswordHash string `json:"-"`
}
