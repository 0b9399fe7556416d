package domain

import (
	"time"
)

// Identity is a registered chat participant. The username is stable,
// case-sensitive and immutable once created. Identities are soft-deactivated,
// never hard-deleted, so history keeps resolving.
type Identity struct {
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"lastSeen"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
