package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// IdentityMode selects which half of an Identity drives equality and
// map keying. The mode is passed explicitly wherever identities are
// compared so that changing configuration cannot silently alter the
// meaning of keys already stored in a cache.
type IdentityMode int

const (
	// IdentityUUIDMajor compares identities by UUID. Default.
	IdentityUUIDMajor IdentityMode = iota
	// IdentityNameMajor compares identities by name.
	IdentityNameMajor
)

// ParseIdentityMode parses a mode string from configuration.
func ParseIdentityMode(s string) (IdentityMode, error) {
	switch s {
	case "uuid", "":
		return IdentityUUIDMajor, nil
	case "name":
		return IdentityNameMajor, nil
	default:
		return IdentityUUIDMajor, fmt.Errorf("%w: %q", ErrInvalidIdentityMode, s)
	}
}

// Identity identifies a player account by UUID and name.
type Identity struct {
	UUID uuid.UUID `json:"uuid"`
	Name string    `json:"name"`
}

// Key returns the cache key for the identity under the given mode.
func (i Identity) Key(mode IdentityMode) string {
	if mode == IdentityNameMajor {
		return i.Name
	}
	return i.UUID.String()
}

// Equal reports whether two identities refer to the same account
// under the given mode.
func (i Identity) Equal(other Identity, mode IdentityMode) bool {
	if mode == IdentityNameMajor {
		return i.Name == other.Name
	}
	return i.UUID == other.UUID
}

func (i Identity) String() string {
	return fmt.Sprintf("%s(%s)", i.Name, i.UUID)
}
