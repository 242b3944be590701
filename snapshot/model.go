package snapshot

import (
	"bytes"
	"strconv"
	"time"

	"github.com/MrEthical07/goGuard/permission"
)

// Key scopes a snapshot to one user in one organization.
type Key struct {
	UserID         string
	OrganizationID string
}

// KeyOf builds a [Key].
func KeyOf(userID, organizationID string) Key {
	return Key{UserID: userID, OrganizationID: organizationID}
}

// String renders the key as "<len(organization)>:<organization>:<user>", the
// suffix used by durable stores under their namespace prefix. The length
// prefix keeps the encoding injective when ids contain ":".
func (k Key) String() string {
	return strconv.Itoa(len(k.OrganizationID)) + ":" + k.OrganizationID + ":" + k.UserID
}

// Valid reports whether both halves of the key are set.
func (k Key) Valid() bool {
	return k.UserID != "" && k.OrganizationID != ""
}

// Snapshot is a point-in-time copy of a user's resolved permissions for one
// organization. Snapshots are never mutated after construction.
type Snapshot struct {
	UserID         string
	OrganizationID string

	RoleID   string
	RoleName string

	// Permissions is nil for malformed snapshots, which grant nothing.
	Permissions permission.Mask

	CapturedAt time.Time
	TTL        time.Duration
	MaxAge     time.Duration
}

// Key returns the scoping key of s.
func (s *Snapshot) Key() Key {
	return KeyOf(s.UserID, s.OrganizationID)
}

// Age returns now-CapturedAt.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// Valid reports whether s is inside both its soft TTL and its hard MaxAge.
func (s *Snapshot) Valid(now time.Time) bool {
	if s == nil {
		return false
	}
	age := s.Age(now)
	return age <= s.TTL && age <= s.MaxAge
}

// ValidRelaxed reports whether s is inside MaxAge, ignoring TTL.
func (s *Snapshot) ValidRelaxed(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Age(now) <= s.MaxAge
}

// HardExpiresAt is the instant after which s is invalid under every read mode.
func (s *Snapshot) HardExpiresAt() time.Time {
	return s.CapturedAt.Add(s.MaxAge)
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Permissions = permission.Clone(s.Permissions)
	return &c
}

// Equal reports whether s and o carry the same fields and granted bits.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.UserID != o.UserID || s.OrganizationID != o.OrganizationID ||
		s.RoleID != o.RoleID || s.RoleName != o.RoleName ||
		!s.CapturedAt.Equal(o.CapturedAt) || s.TTL != o.TTL || s.MaxAge != o.MaxAge {
		return false
	}
	if s.Permissions == nil || o.Permissions == nil {
		return s.Permissions == nil && o.Permissions == nil
	}
	a, errA := permission.EncodeMask(s.Permissions)
	b, errB := permission.EncodeMask(o.Permissions)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}
