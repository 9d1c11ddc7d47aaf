package models

import "time"

// Role is the closed set of account roles. Role strings never appear in
// comparison sites outside this package; callers go through the capability
// methods below.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// CanModerate grants access to admin surfaces: pending role requests and
// the user listing.
func (r Role) CanModerate() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// CanManageAdmins grants the superadmin-only operations (listing and
// demoting admins).
func (r Role) CanManageAdmins() bool {
	return r == RoleSuperAdmin
}

type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	Role         Role
	ProfilePhoto *string
	RegisteredAt time.Time

	// Password-reset state. ResetTokenHash holds an argon2id hash of the
	// emailed token; both fields are nil when no reset is in flight.
	ResetTokenHash    []byte
	ResetTokenExpires *time.Time
}

// Session is an audit record written at login time.
type Session struct {
	ID        int64
	UserID    int64
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}
