package models

import "time"

// UserRole represents the newsroom roles.
type UserRole string

const (
	RoleReporter UserRole = "Reportero"
	RoleEditor   UserRole = "Editor"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleReporter || r == RoleEditor
}

// Identity is a sign-in credential stored in the identities table.
type Identity struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Profile is the role record persisted next to an identity at sign-up.
type Profile struct {
	IdentityID  string    `db:"identity_id" json:"id"`
	Email       string    `db:"email" json:"email"`
	Role        UserRole  `db:"role" json:"role"`
	DisplayName string    `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
