package types

import "time"

// Realm partitions principals and their tokens. A credential or token issued in
// one realm never validates in another.
type Realm string

const (
	RealmUser  Realm = "user"
	RealmAdmin Realm = "admin"
)

// Valid reports whether r names a known realm.
func (r Realm) Valid() bool {
	return r == RealmUser || r == RealmAdmin
}

// Principal represents an authenticated identity in one realm.
// Users and admins share this shape but are stored separately.
type Principal struct {
	// ID is the unique identifier of the principal (KSUID).
	ID string `json:"id" db:"id"`

	// Identity is the normalized login email, unique within the realm.
	Identity string `json:"email" db:"identity"`

	// FullName is the display name provided at registration.
	FullName string `json:"fullname" db:"full_name"`

	// PasswordHash stores the bcrypt hash of the password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Role mirrors the realm the principal belongs to ("user" or "admin").
	Role Realm `json:"role" db:"role"`

	// IsActive gates authentication and token validation.
	IsActive bool `json:"is_active" db:"is_active"`

	// FailedAttempts is the number of consecutive failed logins. It is
	// owned by the lockout counter and filled in when presented to admins.
	FailedAttempts int `json:"failed_attempts" db:"-"`

	// CreatedAt is the timestamp when the principal registered.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// LastActiveAt is the timestamp of the most recent successful login.
	LastActiveAt *time.Time `json:"last_active,omitempty" db:"last_active_at"`
}
