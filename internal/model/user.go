package model

import "time"

// User is a volunteer account as stored in the `users` table.  Identity
// is managed outside the scheduling core; the scheduler only needs the
// id, a display name and the superuser flag.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name.
//  PasswordHash – bcrypt hashed password.
//  FirstName    – optional given name.
//  LastName     – optional family name.
//  Superuser    – administrators may act on behalf of other users.
//  Active       – inactive accounts cannot log in or be registered.
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           uint64    // users.id
	Username     string    // users.username
	PasswordHash string    // users.password_hash
	FirstName    string    // users.first_name
	LastName     string    // users.last_name
	Superuser    bool      // users.is_superuser
	Active       bool      // users.is_active
	CreatedAt    time.Time // users.created_at
}

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.Username
}
