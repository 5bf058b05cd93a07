package domain

import "time"

// User is a registered trader. PasswordHash holds a bcrypt hash, never
// the plaintext password.
type User struct {
	Username     string
	PasswordHash []byte
	Account      *Account
	CreatedAt    time.Time
}
