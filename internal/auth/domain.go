package auth

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail canonicalizes an email for lookup: Unicode NFC first so
// visually identical addresses compare equal, then lower-case. The same form
// is stored at provisioning time.
func NormalizeEmail(email string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(email)))
}
