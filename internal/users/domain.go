package users

import "time"

// User represents a user account for management. The password hash never
// leaves this module.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
