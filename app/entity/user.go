package entity

import (
	"database/sql"
	"time"
)

type User struct {
	ID             uint64
	Email          string
	CanonicalEmail string
	PasswordHash   string
	ReferredBy     sql.NullInt64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReferrerID returns the id of the referring user, if any.
func (u *User) ReferrerID() (uint64, bool) {
	if !u.ReferredBy.Valid {
		return 0, false
	}
	return uint64(u.ReferredBy.Int64), true
}
