package entity

import "time"

// ReferralCode is the single code a user hands out to new registrants.
// A code is active strictly before ExpiryDate.
type ReferralCode struct {
	ID         uint64
	Code       string
	UserID     uint64
	ExpiryDate time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *ReferralCode) IsActive(now time.Time) bool {
	return now.Before(c.ExpiryDate)
}

// ExtendExpiry moves the expiry forward by the given number of whole days.
func (c *ReferralCode) ExtendExpiry(days int) {
	c.ExpiryDate = c.ExpiryDate.AddDate(0, 0, days)
}

// Deactivate expires the code at now without removing it.
func (c *ReferralCode) Deactivate(now time.Time) {
	c.ExpiryDate = now
}
