// Package cache holds the lookaside store for referral codes keyed by owner.
package cache

import (
	"context"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
)

// ReferralCache maps a user id to that user's referral code. Entries have no
// TTL; writers are responsible for invalidating or overwriting them.
//
// Every Put and Invalidate bumps the user's version. Readers filling the
// cache after a store read take the version first and Fill with it, so a
// late fill never overwrites a newer write or resurrects a deleted entry.
type ReferralCache interface {
	Get(ctx context.Context, userID uint64) (*entity.ReferralCode, bool, error)
	Put(ctx context.Context, code *entity.ReferralCode) error
	Invalidate(ctx context.Context, userID uint64) error
	Version(ctx context.Context, userID uint64) (uint64, error)
	Fill(ctx context.Context, code *entity.ReferralCode, version uint64) (bool, error)
}
