// Package events publishes domain events after state changes are committed.
// Publishing is best effort: callers log failures and carry on.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	UserRegistered      = "user.registered"
	ReferralCodeCreated = "referral_code.created"
	ReferralCodeUpdated = "referral_code.updated"
	ReferralCodeDeleted = "referral_code.deleted"
)

type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

type UserRegisteredPayload struct {
	UserID     uint64  `json:"user_id"`
	Email      string  `json:"email"`
	ReferredBy *uint64 `json:"referred_by"`
}

type ReferralCodePayload struct {
	CodeID     uint64    `json:"code_id"`
	Code       string    `json:"code"`
	UserID     uint64    `json:"user_id"`
	ExpiryDate time.Time `json:"expiry_date"`
}

func New(eventType string, occurredAt time.Time, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event. It is used when publishing is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
