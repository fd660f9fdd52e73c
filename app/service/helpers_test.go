package service_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
	"github.com/vibast-solutions/ms-go-referral/app/events"
)

const (
	insertUserQuery           = `(?s)INSERT INTO users \(email, canonical_email, password_hash, referred_by, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?\)`
	findUserByIDQuery         = `(?s)SELECT id, email, canonical_email, password_hash, referred_by, created_at, updated_at\s+FROM users WHERE id = \?`
	findByCanonicalEmailQuery = `(?s)SELECT id, email, canonical_email, password_hash, referred_by, created_at, updated_at\s+FROM users WHERE canonical_email = \?`
	findByReferrerIDQuery     = `(?s)SELECT id, email, canonical_email, password_hash, referred_by, created_at, updated_at\s+FROM users WHERE referred_by = \?\s+ORDER BY id`

	insertReferralCodeQuery = `(?s)INSERT INTO referral_codes \(code, user_id, expiry_date, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?\)`
	findCodeByUserIDQuery   = `(?s)SELECT id, code, user_id, expiry_date, created_at, updated_at\s+FROM referral_codes WHERE user_id = \?`
	findCodeByCodeQuery     = `(?s)SELECT id, code, user_id, expiry_date, created_at, updated_at\s+FROM referral_codes WHERE code = \?`
	updateCodeExpiryQuery   = `(?s)UPDATE referral_codes SET\s+expiry_date = \?,\s+updated_at = \?\s+WHERE id = \?`
	deleteCodeQuery         = `(?s)DELETE FROM referral_codes WHERE id = \?`
)

var (
	userColumns = []string{
		"id",
		"email",
		"canonical_email",
		"password_hash",
		"referred_by",
		"created_at",
		"updated_at",
	}
	referralCodeColumns = []string{
		"id",
		"code",
		"user_id",
		"expiry_date",
		"created_at",
		"updated_at",
	}
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

func syncRunner(task func()) {
	task()
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// timeArg matches a time argument by instant rather than representation.
type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	got, ok := v.(time.Time)
	return ok && got.Equal(time.Time(a))
}

func codeRow(code *entity.ReferralCode) *sqlmock.Rows {
	return sqlmock.NewRows(referralCodeColumns).
		AddRow(code.ID, code.Code, code.UserID, code.ExpiryDate, code.CreatedAt, code.UpdatedAt)
}

func userRow(user *entity.User) *sqlmock.Rows {
	var referredBy interface{}
	if user.ReferredBy.Valid {
		referredBy = user.ReferredBy.Int64
	}
	return sqlmock.NewRows(userColumns).
		AddRow(user.ID, user.Email, user.CanonicalEmail, user.PasswordHash, referredBy, user.CreatedAt, user.UpdatedAt)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error {
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
