package service_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
	"github.com/vibast-solutions/ms-go-referral/app/events"
	"github.com/vibast-solutions/ms-go-referral/app/repository"
	"github.com/vibast-solutions/ms-go-referral/app/service"
	"github.com/vibast-solutions/ms-go-referral/app/types"
	"github.com/vibast-solutions/ms-go-referral/config"
)

const strongPassword = "Str0ng!Pass"

type authFixture struct {
	svc       service.AuthService
	tokens    *service.TokenService
	hasher    service.PasswordHasher
	mock      sqlmock.Sqlmock
	publisher *recordingPublisher
}

func testPolicy() config.PasswordPolicy {
	return config.PasswordPolicy{
		MinLength:        8,
		MaxLength:        72,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db, mock := newMockDB(t)
	tokens, err := service.NewTokenService(testJWTConfig(), service.WithTokenClock(fixedClock))
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	hasher := service.NewBcryptHasher(bcrypt.MinCost)
	publisher := &recordingPublisher{}

	svc := service.NewAuthService(
		db,
		repository.NewUserRepository(db),
		hasher,
		tokens,
		testPolicy(),
		service.WithClock(fixedClock),
		service.WithPublisher(publisher),
		service.WithAsyncRunner(syncRunner),
	)
	return &authFixture{svc: svc, tokens: tokens, hasher: hasher, mock: mock, publisher: publisher}
}

func registerRequest(email, code string) *types.RegisterRequest {
	return &types.RegisterRequest{
		Email:          email,
		Password:       strongPassword,
		PasswordRepeat: strongPassword,
		ReferralCode:   code,
	}
}

func TestAuthService_RegisterWithoutReferral(t *testing.T) {
	f := newAuthFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	f.mock.ExpectExec(insertUserQuery).
		WithArgs("Alice@Example.com", "alice@example.com", sqlmock.AnyArg(), nil, timeArg(testNow), timeArg(testNow)).
		WillReturnResult(sqlmock.NewResult(10, 1))
	f.mock.ExpectCommit()

	res, err := f.svc.Register(context.Background(), registerRequest("Alice@Example.com", ""))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.TokenType != types.TokenTypeBearer || res.ExpiresIn != 1800 {
		t.Fatalf("unexpected token response: %+v", res)
	}

	subject, err := f.svc.ResolveAccessToken(res.AccessToken)
	if err != nil || subject != 10 {
		t.Fatalf("expected access token for user 10, got %d (%v)", subject, err)
	}
	subject, err = f.tokens.ResolveSubject(res.RefreshToken, service.RefreshToken)
	if err != nil || subject != 10 {
		t.Fatalf("expected refresh token for user 10, got %d (%v)", subject, err)
	}

	if got := f.publisher.Types(); len(got) != 1 || got[0] != events.UserRegistered {
		t.Fatalf("expected user.registered event, got %v", got)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RegisterWithActiveReferral(t *testing.T) {
	f := newAuthFixture(t)
	code := activeCode(1)
	referrer := &entity.User{ID: 1, Email: "a@example.com", CanonicalEmail: "a@example.com", PasswordHash: "h", CreatedAt: testNow, UpdatedAt: testNow}

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("b@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	f.mock.ExpectQuery(findCodeByCodeQuery).
		WithArgs("WELCOME1").
		WillReturnRows(codeRow(code))
	f.mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(userRow(referrer))
	f.mock.ExpectExec(insertUserQuery).
		WithArgs("b@example.com", "b@example.com", sqlmock.AnyArg(), int64(1), timeArg(testNow), timeArg(testNow)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	f.mock.ExpectCommit()

	if _, err := f.svc.Register(context.Background(), registerRequest("b@example.com", " WELCOME1 ")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	f.publisher.mu.Lock()
	payload, ok := f.publisher.events[0].Payload.(events.UserRegisteredPayload)
	f.publisher.mu.Unlock()
	if !ok || payload.ReferredBy == nil || *payload.ReferredBy != 1 {
		t.Fatalf("expected event to carry referrer 1, got %+v", payload)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RegisterEmailTaken(t *testing.T) {
	f := newAuthFixture(t)
	existing := &entity.User{ID: 1, Email: "a@example.com", CanonicalEmail: "a@example.com", PasswordHash: "h", CreatedAt: testNow, UpdatedAt: testNow}

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("a@example.com").
		WillReturnRows(userRow(existing))
	f.mock.ExpectRollback()

	_, err := f.svc.Register(context.Background(), registerRequest("A@example.com", ""))
	if !errors.Is(err, service.ErrEmailTaken) || !errors.Is(err, service.ErrConflict) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if len(f.publisher.Types()) != 0 {
		t.Fatalf("expected no events")
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RegisterUnknownReferralCode(t *testing.T) {
	f := newAuthFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("c@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	f.mock.ExpectQuery(findCodeByCodeQuery).
		WithArgs("NOPE1234").
		WillReturnRows(sqlmock.NewRows(referralCodeColumns))
	f.mock.ExpectRollback()

	_, err := f.svc.Register(context.Background(), registerRequest("c@example.com", "NOPE1234"))
	if !errors.Is(err, service.ErrInvalidReferralCode) {
		t.Fatalf("expected ErrInvalidReferralCode, got %v", err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RegisterOrphanedReferralCode(t *testing.T) {
	f := newAuthFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("c@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	f.mock.ExpectQuery(findCodeByCodeQuery).
		WithArgs("WELCOME1").
		WillReturnRows(codeRow(activeCode(1)))
	f.mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(userColumns))
	f.mock.ExpectRollback()

	_, err := f.svc.Register(context.Background(), registerRequest("c@example.com", "WELCOME1"))
	if !errors.Is(err, service.ErrInvalidReferralCode) {
		t.Fatalf("expected ErrInvalidReferralCode, got %v", err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RegisterExpiredReferralCode(t *testing.T) {
	f := newAuthFixture(t)
	code := activeCode(1)
	code.ExpiryDate = testNow
	referrer := &entity.User{ID: 1, Email: "a@example.com", CanonicalEmail: "a@example.com", PasswordHash: "h", CreatedAt: testNow, UpdatedAt: testNow}

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("c@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	f.mock.ExpectQuery(findCodeByCodeQuery).
		WithArgs("WELCOME1").
		WillReturnRows(codeRow(code))
	f.mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(userRow(referrer))
	f.mock.ExpectRollback()

	_, err := f.svc.Register(context.Background(), registerRequest("c@example.com", "WELCOME1"))
	if !errors.Is(err, service.ErrExpiredReferralCode) || !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected ErrExpiredReferralCode, got %v", err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RegisterRejectsWeakPasswordBeforeAnyWrite(t *testing.T) {
	f := newAuthFixture(t)

	req := registerRequest("weak@example.com", "")
	req.Password = "weakpass"
	req.PasswordRepeat = "weakpass"

	_, err := f.svc.Register(context.Background(), req)
	if !errors.Is(err, service.ErrWeakPassword) || !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RegisterRejectsMismatchedPasswords(t *testing.T) {
	f := newAuthFixture(t)

	req := registerRequest("pw@example.com", "")
	req.PasswordRepeat = strongPassword + "x"

	if _, err := f.svc.Register(context.Background(), req); !errors.Is(err, service.ErrPasswordsMismatch) {
		t.Fatalf("expected ErrPasswordsMismatch, got %v", err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RegisterDuplicateOnInsert(t *testing.T) {
	f := newAuthFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("race@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	f.mock.ExpectExec(insertUserQuery).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	f.mock.ExpectRollback()

	if _, err := f.svc.Register(context.Background(), registerRequest("race@example.com", "")); !errors.Is(err, service.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_LoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	hash, _ := f.hasher.Hash(strongPassword)
	user := &entity.User{ID: 3, Email: "a@example.com", CanonicalEmail: "a@example.com", PasswordHash: hash, CreatedAt: testNow, UpdatedAt: testNow}

	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("a@example.com").
		WillReturnRows(userRow(user))

	res, err := f.svc.Login(context.Background(), &types.LoginRequest{Email: " A@example.com", Password: strongPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if subject, err := f.svc.ResolveAccessToken(res.AccessToken); err != nil || subject != 3 {
		t.Fatalf("expected access token for user 3, got %d (%v)", subject, err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_LoginFailures(t *testing.T) {
	f := newAuthFixture(t)
	hash, _ := f.hasher.Hash(strongPassword)
	user := &entity.User{ID: 3, Email: "a@example.com", CanonicalEmail: "a@example.com", PasswordHash: hash, CreatedAt: testNow, UpdatedAt: testNow}

	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("a@example.com").
		WillReturnRows(userRow(user))
	f.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := f.svc.Login(context.Background(), &types.LoginRequest{Email: "a@example.com", Password: "wrong"})
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	_, err = f.svc.Login(context.Background(), &types.LoginRequest{Email: "nobody@example.com", Password: strongPassword})
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	expectationsMet(t, f.mock)
}

type countingHasher struct {
	service.PasswordHasher
	verifies int
	hashes   []string
}

func (h *countingHasher) Verify(password, hash string) bool {
	h.verifies++
	h.hashes = append(h.hashes, hash)
	return h.PasswordHasher.Verify(password, hash)
}

func TestAuthService_LoginUnknownEmailStillVerifies(t *testing.T) {
	db, mock := newMockDB(t)
	tokens, err := service.NewTokenService(testJWTConfig(), service.WithTokenClock(fixedClock))
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	hasher := &countingHasher{PasswordHasher: service.NewBcryptHasher(bcrypt.MinCost)}
	svc := service.NewAuthService(db, repository.NewUserRepository(db), hasher, tokens, testPolicy(), service.WithClock(fixedClock))

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(findByCanonicalEmailQuery).
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows(userColumns))
	}

	for i := 0; i < 2; i++ {
		_, err = svc.Login(context.Background(), &types.LoginRequest{Email: "nobody@example.com", Password: strongPassword})
		if !errors.Is(err, service.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if hasher.verifies != 2 {
		t.Fatalf("expected a hash comparison per unknown-email login, got %d", hasher.verifies)
	}
	for _, hash := range hasher.hashes {
		if cost, err := bcrypt.Cost([]byte(hash)); err != nil || cost != bcrypt.MinCost {
			t.Fatalf("expected a bcrypt hash with the configured cost, got %q (%v)", hash, err)
		}
	}
	if hasher.hashes[0] != hasher.hashes[1] {
		t.Fatalf("expected the timing hash to be prepared once")
	}
	expectationsMet(t, mock)
}

func TestAuthService_RefreshToken(t *testing.T) {
	f := newAuthFixture(t)
	user := &entity.User{ID: 4, Email: "a@example.com", CanonicalEmail: "a@example.com", PasswordHash: "h", CreatedAt: testNow, UpdatedAt: testNow}
	refresh, _ := f.tokens.Issue(4, service.RefreshToken)

	f.mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(4)).
		WillReturnRows(userRow(user))

	res, err := f.svc.RefreshToken(context.Background(), &types.RefreshTokenRequest{RefreshToken: refresh})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if subject, err := f.svc.ResolveAccessToken(res.AccessToken); err != nil || subject != 4 {
		t.Fatalf("expected access token for user 4, got %d (%v)", subject, err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	access, _ := f.tokens.Issue(4, service.AccessToken)

	_, err := f.svc.RefreshToken(context.Background(), &types.RefreshTokenRequest{RefreshToken: access})
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_RefreshForDeletedUser(t *testing.T) {
	f := newAuthFixture(t)
	refresh, _ := f.tokens.Issue(5, service.RefreshToken)

	f.mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := f.svc.RefreshToken(context.Background(), &types.RefreshTokenRequest{RefreshToken: refresh})
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	expectationsMet(t, f.mock)
}

func TestAuthService_CurrentUser(t *testing.T) {
	f := newAuthFixture(t)
	user := &entity.User{
		ID:             6,
		Email:          "b@example.com",
		CanonicalEmail: "b@example.com",
		PasswordHash:   "h",
		ReferredBy:     sql.NullInt64{Int64: 1, Valid: true},
		CreatedAt:      testNow.Add(-24 * time.Hour),
		UpdatedAt:      testNow,
	}

	f.mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(6)).
		WillReturnRows(userRow(user))
	f.mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(userColumns))

	res, err := f.svc.CurrentUser(context.Background(), 6)
	if err != nil {
		t.Fatalf("current user failed: %v", err)
	}
	if res.Email != "b@example.com" || res.ReferredBy == nil || *res.ReferredBy != 1 {
		t.Fatalf("unexpected user: %+v", res)
	}

	if _, err = f.svc.CurrentUser(context.Background(), 7); !errors.Is(err, service.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	expectationsMet(t, f.mock)
}
