package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
	"github.com/vibast-solutions/ms-go-referral/app/events"
	"github.com/vibast-solutions/ms-go-referral/app/repository"
	"github.com/vibast-solutions/ms-go-referral/app/types"
	"github.com/vibast-solutions/ms-go-referral/config"
)

type AuthService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*types.TokenResponse, error)
	Login(ctx context.Context, req *types.LoginRequest) (*types.TokenResponse, error)
	RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*types.TokenResponse, error)
	CurrentUser(ctx context.Context, userID uint64) (*types.UserResponse, error)
	ResolveAccessToken(tokenString string) (uint64, error)
}

type authService struct {
	db       *sql.DB
	userRepo userRepository
	hasher   PasswordHasher
	tokens   *TokenService
	policy   config.PasswordPolicy
	options

	dummyOnce sync.Once
	dummyHash string
}

// dummyPassword is hashed once so logins for unknown emails pay the same
// hashing cost as logins for known ones.
const dummyPassword = "referral-login-timing-equalizer"

func NewAuthService(
	db *sql.DB,
	userRepo userRepository,
	hasher PasswordHasher,
	tokens *TokenService,
	policy config.PasswordPolicy,
	opts ...Option,
) AuthService {
	return &authService{
		db:       db,
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		policy:   policy,
		options:  applyOptions(opts),
	}
}

// Register creates the account and its referral link in one transaction.
// Nothing is written unless every check passes.
func (s *authService) Register(ctx context.Context, req *types.RegisterRequest) (*types.TokenResponse, error) {
	email := strings.TrimSpace(req.Email)
	canonicalEmail := CanonicalizeEmail(email)

	if req.Password != req.PasswordRepeat {
		return nil, ErrPasswordsMismatch
	}
	if err := s.policy.Validate(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txUserRepo := repository.NewUserRepository(tx)
	txCodeRepo := repository.NewReferralCodeRepository(tx)

	existing, err := txUserRepo.FindByCanonicalEmail(ctx, canonicalEmail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	referredBy, err := s.resolveReferrer(ctx, txUserRepo, txCodeRepo, req.ReferralCode)
	if err != nil {
		return nil, err
	}

	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &entity.User{
		Email:          email,
		CanonicalEmail: canonicalEmail,
		PasswordHash:   hashedPassword,
		ReferredBy:     referredBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = txUserRepo.Create(ctx, user); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}

	payload := events.UserRegisteredPayload{UserID: user.ID, Email: user.Email}
	if referrerID, ok := user.ReferrerID(); ok {
		payload.ReferredBy = &referrerID
	}
	s.publish(events.UserRegistered, payload)

	return tokenResponse(pair), nil
}

func (s *authService) Login(ctx context.Context, req *types.LoginRequest) (*types.TokenResponse, error) {
	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(req.Email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.hasher.Verify(req.Password, s.unknownUserHash())
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}
	return tokenResponse(pair), nil
}

func (s *authService) unknownUserHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			logrus.WithError(err).Warn("failed to prepare login timing hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// RefreshToken exchanges a valid refresh token for a new pair. Refresh
// tokens are stateless, so the old one stays valid until it expires.
func (s *authService) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*types.TokenResponse, error) {
	userID, err := s.tokens.ResolveSubject(req.RefreshToken, RefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}
	return tokenResponse(pair), nil
}

func (s *authService) CurrentUser(ctx context.Context, userID uint64) (*types.UserResponse, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return types.NewUserResponse(user), nil
}

func (s *authService) ResolveAccessToken(tokenString string) (uint64, error) {
	return s.tokens.ResolveSubject(tokenString, AccessToken)
}

// resolveReferrer validates an optional referral code. The lookups run on
// the registration transaction so the referrer cannot vanish mid-way.
func (s *authService) resolveReferrer(
	ctx context.Context,
	users *repository.UserRepository,
	codes *repository.ReferralCodeRepository,
	value string,
) (sql.NullInt64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullInt64{}, nil
	}

	code, err := codes.FindByCode(ctx, value)
	if err != nil {
		return sql.NullInt64{}, err
	}
	if code == nil {
		return sql.NullInt64{}, ErrInvalidReferralCode
	}

	referrer, err := users.FindByID(ctx, code.UserID)
	if err != nil {
		return sql.NullInt64{}, err
	}
	if referrer == nil {
		return sql.NullInt64{}, ErrInvalidReferralCode
	}

	if !code.IsActive(s.now()) {
		return sql.NullInt64{}, ErrExpiredReferralCode
	}

	return sql.NullInt64{Int64: int64(referrer.ID), Valid: true}, nil
}

func tokenResponse(pair *TokenPair) *types.TokenResponse {
	return &types.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    types.TokenTypeBearer,
		ExpiresIn:    pair.ExpiresIn,
	}
}
