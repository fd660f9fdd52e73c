package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vibast-solutions/ms-go-referral/config"
)

// TokenClass selects the secret and lifetime used for a token.
type TokenClass int

const (
	AccessToken TokenClass = iota
	RefreshToken
)

func (c TokenClass) String() string {
	if c == RefreshToken {
		return "refresh"
	}
	return "access"
}

type Claims struct {
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type TokenServiceOption func(*TokenService)

// TokenService issues and verifies HMAC-signed tokens. Access and refresh
// tokens are signed with different secrets.
type TokenService struct {
	method        jwt.SigningMethod
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenService(cfg config.JWTConfig, opts ...TokenServiceOption) (*TokenService, error) {
	method, ok := jwt.GetSigningMethod(strings.ToUpper(cfg.Algorithm)).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}

	svc := &TokenService{
		method:        method,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenService) Issue(subject uint64, class TokenClass) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(subject, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttlFor(class))),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(s.method, claims)
	return token.SignedString(s.secretFor(class))
}

func (s *TokenService) IssuePair(subject uint64) (*TokenPair, error) {
	access, err := s.Issue(subject, AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Issue(subject, RefreshToken)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// Decode verifies the signature and expiry of a token of the given class.
func (s *TokenService) Decode(tokenString string, class TokenClass) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secretFor(class), nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ResolveSubject decodes the token and returns the user id it was issued for.
// Expiry is checked again here so a token is rejected at exactly its exp, and
// a past exp is reported as expired whether or not the signature verifies.
func (s *TokenService) ResolveSubject(tokenString string, class TokenClass) (uint64, error) {
	claims, err := s.Decode(tokenString, class)
	if errors.Is(err, ErrInvalidSignature) && s.expiredUnverified(tokenString) {
		return 0, ErrTokenExpired
	}
	if err != nil {
		return 0, err
	}

	if claims.ExpiresAt == nil {
		return 0, ErrInvalidToken
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return 0, ErrTokenExpired
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return 0, ErrMissingSubject
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, ErrInvalidToken
	}

	return userID, nil
}

// expiredUnverified reads exp without verifying the signature. The result is
// only used to pick which rejection to report.
func (s *TokenService) expiredUnverified(tokenString string) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time)
}

func (s *TokenService) secretFor(class TokenClass) []byte {
	if class == RefreshToken {
		return s.refreshSecret
	}
	return s.accessSecret
}

func (s *TokenService) ttlFor(class TokenClass) time.Duration {
	if class == RefreshToken {
		return s.refreshTTL
	}
	return s.accessTTL
}
