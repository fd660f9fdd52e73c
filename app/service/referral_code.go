package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-referral/app/cache"
	"github.com/vibast-solutions/ms-go-referral/app/entity"
	"github.com/vibast-solutions/ms-go-referral/app/events"
	"github.com/vibast-solutions/ms-go-referral/app/repository"
	"github.com/vibast-solutions/ms-go-referral/app/types"
)

const (
	generatedCodeLength = 8
	maxExtensionDays    = 3650
)

type userRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.User, error)
	FindByReferrerID(ctx context.Context, referrerID uint64) ([]*entity.User, error)
}

type referralCodeRepository interface {
	Create(ctx context.Context, code *entity.ReferralCode) error
	FindByUserID(ctx context.Context, userID uint64) (*entity.ReferralCode, error)
	UpdateExpiry(ctx context.Context, code *entity.ReferralCode) error
	Delete(ctx context.Context, id uint64) (bool, error)
}

type ReferralCodeService interface {
	Create(ctx context.Context, userID uint64, req *types.CreateReferralCodeRequest) (*types.ReferralCodeResponse, error)
	GetByUser(ctx context.Context, userID uint64) (*types.ReferralCodeResponse, error)
	GetByEmail(ctx context.Context, email string) (*types.ReferralCodeResponse, error)
	Delete(ctx context.Context, userID uint64) error
	Extend(ctx context.Context, userID uint64, days int) (*types.ReferralCodeResponse, error)
	Deactivate(ctx context.Context, userID uint64) (*types.ReferralCodeResponse, error)
	ListReferrals(ctx context.Context, referrerID uint64) ([]*types.UserResponse, error)
}

type referralCodeService struct {
	userRepo userRepository
	codeRepo referralCodeRepository
	cache    cache.ReferralCache
	options
}

func NewReferralCodeService(
	userRepo userRepository,
	codeRepo referralCodeRepository,
	referralCache cache.ReferralCache,
	opts ...Option,
) ReferralCodeService {
	return &referralCodeService{
		userRepo: userRepo,
		codeRepo: codeRepo,
		cache:    referralCache,
		options:  applyOptions(opts),
	}
}

func (s *referralCodeService) Create(ctx context.Context, userID uint64, req *types.CreateReferralCodeRequest) (*types.ReferralCodeResponse, error) {
	now := s.now()
	if !req.ExpiryDate.After(now) {
		return nil, ErrInvalidExpiry
	}

	existing, err := s.codeRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrReferralCodeExists
	}

	value := strings.TrimSpace(req.Code)
	if value == "" {
		value = generateReferralCode()
	}

	code := &entity.ReferralCode{
		Code:       value,
		UserID:     userID,
		ExpiryDate: req.ExpiryDate.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err = s.codeRepo.Create(ctx, code); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, s.classifyDuplicate(ctx, userID)
		}
		return nil, err
	}

	s.cachePut(ctx, code)
	s.publish(events.ReferralCodeCreated, referralCodePayload(code))

	return types.NewReferralCodeResponse(code, now), nil
}

func (s *referralCodeService) GetByUser(ctx context.Context, userID uint64) (*types.ReferralCodeResponse, error) {
	code, err := s.lookupByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, ErrReferralCodeNotFound
	}

	return types.NewReferralCodeResponse(code, s.now()), nil
}

func (s *referralCodeService) GetByEmail(ctx context.Context, email string) (*types.ReferralCodeResponse, error) {
	user, err := s.userRepo.FindByCanonicalEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrReferralCodeNotFound
	}

	return s.GetByUser(ctx, user.ID)
}

func (s *referralCodeService) Delete(ctx context.Context, userID uint64) error {
	code, err := s.codeRepo.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if code == nil {
		return ErrReferralCodeNotFound
	}

	deleted, err := s.codeRepo.Delete(ctx, code.ID)
	if err != nil {
		return err
	}

	// A stale entry must not outlive the row, even when another request won
	// the race to delete it.
	if err = s.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("invalidate referral cache: %w", err)
	}
	if !deleted {
		return ErrReferralCodeNotFound
	}

	s.publish(events.ReferralCodeDeleted, referralCodePayload(code))
	return nil
}

func (s *referralCodeService) Extend(ctx context.Context, userID uint64, days int) (*types.ReferralCodeResponse, error) {
	if days <= 0 || days > maxExtensionDays {
		return nil, ErrInvalidExtension
	}

	return s.updateExpiry(ctx, userID, func(code *entity.ReferralCode) {
		code.ExtendExpiry(days)
	})
}

func (s *referralCodeService) Deactivate(ctx context.Context, userID uint64) (*types.ReferralCodeResponse, error) {
	return s.updateExpiry(ctx, userID, func(code *entity.ReferralCode) {
		code.Deactivate(s.now())
	})
}

func (s *referralCodeService) ListReferrals(ctx context.Context, referrerID uint64) ([]*types.UserResponse, error) {
	users, err := s.userRepo.FindByReferrerID(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	res := make([]*types.UserResponse, 0, len(users))
	for _, user := range users {
		res = append(res, types.NewUserResponse(user))
	}
	return res, nil
}

func (s *referralCodeService) updateExpiry(ctx context.Context, userID uint64, mutate func(code *entity.ReferralCode)) (*types.ReferralCodeResponse, error) {
	code, err := s.codeRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, ErrReferralCodeNotFound
	}

	mutate(code)
	now := s.now()
	code.UpdatedAt = now

	if err = s.codeRepo.UpdateExpiry(ctx, code); err != nil {
		return nil, err
	}

	s.cachePut(ctx, code)
	s.publish(events.ReferralCodeUpdated, referralCodePayload(code))

	return types.NewReferralCodeResponse(code, now), nil
}

// lookupByUser reads through the cache. Cache failures degrade to a store
// read so they never fail the request. The fill is guarded by the version
// taken before the store read, so a write or delete that lands in between
// wins over the value read here.
func (s *referralCodeService) lookupByUser(ctx context.Context, userID uint64) (*entity.ReferralCode, error) {
	cached, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("referral cache read failed")
	} else if ok {
		return cached, nil
	}

	version, versionErr := s.cache.Version(ctx, userID)
	if versionErr != nil {
		logrus.WithError(versionErr).WithField("user_id", userID).Warn("referral cache version read failed")
	}

	code, err := s.codeRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, nil
	}

	if versionErr == nil {
		s.cacheFill(ctx, code, version)
	}
	return code, nil
}

func (s *referralCodeService) cacheFill(ctx context.Context, code *entity.ReferralCode, version uint64) {
	stored, err := s.cache.Fill(ctx, code, version)
	if err != nil {
		logrus.WithError(err).WithField("user_id", code.UserID).Warn("referral cache fill failed")
		return
	}
	if !stored {
		logrus.WithField("user_id", code.UserID).Debug("referral cache fill skipped, entry changed during read")
	}
}

func (s *referralCodeService) cachePut(ctx context.Context, code *entity.ReferralCode) {
	if err := s.cache.Put(ctx, code); err != nil {
		logrus.WithError(err).WithField("user_id", code.UserID).Warn("referral cache write failed")
	}
}

// classifyDuplicate tells a lost race on the owner apart from a collision on
// the code value itself.
func (s *referralCodeService) classifyDuplicate(ctx context.Context, userID uint64) error {
	existing, err := s.codeRepo.FindByUserID(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to classify duplicate referral code")
		return ErrReferralCodeTaken
	}
	if existing != nil {
		return ErrReferralCodeExists
	}
	return ErrReferralCodeTaken
}

func generateReferralCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:generatedCodeLength])
}

func referralCodePayload(code *entity.ReferralCode) events.ReferralCodePayload {
	return events.ReferralCodePayload{
		CodeID:     code.ID,
		Code:       code.Code,
		UserID:     code.UserID,
		ExpiryDate: code.ExpiryDate,
	}
}
