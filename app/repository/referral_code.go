package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
)

const referralCodeColumns = `id, code, user_id, expiry_date, created_at, updated_at`

type ReferralCodeRepository struct {
	db DBTX
}

func NewReferralCodeRepository(db DBTX) *ReferralCodeRepository {
	return &ReferralCodeRepository{db: db}
}

func (r *ReferralCodeRepository) Create(ctx context.Context, code *entity.ReferralCode) error {
	query := `
		INSERT INTO referral_codes (code, user_id, expiry_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		code.Code,
		code.UserID,
		code.ExpiryDate,
		code.CreatedAt,
		code.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	code.ID = uint64(id)
	return nil
}

func (r *ReferralCodeRepository) FindByID(ctx context.Context, id uint64) (*entity.ReferralCode, error) {
	query := `
		SELECT ` + referralCodeColumns + `
		FROM referral_codes WHERE id = ?
	`
	return r.findOne(ctx, query, id)
}

func (r *ReferralCodeRepository) FindByUserID(ctx context.Context, userID uint64) (*entity.ReferralCode, error) {
	query := `
		SELECT ` + referralCodeColumns + `
		FROM referral_codes WHERE user_id = ?
	`
	return r.findOne(ctx, query, userID)
}

func (r *ReferralCodeRepository) FindByCode(ctx context.Context, code string) (*entity.ReferralCode, error) {
	query := `
		SELECT ` + referralCodeColumns + `
		FROM referral_codes WHERE code = ?
	`
	return r.findOne(ctx, query, code)
}

// UpdateExpiry persists a new expiry date for the code.
func (r *ReferralCodeRepository) UpdateExpiry(ctx context.Context, code *entity.ReferralCode) error {
	query := `
		UPDATE referral_codes SET
			expiry_date = ?,
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		code.ExpiryDate,
		code.UpdatedAt,
		code.ID,
	)
	return err
}

// Delete removes the code and reports whether a row existed.
func (r *ReferralCodeRepository) Delete(ctx context.Context, id uint64) (bool, error) {
	query := `DELETE FROM referral_codes WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *ReferralCodeRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.ReferralCode, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	code := &entity.ReferralCode{}
	err := row.Scan(
		&code.ID,
		&code.Code,
		&code.UserID,
		&code.ExpiryDate,
		&code.CreatedAt,
		&code.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}
