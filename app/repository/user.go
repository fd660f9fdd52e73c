package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
)

const userColumns = `id, email, canonical_email, password_hash, referred_by, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (email, canonical_email, password_hash, referred_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.CanonicalEmail,
		user.PasswordHash,
		user.ReferredBy,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE id = ?
	`
	return r.findOne(ctx, query, id)
}

func (r *UserRepository) FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE canonical_email = ?
	`
	return r.findOne(ctx, query, canonicalEmail)
}

// FindByReferrerID lists the users registered with a code owned by referrerID.
func (r *UserRepository) FindByReferrerID(ctx context.Context, referrerID uint64) ([]*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE referred_by = ?
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*entity.User, 0)
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.User, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	user, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func scanUser(scan rowScanner) (*entity.User, error) {
	user := &entity.User{}
	if err := scan(
		&user.ID,
		&user.Email,
		&user.CanonicalEmail,
		&user.PasswordHash,
		&user.ReferredBy,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return user, nil
}
