package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/rubani/internal/storage"
)

// LoginTokenRepository persists one-time login tokens via GORM. It is
// shared by the SQLite and PostgreSQL backends.
type LoginTokenRepository struct {
	db *gorm.DB
}

// NewLoginTokenRepository creates a LoginTokenRepository.
func NewLoginTokenRepository(db *gorm.DB) *LoginTokenRepository {
	return &LoginTokenRepository{db: db}
}

// Create stores a new token.
func (r *LoginTokenRepository) Create(ctx context.Context, token *storage.LoginToken) error {
	model := LoginTokenModel{
		ID:         token.ID,
		Username:   token.Username,
		Endpoint:   token.Endpoint,
		Credential: token.Credential,
		ExpiresAt:  token.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating login token: %w", storage.ErrDuplicate)
		}
		return fmt.Errorf("creating login token: %w", err)
	}
	return nil
}

// Redeem fetches and deletes the token in one transaction. The delete's row
// count decides the race: whichever caller removes the row wins, every other
// caller sees ErrNotFound. Expired tokens are not redeemable.
func (r *LoginTokenRepository) Redeem(ctx context.Context, id uuid.UUID, now time.Time) (*storage.LoginToken, error) {
	var model LoginTokenModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND expires_at > ?", id, now).First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		res := tx.Where("id = ?", id).Delete(&LoginTokenModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("login token %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("redeeming login token: %w", err)
	}
	return model.toDomain(), nil
}

// DeleteExpired removes tokens whose expiry is before now.
func (r *LoginTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&LoginTokenModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting expired login tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
