package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/rubani/internal/storage"
)

// UserRepository persists user records via GORM. It is shared by the
// SQLite and PostgreSQL backends.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Save upserts the record keyed by (partition, username).
func (r *UserRepository) Save(ctx context.Context, user *storage.User) error {
	partition := user.Partition
	if partition == "" {
		partition = storage.ServicePartition
	}
	model := UserModel{
		Partition:  partition,
		Username:   user.Username,
		OctopusURL: user.OctopusURL,
		APIKey:     user.APIKey,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "partition"}, {Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"octopus_url", "api_key", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("saving user %q: %w", user.Username, storage.ErrDuplicate)
		}
		return fmt.Errorf("saving user %q: %w", user.Username, err)
	}
	return nil
}

// Get returns the record for a username in the service partition.
func (r *UserRepository) Get(ctx context.Context, username string) (*storage.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).
		Where("partition = ? AND username = ?", storage.ServicePartition, username).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %q: %w", username, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("looking up user %q: %w", username, err)
	}
	return model.toDomain(), nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (r *UserRepository) Delete(ctx context.Context, username string) error {
	err := r.db.WithContext(ctx).
		Where("partition = ? AND username = ?", storage.ServicePartition, username).
		Delete(&UserModel{}).Error
	if err != nil {
		return fmt.Errorf("deleting user %q: %w", username, err)
	}
	return nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// isUniqueViolation recognizes duplicate-key errors from both backends:
// pgconn's SQLSTATE 23505 and GORM's translated sentinel.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
