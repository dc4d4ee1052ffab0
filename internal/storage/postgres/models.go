package postgres

import (
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/rubani/internal/storage"
)

// UserModel maps to the "users" table. The composite primary key mirrors the
// original record shape: usernames are only unique within a service
// partition.
type UserModel struct {
	Partition  string `gorm:"primaryKey;size:128"`
	Username   string `gorm:"primaryKey;size:256"`
	OctopusURL string `gorm:"not null"`
	APIKey     string `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) toDomain() *storage.User {
	return &storage.User{
		Partition:  m.Partition,
		Username:   m.Username,
		OctopusURL: m.OctopusURL,
		APIKey:     m.APIKey,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// LoginTokenModel maps to the "login_tokens" table.
type LoginTokenModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username   string    `gorm:"not null;size:256"`
	Endpoint   string
	Credential string
	ExpiresAt  time.Time `gorm:"not null;index"`
	CreatedAt  time.Time
}

func (LoginTokenModel) TableName() string { return "login_tokens" }

func (m *LoginTokenModel) toDomain() *storage.LoginToken {
	return &storage.LoginToken{
		ID:         m.ID,
		Username:   m.Username,
		Endpoint:   m.Endpoint,
		Credential: m.Credential,
		ExpiresAt:  m.ExpiresAt,
		CreatedAt:  m.CreatedAt,
	}
}
