package auth

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/apperr"
)

// RefreshToken is a persisted allow-list entry. A refresh token is usable
// only while its row exists: inserted on login, removed on logout.
type RefreshToken struct {
	Token string `gorm:"column:token;primaryKey;size:512;not null"`
}

// TableName provides the explicit table binding for GORM.
func (RefreshToken) TableName() string {
	return "authentications"
}

// RefreshStore persists the refresh-token allow-list.
type RefreshStore struct {
	db *gorm.DB
}

// NewRefreshStore constructs the allow-list store.
func NewRefreshStore(db *gorm.DB) (*RefreshStore, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	return &RefreshStore{db: db}, nil
}

// Save records a freshly issued refresh token.
func (s *RefreshStore) Save(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Create(&RefreshToken{Token: token}).Error
}

// Verify confirms the token is still on the allow-list.
func (s *RefreshStore) Verify(ctx context.Context, token string) error {
	var record RefreshToken
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: refresh token is not valid", apperr.ErrInvariant)
	}
	return err
}

// Delete revokes the token. Deleting an absent token is not an error.
func (s *RefreshStore) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&RefreshToken{}).Error
}
