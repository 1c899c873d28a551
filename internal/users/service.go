package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/apperr"
	"github.com/quillhq/quill/internal/identifier"
)

const idPrefix = "user-"

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies for the user service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider identifier.Provider
	Logger     *zap.Logger
}

// Service manages user registration, lookup, and credential verification.
type Service struct {
	db         *gorm.DB
	idProvider identifier.Provider
	logger     *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Register creates a new user and returns its identifier. The username
// pre-check is a fast path; the unique index on users.username remains the
// authoritative guard against a check-then-insert race.
func (s *Service) Register(ctx context.Context, username, password, fullName string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", apperr.ErrInvariant)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		s.logger.Error("username lookup failed", zap.Error(err), zap.String("username", username))
		return "", err
	}
	if count > 0 {
		return "", fmt.Errorf("%w: username %q already taken", apperr.ErrInvariant, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	rawID, err := s.idProvider.NewID()
	if err != nil {
		return "", err
	}
	user := User{
		ID:           idPrefix + rawID,
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// A concurrent registration losing the race lands here via the
		// unique index rather than the pre-check.
		s.logger.Warn("user insert failed", zap.Error(err), zap.String("username", username))
		return "", fmt.Errorf("%w: user could not be created", apperr.ErrInvariant)
	}

	return user.ID, nil
}

// GetByID returns the profile for the given user identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.Error(err), zap.String("user_id", id))
		return Profile{}, err
	}
	return Profile{ID: user.ID, Username: user.Username, FullName: user.FullName}, nil
}

// VerifyCredential checks a username/password pair and returns the user
// identifier. An unknown username and a wrong password both report
// ErrUnauthorized so the response does not reveal which part failed.
func (s *Service) VerifyCredential(ctx context.Context, username, password string) (string, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}
	if err != nil {
		s.logger.Error("credential lookup failed", zap.Error(err), zap.String("username", username))
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}
	return user.ID, nil
}
