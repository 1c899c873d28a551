package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/quillhq/quill/internal/apperr"
)

var noOpLogger = zap.NewNop()

// CredentialVerifier checks a username/password pair and returns the user id.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, username, password string) (string, error)
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// ServiceConfig describes the dependencies for the authentication service.
type ServiceConfig struct {
	Users  CredentialVerifier
	Tokens *TokenIssuer
	Store  *RefreshStore
	Logger *zap.Logger
}

// Service drives login, token refresh, and logout. Refresh tokens are valid
// only while both their signature checks out and the persisted allow-list
// still holds them.
type Service struct {
	users  CredentialVerifier
	tokens *TokenIssuer
	store  *RefreshStore
	logger *zap.Logger
}

// NewService constructs the authentication service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Users == nil {
		return nil, errors.New("credential verifier is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("refresh store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{users: cfg.Users, tokens: cfg.Tokens, store: cfg.Store, logger: logger}, nil
}

// Login verifies the credential, issues an access/refresh pair, and records
// the refresh token on the allow-list.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	userID, err := s.users.VerifyCredential(ctx, username, password)
	if err != nil {
		return TokenPair{}, err
	}

	access, expiresIn, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Save(ctx, refresh); err != nil {
		s.logger.Error("refresh token persist failed", zap.Error(err), zap.String("user_id", userID))
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: expiresIn}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// signature check and the allow-list check must both pass.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: refresh token is not valid", apperr.ErrInvariant)
	}
	if err := s.store.Verify(ctx, refreshToken); err != nil {
		return "", err
	}

	access, _, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return "", err
	}
	return access, nil
}

// Logout revokes the refresh token. Revoking a token that was never issued
// or is already revoked reports ErrInvariant.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := s.store.Verify(ctx, refreshToken); err != nil {
		return err
	}
	return s.store.Delete(ctx, refreshToken)
}
