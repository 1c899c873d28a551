package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenIssuer   = "quill-auth"
	tokenAudience = "quill-api"
)

var (
	errMissingAccessSecret  = errors.New("access token secret must be provided")
	errMissingRefreshSecret = errors.New("refresh token secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// TokenIssuerConfig configures the JWT issuer. Access and refresh tokens are
// signed with separate secrets so one class can never stand in for the other.
type TokenIssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and verifies the HS256 access/refresh token pair.
type TokenIssuer struct {
	config TokenIssuerConfig
	clock  func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg.Clock = clock
	return &TokenIssuer{config: cfg, clock: clock}
}

// IssueAccessToken produces a signed short-lived JWT and its validity in
// seconds for the given user.
func (i *TokenIssuer) IssueAccessToken(userID string) (string, int64, error) {
	token, err := i.issue(userID, i.config.AccessSecret, i.config.AccessTTL, errMissingAccessSecret)
	if err != nil {
		return "", 0, err
	}
	return token, int64(i.config.AccessTTL.Seconds()), nil
}

// IssueRefreshToken produces a signed long-lived JWT for the given user.
func (i *TokenIssuer) IssueRefreshToken(userID string) (string, error) {
	return i.issue(userID, i.config.RefreshSecret, i.config.RefreshTTL, errMissingRefreshSecret)
}

func (i *TokenIssuer) issue(userID string, secret []byte, ttl time.Duration, missing error) (string, error) {
	if len(secret) == 0 {
		return "", missing
	}
	if userID == "" {
		return "", errMissingSubjectClaim
	}

	now := i.clock().UTC()
	registered := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    tokenIssuer,
		Audience:  []string{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, registered).SignedString(secret)
}

// VerifyAccessToken ensures the access JWT is well formed and returns the subject.
func (i *TokenIssuer) VerifyAccessToken(tokenString string) (string, error) {
	return i.verify(tokenString, i.config.AccessSecret, errMissingAccessSecret)
}

// VerifyRefreshToken ensures the refresh JWT carries a valid signature and
// returns the subject. It does not consult the persisted allow-list; that is
// the Service's second check.
func (i *TokenIssuer) VerifyRefreshToken(tokenString string) (string, error) {
	return i.verify(tokenString, i.config.RefreshSecret, errMissingRefreshSecret)
}

func (i *TokenIssuer) verify(tokenString string, secret []byte, missing error) (string, error) {
	if len(secret) == 0 {
		return "", missing
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return secret, nil
		},
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubjectClaim
	}
	return claims.Subject, nil
}
