package auth

import (
	"testing"
	"time"
)

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     30 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Clock:         clock,
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(func() time.Time { return time.Unix(1700000000, 0).UTC() })

	token, expiresIn, err := issuer.IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != 1800 {
		t.Fatalf("expected 1800s validity, got %d", expiresIn)
	}

	subject, err := issuer.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", subject)
	}
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	issuer := newTestIssuer(nil)

	refresh, err := issuer.IssueRefreshToken("user-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := issuer.VerifyAccessToken(refresh); err == nil {
		t.Fatalf("a refresh token must not verify as an access token")
	}
	if _, err := issuer.VerifyRefreshToken(refresh); err != nil {
		t.Fatalf("unexpected refresh verify error: %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := newTestIssuer(nil)

	token, _, err := issuer.IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := issuer.VerifyAccessToken(tampered); err == nil {
		t.Fatalf("expected verification of tampered token to fail")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	issuer := newTestIssuer(func() time.Time { return now })

	token, _, err := issuer.IssueAccessToken("user-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if _, err := issuer.VerifyAccessToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(nil)

	if _, _, err := issuer.IssueAccessToken(""); err == nil {
		t.Fatalf("expected issue without subject to fail")
	}
}
