package service

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
)

func TestResetTokenSigner_RoundTrip(t *testing.T) {
	signer := newResetTokenSigner("secret", time.Hour)
	user := &entity.User{ID: 5, PasswordHash: "hash"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	token, err := signer.Issue(user, now)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := signer.Verify(token, user, now.Add(59*time.Minute)); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := signer.Verify(token, user, now.Add(61*time.Minute)); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestResetTokenSigner_BoundToUserState(t *testing.T) {
	signer := newResetTokenSigner("secret", time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	user := &entity.User{ID: 5, PasswordHash: "hash"}

	token, err := signer.Issue(user, now)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	loggedIn := *user
	loggedIn.LastLogin = sql.NullTime{Time: now.Add(time.Minute), Valid: true}
	if err := signer.Verify(token, &loggedIn, now); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected login after issue to invalidate token, got %v", err)
	}

	rehashed := *user
	rehashed.PasswordHash = "other"
	if err := signer.Verify(token, &rehashed, now); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected password change to invalidate token, got %v", err)
	}

	other := newResetTokenSigner("another-secret", time.Hour)
	if err := other.Verify(token, user, now); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected foreign secret to fail, got %v", err)
	}
}

func TestResetTokenSigner_RejectsUnsignedToken(t *testing.T) {
	signer := newResetTokenSigner("secret", time.Hour)
	user := &entity.User{ID: 5, PasswordHash: "hash"}
	now := time.Now()

	claims := resetClaims{
		Fingerprint: signer.fingerprint(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "5",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}

	if err := signer.Verify(unsigned, user, now); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected alg none to be rejected, got %v", err)
	}
	if err := signer.Verify("not-a-token", user, now); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected garbage to be rejected, got %v", err)
	}
}

func TestUIDEncoding(t *testing.T) {
	uid := EncodeUID(42)
	if strings.ContainsAny(uid, "=/+") {
		t.Fatalf("expected url-safe unpadded uid, got %q", uid)
	}

	id, err := DecodeUID(uid)
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (%v)", id, err)
	}
	if id, err := DecodeUID(uid + "=="); err != nil || id != 42 {
		t.Fatalf("expected padded uid to decode, got %d (%v)", id, err)
	}

	for _, bad := range []string{"", "!!", EncodeUID(0), "YWJj"} {
		if _, err := DecodeUID(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
