package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
)

type resetClaims struct {
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// resetTokenSigner issues password reset tokens bound to the user's current
// password hash and last login. Either changing invalidates the token.
type resetTokenSigner struct {
	secret []byte
	ttl    time.Duration
}

func newResetTokenSigner(secret string, ttl time.Duration) *resetTokenSigner {
	return &resetTokenSigner{secret: []byte(secret), ttl: ttl}
}

func (s *resetTokenSigner) Issue(user *entity.User, now time.Time) (string, error) {
	claims := resetClaims{
		Fingerprint: s.fingerprint(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *resetTokenSigner) Verify(tokenString string, user *entity.User, now time.Time) error {
	claims := &resetClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	if claims.Subject != strconv.FormatUint(user.ID, 10) {
		return ErrInvalidOrExpiredToken
	}
	if !hmac.Equal([]byte(claims.Fingerprint), []byte(s.fingerprint(user))) {
		return ErrInvalidOrExpiredToken
	}
	return nil
}

func (s *resetTokenSigner) fingerprint(user *entity.User) string {
	var lastLogin int64
	if user.LastLogin.Valid {
		lastLogin = user.LastLogin.Time.Unix()
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("password-reset|"))
	mac.Write([]byte(strconv.FormatUint(user.ID, 10)))
	mac.Write([]byte("|" + user.PasswordHash + "|"))
	mac.Write([]byte(strconv.FormatInt(lastLogin, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

// EncodeUID renders a user id for reset links.
func EncodeUID(id uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(id, 10)))
}

// DecodeUID reverses EncodeUID. Padded input is accepted.
func DecodeUID(uidb64 string) (uint64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(trimPadding(uidb64))
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("invalid uid")
	}
	return id, nil
}

func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}
