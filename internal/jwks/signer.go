package jwks

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenSigner struct {
	now func() time.Time
}

func NewTokenSigner(now func() time.Time) *TokenSigner {
	if now == nil {
		now = time.Now
	}
	return &TokenSigner{now: now}
}

// Sign builds {sub, iat, exp} with exp = iat + ttl, lets extra override any claim,
// and signs RS256 with the kid in the header.
func (s *TokenSigner) Sign(priv *rsa.PrivateKey, kid int64, subject string, ttl time.Duration, extra map[string]any) (string, error) {
	if priv == nil {
		return "", errors.New("signing key is nil")
	}

	now := s.now().Unix()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now,
		"exp": now + int64(ttl/time.Second),
	}
	maps.Copy(claims, extra)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["alg"] = AlgorithmRS256
	token.Header["typ"] = "JWT"
	token.Header["kid"] = strconv.FormatInt(kid, 10)

	t, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	if parts := strings.Split(t, "."); len(parts) != 3 {
		return "", fmt.Errorf("invalid token format")
	}
	return t, nil
}
