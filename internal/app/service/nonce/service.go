// Package nonce issues and verifies the integrity tokens embedded in download
// links. A token is scoped to one action ("download_{productID}") and one
// user, so a link cannot be replayed for another product or handed to another
// account, and it expires on its own clock independent of the session.
package nonce

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
)

var ErrInvalid = errors.New("nonce: invalid or expired token")

type Service struct {
	secret []byte
	ttl    time.Duration
}

type claims struct {
	Action string `json:"act"`
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func NewService(cfg *cfgpkg.Config) *Service {
	ttl := cfg.Auth.NonceTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(cfg.Auth.JWTSecret), ttl: ttl}
}

// DownloadAction is the scope string for a product download nonce.
func DownloadAction(productID string) string {
	return "download_" + productID
}

// Issue signs a token binding action and user for the configured TTL.
func (s *Service) Issue(action, userID string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Action: action,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign nonce: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and that the token was issued for exactly
// this action and user.
func (s *Service) Verify(token, action, userID string) error {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalid
	}
	if c.Action != action || c.UserID != userID {
		return ErrInvalid
	}
	return nil
}
