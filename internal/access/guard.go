// Package access decides who may use the backup agent: the configured owner,
// clients presenting the API key, and registered devices holding a token.
package access

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"autobackup/internal/backup"
	"autobackup/internal/config"
)

// ErrInvalidToken is returned when a device token is malformed, expired or
// signed with a different secret.
var ErrInvalidToken = errors.New("invalid device token")

const tokenIssuer = "autobackup"

// compareDigests reports 1 when two API key digests are equal. Its running
// time depends only on the digest length.
var compareDigests = subtle.ConstantTimeCompare

// DeviceClaims are the claims carried by a device token.
type DeviceClaims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id"`
}

// Guard holds the access configuration. It is immutable and safe for
// concurrent use.
type Guard struct {
	ownerID   int64
	apiKeySum [sha256.Size]byte
	hasAPIKey bool
	secret    []byte
	tokenTTL  time.Duration
	clock     backup.Clock
}

// NewGuard creates a Guard. An empty api_key makes IsValidAPIKey deny every
// key; an empty token_secret disables device tokens.
func NewGuard(cfg config.AccessConfig, clock backup.Clock) *Guard {
	if clock == nil {
		clock = backup.RealClock{}
	}
	g := &Guard{
		ownerID:  cfg.OwnerID,
		secret:   []byte(cfg.TokenSecret),
		tokenTTL: cfg.TokenTTL(),
		clock:    clock,
	}
	if cfg.APIKey != "" {
		g.apiKeySum = sha256.Sum256([]byte(cfg.APIKey))
		g.hasAPIKey = true
	}
	return g
}

// IsOwner reports whether userID is the configured owner.
func (g *Guard) IsOwner(userID int64) bool {
	return g.ownerID != 0 && userID == g.ownerID
}

// IsValidAPIKey compares key to the configured key in constant time. Both
// values are hashed first so the comparison time does not depend on length.
func (g *Guard) IsValidAPIKey(key string) bool {
	if !g.hasAPIKey || key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	return compareDigests(sum[:], g.apiKeySum[:]) == 1
}

// IssueDeviceToken returns a signed token naming deviceID.
func (g *Guard) IssueDeviceToken(deviceID string) (string, error) {
	if len(g.secret) == 0 {
		return "", errors.New("device tokens are disabled: token_secret is not set")
	}
	if deviceID == "" {
		return "", errors.New("device id is required")
	}

	now := g.clock.Now()
	claims := DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			Subject:  deviceID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		DeviceID: deviceID,
	}
	if g.tokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(g.tokenTTL))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	return signed, nil
}

// VerifyDeviceToken checks the token signature and expiry and returns the
// device id it names.
func (g *Guard) VerifyDeviceToken(token string) (string, error) {
	if len(g.secret) == 0 || token == "" {
		return "", ErrInvalidToken
	}

	claims := &DeviceClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(g.clock.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.DeviceID == "" {
		return "", ErrInvalidToken
	}
	return claims.DeviceID, nil
}
