// Package jwt signs and validates the identity assertions minted by the API
// gateway. The service trusts the gateway to authenticate users; each request
// carries a short-lived HS256 token with the caller's subject and role.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vulntrack/api/pkg/domain/shared"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptySubject is returned when the subject is empty.
	ErrEmptySubject = errors.New("subject cannot be empty")
	// ErrUnknownRole is returned when the role claim is not recognized.
	ErrUnknownRole = errors.New("unknown role")
)

// Claims represents the identity assertion carried by a gateway token.
// Subject lives in the registered claims; Role is the caller's service role.
type Claims struct {
	Role string `json:"role"`

	jwt.RegisteredClaims
}

// ParsedRole returns the domain role for the claim, defaulting to user when
// the role claim is absent.
func (c *Claims) ParsedRole() (shared.Role, error) {
	if c.Role == "" {
		return shared.RoleUser, nil
	}
	role, ok := shared.ParseRole(c.Role)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, c.Role)
	}
	return role, nil
}

// Config holds signing configuration for assertion tokens.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Generator signs and validates identity assertions.
type Generator struct {
	config Config
}

// NewGenerator creates a new assertion generator.
func NewGenerator(config Config) *Generator {
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	return &Generator{config: config}
}

// Sign creates a signed assertion for the given subject and role.
func (g *Generator) Sign(subject string, role shared.Role) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrEmptySubject
	}

	now := time.Now()
	expiresAt := now.Add(g.config.TTL)

	claims := Claims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(g.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Validate parses and verifies an assertion, returning its claims.
func (g *Generator) Validate(tokenString string) (*Claims, error) {
	return Validate(tokenString, g.config.Secret, g.config.Issuer)
}

// Validate parses and verifies an assertion against the shared secret.
// An empty issuer skips the issuer check.
func Validate(tokenString, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}
