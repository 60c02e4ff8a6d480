package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleService is carried by backoffice callers of the trigger API.
	RoleService = "service"
	// RoleCaller is minted per call and only admits the matching session's
	// transport endpoints.
	RoleCaller = "caller"

	serviceTokenTTL = 24 * time.Hour
	callerTokenTTL  = 2 * time.Hour
)

// Claims are the JWT claims this service issues and accepts.
type Claims struct {
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and validates the service's bearer tokens.
type Authenticator struct {
	secret []byte
}

func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// GenerateServiceToken mints a token for a backoffice caller.
func (a *Authenticator) GenerateServiceToken(subject string) (string, error) {
	claims := &Claims{
		Role: RoleService,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(serviceTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// GenerateCallerToken mints a token that admits one session's transport
// endpoints and nothing else.
func (a *Authenticator) GenerateCallerToken(sessionID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(callerTokenTTL)
	claims := &Claims{
		SessionID: sessionID,
		Role:      RoleCaller,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token, returning its claims.
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// AllowsSession reports whether the claims admit the given session's
// transport endpoints.
func (c *Claims) AllowsSession(sessionID string) bool {
	switch c.Role {
	case RoleService:
		return true
	case RoleCaller:
		return c.SessionID == sessionID
	default:
		return false
	}
}
