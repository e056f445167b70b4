package auth

import (
	"fmt"
	"time"

	"github.com/gittalk/gittalk/internal/database"
	"github.com/golang-jwt/jwt"
)

const (
	subClaim   = "sub"
	loginClaim = "login"
	expClaim   = "exp"

	defaultTokenTTL = time.Hour * 24
)

// Identity is the verified result of a bearer credential.
type Identity struct {
	UserId string
	Login  string
}

// TokenAuthenticator mints and verifies the HS256 session tokens carried by
// both HTTP requests and websocket connections. Stateless.
type TokenAuthenticator struct {
	signingKey []byte
	ttl        time.Duration
}

func NewTokenAuthenticator(signingKey []byte) *TokenAuthenticator {
	return &TokenAuthenticator{
		signingKey: signingKey,
		ttl:        defaultTokenTTL,
	}
}

func (a *TokenAuthenticator) Mint(user database.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subClaim:   user.Id,
		loginClaim: user.Login,
		expClaim:   time.Now().Add(a.ttl).Unix(),
	})

	return token.SignedString(a.signingKey)
}

// Verify validates the token signature and expiry and extracts the caller's
// identity. Any failure means the credential is rejected; callers must drop
// the connection rather than retry.
func (a *TokenAuthenticator) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[subClaim].(string)
	if !ok || userId == "" {
		return Identity{}, fmt.Errorf("invalid sub claim")
	}

	login, ok := claims[loginClaim].(string)
	if !ok || login == "" {
		return Identity{}, fmt.Errorf("invalid login claim")
	}

	return Identity{UserId: userId, Login: login}, nil
}
