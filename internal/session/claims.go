package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/farm_dashboard/internal/domain"
)

var errUnexpectedMethod = errors.New("unexpected sign method")

// identityClaims is the user_data payload. Identity fields sit at the top
// level so page scripts can read them after base64-decoding the body.
type identityClaims struct {
	domain.SessionIdentity
	jwt.RegisteredClaims
}

type pendingClaims struct {
	Pending domain.PendingIdentity `json:"pending"`
	jwt.RegisteredClaims
}

func sign(claims jwt.Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parse(tokenStr string, claims jwt.Claims, secret []byte, now func() time.Time) error {
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errUnexpectedMethod
		}
		return secret, nil
	}, jwt.WithTimeFunc(now), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}
	if !tkn.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

func newIdentityClaims(id domain.SessionIdentity, issued, expires time.Time) identityClaims {
	return identityClaims{
		SessionIdentity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
}

func newPendingClaims(p domain.PendingIdentity, issued time.Time) pendingClaims {
	return pendingClaims{
		Pending: p,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
	}
}
