package accounts

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	lerrors "github.com/learnerinfo/lis/internal/errors"
)

const issuer = "lis"

// Claims are the session token claims.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the account and returns it with its expiry.
func (t *Tokens) Issue(a *Account) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Name: a.Name(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   a.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, lerrors.NewInternalError("failed to sign token", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a token.
func (t *Tokens) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		msg := "invalid token"
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			msg = "token expired"
		}
		return nil, lerrors.Wrap(lerrors.ErrCategoryAuth, lerrors.CodeInvalidToken, msg, err)
	}
	if claims.Issuer != issuer || claims.Subject == "" {
		return nil, lerrors.NewAuthError(lerrors.CodeInvalidToken, "invalid token")
	}
	return claims, nil
}
