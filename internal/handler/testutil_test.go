package handler

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fleetkit/napi/internal/domain"
)

// signTestToken mints a bearer token for claims using secret, matching what
// AuthMiddleware expects to verify.
func signTestToken(secret []byte, claims domain.TokenClaims) (string, error) {
	if claims.Exp == 0 {
		claims.Exp = time.Now().Add(time.Hour).Unix()
	}
	if claims.Iat == 0 {
		claims.Iat = time.Now().Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, napiClaims{TokenClaims: claims})
	return token.SignedString(secret)
}
