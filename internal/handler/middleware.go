package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fleetkit/napi/internal/domain"
)

// napiClaims adapts domain.TokenClaims to jwt.Claims so golang-jwt can
// validate standard registered claims (exp/iat) alongside the allocation
// domain's owner_uuid/tenant_id/is_admin fields.
type napiClaims struct {
	domain.TokenClaims
}

func (c napiClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	if c.Exp == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}
func (c napiClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	if c.Iat == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}
func (c napiClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c napiClaims) GetIssuer() (string, error)              { return "", nil }
func (c napiClaims) GetSubject() (string, error)              { return c.OwnerUUID, nil }
func (c napiClaims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

// AuthMiddleware validates a bearer JWT using the configured HMAC secret and
// populates the resolved domain.TokenClaims into the gin context under
// "claims", matching what downstream handlers (audit, NIC) expect.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			errorResponse(c, domain.NewError(domain.ErrUnauthorized, "authorization header required", nil))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			errorResponse(c, domain.NewError(domain.ErrUnauthorized, "invalid authorization header format", nil))
			c.Abort()
			return
		}

		claims := &napiClaims{}
		_, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, domain.NewError(domain.ErrUnauthorized, "unexpected signing method", nil)
			}
			return secret, nil
		})
		if err != nil {
			errorResponse(c, domain.NewError(domain.ErrUnauthorized, "invalid or expired token", nil))
			c.Abort()
			return
		}

		c.Set("claims", &claims.TokenClaims)
		c.Set("actor", claims.TokenClaims.Actor())
		c.Next()
	}
}

// RequireAdmin ensures the resolved actor has admin privileges.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok || !actor.IsAdmin {
			errorResponse(c, domain.NewError(domain.ErrForbidden, "administrator privileges required", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (domain.Actor, bool) {
	v, exists := c.Get("actor")
	if !exists {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

// RequestIDMiddleware generates and adds a request ID to the context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Header("X-Request-Id", requestID)
		c.Set("request_id", requestID)
		ctx := context.WithValue(c.Request.Context(), requestIDKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type requestIDKey struct{}

// errorResponse sends a standardized error response.
func errorResponse(c *gin.Context, derr *domain.Error) {
	status := derr.ToHTTPStatus()
	if derr.RetryAfter > 0 {
		c.Header("Retry-After", fmt.Sprintf("%d", derr.RetryAfter))
	}
	c.JSON(status, derr)
}
