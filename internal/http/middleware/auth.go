// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. Accounts are managed by an external
// identity provider; the backend only needs the numeric user id, carried
// either as the subject of an HS256 bearer token or, in development setups,
// as a plain X-User-ID header.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/campus-market-backend/internal/utils"
)

const (
	// HeaderUserID carries the caller id when AllowHeader is enabled.
	HeaderUserID = "X-User-ID"

	ctxKeyUserID = "userID"
)

var errBadSubject = errors.New("token subject is not a user id")

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Secret verifies HS256 bearer tokens. Empty disables token auth.
	Secret string
	// AllowHeader trusts X-User-ID. Never enable on a public listener.
	AllowHeader bool
}

// Authenticate resolves the caller id and stores it in the Gin context.
// Requests without credentials pass through anonymously so public routes keep
// working; presented but invalid credentials are rejected with 401.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("Authorization"); raw != "" && opts.Secret != "" {
			id, err := userFromBearer(raw, opts.Secret)
			if err != nil {
				LoggerFrom(c).Debug().Err(err).Msg("bearer token rejected")
				abortUnauthorized(c, "invalid bearer token")
				return
			}
			setUser(c, id)
			c.Next()
			return
		}

		if opts.AllowHeader {
			if raw := c.GetHeader(HeaderUserID); raw != "" {
				id, ok := utils.ParseID(raw)
				if !ok {
					abortUnauthorized(c, "invalid "+HeaderUserID)
					return
				}
				setUser(c, id)
			}
		}
		c.Next()
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			abortUnauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller id, if any.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id > 0
}

func setUser(c *gin.Context, id uint) {
	c.Set(ctxKeyUserID, id)
	lg := LoggerFrom(c).With().Uint("user_id", id).Logger()
	c.Set(ctxKeyLogger, &lg)
}

func userFromBearer(header, secret string) (uint, error) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return 0, errors.New("authorization header is not a bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(tok), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}

	id, ok := utils.ParseID(claims.Subject)
	if !ok {
		return 0, errBadSubject
	}
	return id, nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": asString(rid),
		"code":       "unauthorized",
		"message":    msg,
	})
}
