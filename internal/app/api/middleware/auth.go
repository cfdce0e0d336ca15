package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/response"
)

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the current user from a Bearer token (or the
// session cookie the storefront sets) into the "user_id"/"role" context keys.
// Resolution is optional here: handlers decide whether anonymous is
// acceptable for their route.
func AuthMiddleware(cfg *cfgpkg.Config) gin.HandlerFunc {
	secret := []byte(cfg.Auth.JWTSecret)
	return func(c *gin.Context) {
		token := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else if cookie, err := c.Cookie("session"); err == nil {
			token = cookie
		}
		if token == "" {
			c.Next()
			return
		}

		var claims sessionClaims
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !parsed.Valid || claims.Subject == "" {
			c.Next()
			return
		}

		c.Set("user_id", claims.Subject)
		c.Set("role", claims.Role)
		ctx := context.WithValue(c.Request.Context(), "user_id", claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user id, empty when anonymous.
func CurrentUserID(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequireUser aborts anonymous requests with an auth-required response.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.ErrorT[any](response.APIResponseCodeAuthRequired, nil))
			return
		}
		c.Next()
	}
}

// RequireAdmin aborts requests whose session does not carry the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		if role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden,
				response.ErrorT[any](response.APIResponseCodeAuthRequired, nil))
			return
		}
		c.Next()
	}
}
