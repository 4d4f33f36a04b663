package middleware

import (
	"net/http"
	"strings"

	"bookstore-api/internal/models"
	"bookstore-api/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

// AuthMiddleware validates the bearer JWT and attaches the resolved
// principal to the request context. Missing or invalid tokens are a 401
// before any core logic runs.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.ErrorJSON(c, http.StatusUnauthorized, "Missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.ErrorJSON(c, http.StatusUnauthorized, "Invalid authorization header")
			c.Abort()
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenInvalidClaims
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			response.ErrorJSON(c, http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.ErrorJSON(c, http.StatusUnauthorized, "Invalid token claims")
			c.Abort()
			return
		}

		principal, err := principalFromClaims(claims)
		if err != nil {
			response.ErrorJSON(c, http.StatusUnauthorized, "User identity not found in token")
			c.Abort()
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireAdmin rejects non-admin principals with 403. Must run after
// AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok || !principal.IsAdmin {
			response.ErrorJSON(c, http.StatusForbidden, "Admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// PrincipalFrom retrieves the authenticated principal from the request context
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	val, exists := c.Get(principalKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := val.(models.Principal)
	return principal, ok
}

func principalFromClaims(claims jwt.MapClaims) (models.Principal, error) {
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		if sub, _ := claims["sub"].(string); sub != "" {
			userID = sub
		}
	}
	if userID == "" {
		return models.Principal{}, jwt.ErrTokenInvalidClaims
	}

	email, _ := claims["email"].(string)
	isAdmin, _ := claims["is_admin"].(bool)

	return models.Principal{
		UserID:  userID,
		Email:   email,
		IsAdmin: isAdmin,
	}, nil
}
