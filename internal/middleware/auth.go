package middleware

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/01moynul/snaplist/internal/auth"
	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/models"
	"github.com/gin-gonic/gin"
)

// Context keys set by the middleware in this package.
const (
	AccountIDKey = "accountID"
	RoleKey      = "role"
	RequestIDKey = "requestID"
)

// AuthMiddleware requires a valid Bearer token and stores the account ID
// in the context under AccountIDKey.
func AuthMiddleware(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Get Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format (must be Bearer)"})
			return
		}

		// 2. Validate token
		accountID, err := tokens.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(AccountIDKey, accountID)
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware. It reads the role from the
// database on each request so a demotion takes effect immediately.
func AdminMiddleware(db *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := AccountID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account ID not found in context"})
			return
		}

		var role string
		err := db.QueryRowContext(c.Request.Context(), "SELECT role FROM accounts WHERE id = ?", accountID).Scan(&role)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account not found"})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Database error checking role"})
			return
		}

		if role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied: admin role required"})
			return
		}

		c.Set(RoleKey, role)
		c.Next()
	}
}

// AccountID returns the authenticated account, if any.
func AccountID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(AccountIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
