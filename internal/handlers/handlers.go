package handlers

import (
	"net/http"
	"strconv"

	"github.com/01moynul/snaplist/internal/auth"
	"github.com/01moynul/snaplist/internal/config"
	"github.com/01moynul/snaplist/internal/credits"
	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/generation"
	"github.com/01moynul/snaplist/internal/middleware"
	"github.com/01moynul/snaplist/internal/promo"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers holds all dependencies for our handlers.
type Handlers struct {
	DB         *database.DB
	Ledger     *credits.Ledger
	Generation *generation.Service
	Promo      *promo.Service
	Tokens     *auth.TokenIssuer
	Config     config.Config
	Log        *zap.Logger
}

// accountID reads the ID AuthMiddleware put in the context. It writes a 401
// and returns false when it is missing.
func accountID(c *gin.Context) (int64, bool) {
	id, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return id, ok
}

// pathID parses the :id route parameter, writing a 400 when it is not a positive integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		return 0
	}
	return limit
}

// internalError logs err with the request and answers 500 with msg.
func (h *Handlers) internalError(c *gin.Context, msg string, err error) {
	_ = c.Error(err)
	h.Log.Error(msg, zap.String("route", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
