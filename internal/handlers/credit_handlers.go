package handlers

import (
	"errors"
	"net/http"

	"github.com/01moynul/snaplist/internal/credits"
	"github.com/gin-gonic/gin"
)

// GetMe returns the caller's account with its current balance.
// Route: GET /v1/account/me
func (h *Handlers) GetMe(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	acc, err := h.Ledger.Balance(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, credits.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		h.internalError(c, "Failed to load account", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": acc})
}

// GetCreditHistory returns the caller's credit journal, newest first.
// Route: GET /v1/account/credits/history?limit=N
func (h *Handlers) GetCreditHistory(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	history, err := h.Ledger.History(c.Request.Context(), id, queryLimit(c))
	if err != nil {
		h.internalError(c, "Failed to load credit history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": history})
}
