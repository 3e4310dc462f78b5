package handlers

import (
	"errors"
	"net/http"

	"github.com/01moynul/snaplist/internal/credits"
	"github.com/01moynul/snaplist/internal/promo"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//
// --- Admin: Promo Codes ---
//

// CreatePromoCode is the handler for POST /v1/admin/promo-codes
func (h *Handlers) CreatePromoCode(c *gin.Context) {
	var input promo.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.Promo.Create(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, promo.ErrInvalidPromo):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Code must be non-empty, credits positive and maxUses positive when set"})
		case errors.Is(err, promo.ErrDuplicateCode):
			c.JSON(http.StatusConflict, gin.H{"error": "A promo code with this name already exists"})
		default:
			h.internalError(c, "Failed to create promo code", err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"promoCode": p})
}

// GetPromoCodes is the handler for GET /v1/admin/promo-codes
func (h *Handlers) GetPromoCodes(c *gin.Context) {
	codes, err := h.Promo.List(c.Request.Context())
	if err != nil {
		h.internalError(c, "Failed to load promo codes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promoCodes": codes})
}

type UpdatePromoInput struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// UpdatePromoCode is the handler for PATCH /v1/admin/promo-codes/:id
// It enables or disables a code.
func (h *Handlers) UpdatePromoCode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var input UpdatePromoInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Promo.SetActive(c.Request.Context(), id, *input.IsActive); err != nil {
		if errors.Is(err, promo.ErrPromoNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Promo code not found"})
			return
		}
		h.internalError(c, "Failed to update promo code", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Promo code updated", "isActive": *input.IsActive})
}

//
// --- Admin: Accounts ---
//

type GrantCreditsInput struct {
	Amount int    `json:"amount" binding:"required,gt=0"`
	Notes  string `json:"notes"`
}

// GrantCredits is the handler for POST /v1/admin/accounts/:id/grant
func (h *Handlers) GrantCredits(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var input GrantCreditsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}
	notes := input.Notes
	if notes == "" {
		notes = "admin grant"
	}

	if err := h.Ledger.Grant(c.Request.Context(), id, input.Amount, notes); err != nil {
		if errors.Is(err, credits.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		h.internalError(c, "Failed to grant credits", err)
		return
	}

	adminID, _ := accountID(c)
	h.Log.Info("credits granted", zap.Int64("admin_id", adminID), zap.Int64("account_id", id), zap.Int("amount", input.Amount))
	c.JSON(http.StatusOK, gin.H{"message": "Credits granted", "amount": input.Amount})
}

type SetExemptInput struct {
	Exempt *bool `json:"exempt" binding:"required"`
}

// SetAccountExempt is the handler for PATCH /v1/admin/accounts/:id/exempt
func (h *Handlers) SetAccountExempt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var input SetExemptInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Ledger.SetExempt(c.Request.Context(), id, *input.Exempt); err != nil {
		if errors.Is(err, credits.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		h.internalError(c, "Failed to update exemption", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Exemption updated", "exempt": *input.Exempt})
}
