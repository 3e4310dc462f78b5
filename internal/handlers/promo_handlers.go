package handlers

import (
	"net/http"

	"github.com/01moynul/snaplist/internal/promo"
	"github.com/gin-gonic/gin"
)

type RedeemInput struct {
	Code string `json:"code" binding:"required"`
}

var redemptionResponses = map[promo.Reason]struct {
	status  int
	message string
}{
	promo.NotFound:        {http.StatusNotFound, "Promo code not found"},
	promo.Inactive:        {http.StatusGone, "This promo code is no longer active"},
	promo.LimitReached:    {http.StatusConflict, "This promo code has reached its usage limit"},
	promo.AlreadyRedeemed: {http.StatusConflict, "You have already redeemed this promo code"},
}

// RedeemPromo applies a promo code to the caller's account.
// Route: POST /v1/promo/redeem
func (h *Handlers) RedeemPromo(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	var input RedeemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.Promo.Redeem(c.Request.Context(), id, input.Code)
	if err != nil {
		h.internalError(c, "Failed to redeem promo code", err)
		return
	}

	if !r.OK {
		resp, known := redemptionResponses[r.Reason]
		if !known {
			resp.status, resp.message = http.StatusBadRequest, "Promo code could not be redeemed"
		}
		c.JSON(resp.status, gin.H{"error": resp.message, "reason": r.Reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Promo code redeemed",
		"creditsGranted": r.CreditsGranted,
	})
}
