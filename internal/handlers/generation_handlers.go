package handlers

import (
	"errors"
	"net/http"

	"github.com/01moynul/snaplist/internal/generation"
	"github.com/01moynul/snaplist/internal/listing"
	"github.com/01moynul/snaplist/internal/models"
	"github.com/gin-gonic/gin"
)

var rejectionResponses = map[generation.Rejection]struct {
	status  int
	message string
}{
	generation.NoImages:            {http.StatusBadRequest, "Upload at least one image"},
	generation.TooManyImages:       {http.StatusBadRequest, "Too many images in one request"},
	generation.EmptyImage:          {http.StatusBadRequest, "One of the uploaded images is empty"},
	generation.AlreadyInProgress:   {http.StatusConflict, "A generation is already running for your account. Please wait for it to finish."},
	generation.InsufficientCredits: {http.StatusPaymentRequired, "You have no credits left. Redeem a promo code or buy more credits."},
}

// GenerateListing runs one credit-gated generation for the uploaded images.
// Route: POST /v1/listings/generate (multipart, field "images")
func (h *Handlers) GenerateListing(c *gin.Context) {
	// 1. --- Get Account ---
	id, ok := accountID(c)
	if !ok {
		return
	}

	// 2. --- Read Uploads ---
	maxImageBytes := h.Config.Upload.MaxImageBytes
	bodyLimit := maxImageBytes*int64(h.Config.Generation.MaxImages+1) + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)

	form, err := c.MultipartForm()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a multipart form with one or more 'images' files"})
		return
	}

	images, err := readImages(form.File["images"], maxImageBytes)
	if err != nil {
		switch {
		case errors.Is(err, errImageTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		case errors.Is(err, errUnsupportedType):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		default:
			h.internalError(c, "Failed to read uploaded images", err)
		}
		return
	}

	// 3. --- Run Generation ---
	out, err := h.Generation.RunGeneration(c.Request.Context(), id, images)
	if err != nil {
		h.internalError(c, "Generation could not be completed", err)
		return
	}

	// 4. --- Map Outcome ---
	if out.Rejected() {
		resp, known := rejectionResponses[out.Rejection]
		if !known {
			resp.status, resp.message = http.StatusBadRequest, "Request rejected"
		}
		c.JSON(resp.status, gin.H{"error": resp.message, "reason": out.Rejection})
		return
	}

	if out.Status == models.AttemptFailed {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "The listing service failed. Your credit has been returned.",
			"status":    out.Status,
			"attemptId": out.AttemptID,
			"refunded":  out.Refunded,
		})
		return
	}

	resp := gin.H{
		"status":      out.Status,
		"attemptId":   out.AttemptID,
		"listing":     out.Text,
		"fields":      listing.Parse(out.Text),
		"usageMetric": out.UsageMetric,
		"refunded":    out.Refunded,
	}
	if out.Status == models.AttemptDegraded {
		resp["message"] = "The listing was incomplete and has been filled in. Your credit has been returned."
	}
	c.JSON(http.StatusOK, resp)
}

// GetListingHistory lists the caller's generation attempts, newest first.
// Route: GET /v1/listings/history?limit=N
func (h *Handlers) GetListingHistory(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	attempts, err := h.Generation.History(c.Request.Context(), id, queryLimit(c))
	if err != nil {
		h.internalError(c, "Failed to load listing history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}
