package routes

import (
	"net/http"

	"github.com/01moynul/snaplist/internal/handlers"
	"github.com/01moynul/snaplist/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter wires every route. redeemLimiter throttles promo redemption per
// account; gatherer backs GET /metrics.
func SetupRouter(h *handlers.Handlers, redeemLimiter *middleware.AccountLimiter, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(h.Log))
	router.Use(middleware.CORSMiddleware(h.Config.CORS.AllowedOrigin))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		// --- Public ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})
		v1.POST("/register", h.Register)
		v1.POST("/login", h.Login)

		// --- Protected Routes (Login Required) ---
		authed := v1.Group("/")
		authed.Use(middleware.AuthMiddleware(h.Tokens))
		{
			authed.GET("/account/me", h.GetMe)
			authed.GET("/account/credits/history", h.GetCreditHistory)

			authed.POST("/listings/generate", h.GenerateListing)
			authed.GET("/listings/history", h.GetListingHistory)

			authed.POST("/promo/redeem", redeemLimiter.Middleware(), h.RedeemPromo)
		}

		// --- Admin Routes ---
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(h.Tokens), middleware.AdminMiddleware(h.DB))
		{
			admin.POST("/promo-codes", h.CreatePromoCode)
			admin.GET("/promo-codes", h.GetPromoCodes)
			admin.PATCH("/promo-codes/:id", h.UpdatePromoCode)

			admin.POST("/accounts/:id/grant", h.GrantCredits)
			admin.PATCH("/accounts/:id/exempt", h.SetAccountExempt)
		}
	}

	return router
}
