package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"billiard-pos-backend/config"
	"billiard-pos-backend/internal/mw"
	"billiard-pos-backend/internal/rental"
	"billiard-pos-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, rentals *rental.Service, webpushOptions *webpush.Options, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, rentals, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/tables", caching, handler.GetTables)
		api.POST("/tables", handler.CreateTable)
		api.PATCH("/tables/:id", handler.UpdateTable)
		api.DELETE("/tables/:id", handler.DeleteTable)

		api.POST("/tables/:id/start", handler.StartRental)
		api.POST("/tables/:id/topup", handler.TopUpRental)
		api.POST("/tables/:id/stop", handler.StopRental)
		api.POST("/tables/:id/move", handler.MoveRental)

		api.GET("/history", caching, handler.GetHistory)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
