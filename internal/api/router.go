package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"dorm-laundry-backend/config"
	"dorm-laundry-backend/internal/mw"
	"dorm-laundry-backend/internal/state"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, store *state.Store, db *gorm.DB, webpushOptions *webpush.Options, logger *zap.Logger) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(store, db, webpushOptions, logger)

	rateLimiter := mw.RateLimit(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLMillis) * time.Millisecond
	cacheStore := cache.New(cacheTTL, 10*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/state", caching, handler.GetState)
		api.POST("/state", handler.PostState)

		api.GET("/waitlist/:type/position", handler.GetWaitlistPosition)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
