package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"vending-fleet-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(d)

	// Rate limit: 10 requests per second with a burst of 5
	rateLimiter := mw.RateLimiter(rate.Limit(10), 5)

	// Cache: 30 second default expiration, cleaned up every 5 minutes
	cacheStore := cache.New(30*time.Second, 5*time.Minute)
	caching := mw.Cache(cacheStore, 30*time.Second)

	// Device-facing endpoints. Devices report heartbeats over either verb;
	// the scheduler hits /monitor.
	r.POST("/heartbeat", rateLimiter, handler.PostHeartbeat)
	r.GET("/heartbeat", rateLimiter, handler.PostHeartbeat)
	r.POST("/monitor", handler.PostMonitor)
	r.POST("/send-email", handler.PostSendEmail)
	r.GET("/status-check", rateLimiter, handler.GetStatusCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Operator API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/machines", handler.PostMachine)
		api.GET("/machines", caching, handler.GetMachines)
		api.GET("/machines/:machine_id", handler.GetMachine)
		api.DELETE("/machines/:machine_id", handler.DeleteMachine)
		api.DELETE("/test-machines", handler.DeleteTestMachines)

		api.GET("/alarms", handler.GetAlarms)
		api.POST("/alarms/:alarm_id/ack", handler.AckAlarm)
		api.POST("/alarms/:alarm_id/resolve", handler.ResolveAlarm)

		api.POST("/machines/:machine_id/commands", handler.PostCommand)
		api.GET("/machines/:machine_id/commands", handler.GetCommands)

		api.POST("/machines/:machine_id/cleanings", handler.PostCleaningLog)
		api.GET("/machines/:machine_id/cleanings", handler.GetCleaningLogs)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
