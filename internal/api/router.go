// Package api exposes the inventory and recovery actions over HTTP.
//
// Routes:
//
//	POST /inventory/use-shield   spend a shield on one day
//	POST /inventory/use-freeze   freeze a range of days
//	POST /inventory/use-revive   revive a broken streak
//	GET  /inventory              counts and the last usage entries
//	GET  /inventory/settings     protection settings
//	PUT  /inventory/settings     update protection settings
//	GET  /habits/:id/stats       tracking summary for one habit
//	GET  /health                 liveness
//	GET  /metrics                Prometheus scrape endpoint
//
// Authentication is handled in front of this service; the caller's user id
// arrives in the X-User-ID header.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streakguard/internal/services"
)

const UserIDHeader = "X-User-ID"

type Handlers struct {
	services *services.ServiceManager
}

func NewHandlers(sm *services.ServiceManager) *Handlers {
	return &Handlers{services: sm}
}

// NewRouter builds the gin engine. gatherer may be nil to disable /metrics.
func NewRouter(sm *services.ServiceManager, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger())

	router.GET("/health", HealthCheck)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	RegisterRoutes(router, NewHandlers(sm))
	return router
}

func RegisterRoutes(router gin.IRouter, h *Handlers) {
	authed := router.Group("/", RequireUser())

	inventory := authed.Group("/inventory")
	inventory.GET("", h.GetInventory)
	inventory.POST("/use-shield", h.UseShield)
	inventory.POST("/use-freeze", h.UseFreeze)
	inventory.POST("/use-revive", h.UseRevive)
	inventory.GET("/settings", h.GetSettings)
	inventory.PUT("/settings", h.UpdateSettings)

	authed.GET("/habits/:id/stats", h.GetHabitStats)
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
