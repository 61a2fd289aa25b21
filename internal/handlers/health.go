package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	redisclient "github.com/leokovaski/linkfono-workspace-manager/internal/redis"
)

var startTime = time.Now()

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db    *gorm.DB
	redis *redisclient.Client
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, redis *redisclient.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Health reports liveness. Always 200 while the process is up.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "workspace-manager",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready reports readiness: the database must answer, Redis is reported but
// optional since the service degrades gracefully without it.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		checks["database"] = gin.H{"status": "unhealthy", "message": err.Error()}
		healthy = false
	} else {
		checks["database"] = gin.H{"status": "healthy"}
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()); err != nil {
			checks["redis"] = gin.H{"status": "unhealthy", "message": err.Error()}
		} else {
			checks["redis"] = gin.H{"status": "healthy"}
		}
	}

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "not_ready"
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
