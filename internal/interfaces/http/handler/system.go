package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/fleetbill/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// readyTimeout bounds the dependency checks of the readiness probe
const readyTimeout = 2 * time.Second

// Pinger checks that a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves liveness, readiness and build information
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	db        Pinger
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, db Pinger) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		db:        db,
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Uptime    string `json:"uptime"`
}

// RegisterProbes registers /health and /ready at the engine root
func (h *SystemHandler) RegisterProbes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
}

// RegisterRoutes registers the versioned system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/system/info", h.GetSystemInfo)
}

// Health reports that the process is serving
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the database is reachable
// GET /ready
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		_ = c.Error(err)
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeNotReady, "Database is not reachable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// GetSystemInfo returns build and runtime information
// GET /api/v1/system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}
