package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/audit"
	"github.com/kasuganosora/battleplanner/game/planner"
	"github.com/kasuganosora/battleplanner/scheduler"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by the AdminIPs and AdminKey middleware.
type AdminHandler struct {
	mgr    *planner.Manager
	sched  *scheduler.Scheduler
	audit  *audit.Service
	idle   time.Duration
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. idle is the default sweep cutoff.
func NewAdminHandler(mgr *planner.Manager, sched *scheduler.Scheduler, auditSvc *audit.Service, idle time.Duration, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{mgr: mgr, sched: sched, audit: auditSvc, idle: idle, logger: logger}
}

// Register mounts the admin routes on g.
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	g.GET("/metrics", h.Metrics)
	g.GET("/sessions", h.ListSessions)
	g.DELETE("/sessions/:id", h.CloseSession)
	g.POST("/sweep", h.Sweep)
	g.GET("/scheduler", h.ListSchedulerTasks)
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	resp := gin.H{
		"sessions":        h.mgr.Len(),
		"scheduler_tasks": h.tasks(),
	}
	if h.audit != nil {
		resp["audit_dropped"] = h.audit.Dropped()
	}
	c.JSON(http.StatusOK, resp)
}

// ListSessions returns a snapshot of the sessions in memory.
// GET /api/admin/sessions
func (h *AdminHandler) ListSessions(c *gin.Context) {
	sessions := h.mgr.List()
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// CloseSession forcibly ends a session.
// DELETE /api/admin/sessions/:id
func (h *AdminHandler) CloseSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.mgr.Close(c.Request.Context(), id); err != nil {
		c.JSON(status(err), gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("admin closed session", zap.String("session_id", id))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Sweep evicts idle sessions now.
// POST /api/admin/sweep
func (h *AdminHandler) Sweep(c *gin.Context) {
	var req struct {
		Idle string `json:"idle"`
	}
	_ = c.ShouldBindJSON(&req)

	idle := h.idle
	if req.Idle != "" {
		d, err := time.ParseDuration(req.Idle)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid idle duration"})
			return
		}
		idle = d
	}
	evicted := h.mgr.Sweep(c.Request.Context(), idle)
	h.logger.Info("admin sweep", zap.Int("evicted", evicted), zap.Duration("idle", idle))
	c.JSON(http.StatusOK, gin.H{"evicted": evicted, "remaining": h.mgr.Len()})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.tasks()})
}

func (h *AdminHandler) tasks() []string {
	if h.sched == nil {
		return []string{}
	}
	return h.sched.ListTickers()
}
