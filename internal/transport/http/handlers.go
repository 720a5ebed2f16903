package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultListLimit = 50

type handlers struct {
	cfg ServerConfig
}

func (h *handlers) register(g *gin.RouterGroup) {
	g.GET("/status", h.status)

	if h.cfg.Scheduler != nil {
		g.POST("/scheduler/pause", h.pause)
		g.POST("/scheduler/resume", h.resume)
		g.POST("/targets/:id/process", h.processTarget)
	}
	g.GET("/targets", h.listTargets)
	g.GET("/positions", h.listPositions)
	if h.cfg.Monitor != nil {
		g.POST("/positions/:id/close", h.closePosition)
		g.POST("/positions/close-all", h.closeAll)
	}
	g.GET("/executions", h.listExecutions)
	g.GET("/events", h.listEvents)
}

func (h *handlers) status(c *gin.Context) {
	resp := gin.H{
		"uptime": time.Since(h.cfg.StartedAt).Round(time.Second).String(),
	}
	if h.cfg.Scheduler != nil {
		resp["scheduler"] = h.cfg.Scheduler.Stats()
	}
	if h.cfg.BreakerState != nil {
		resp["circuit_breaker"] = h.cfg.BreakerState()
	}
	if h.cfg.Client != nil {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		resp["exchange_ok"] = h.cfg.Client.Ping(pingCtx) == nil
	}
	if open, err := h.cfg.Stores.Positions.ListOpen(c.Request.Context()); err == nil {
		resp["open_positions"] = len(open)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) pause(c *gin.Context) {
	h.cfg.Scheduler.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (h *handlers) resume(c *gin.Context) {
	h.cfg.Scheduler.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (h *handlers) processTarget(c *gin.Context) {
	disp, err := h.cfg.Scheduler.ProcessTarget(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disposition": int(disp)})
}

func (h *handlers) closePosition(c *gin.Context) {
	if err := h.cfg.Monitor.ClosePosition(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (h *handlers) closeAll(c *gin.Context) {
	closed, err := h.cfg.Monitor.CloseAllPositions(c.Request.Context())
	resp := gin.H{"closed": closed}
	if err != nil {
		resp["error"] = err.Error()
		c.JSON(http.StatusMultiStatus, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) listTargets(c *gin.Context) {
	items, err := h.cfg.Stores.Targets.ListRecent(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": items})
}

func (h *handlers) listPositions(c *gin.Context) {
	items, err := h.cfg.Stores.Positions.ListRecent(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": items})
}

func (h *handlers) listExecutions(c *gin.Context) {
	items, err := h.cfg.Stores.Executions.ListRecent(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": items})
}

func (h *handlers) listEvents(c *gin.Context) {
	items, err := h.cfg.Stores.Events.ListEvents(c.Request.Context(), c.Query("target_id"), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

func limitParam(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return defaultListLimit
	}
	return n
}
