package livehttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"optrix/internal/risk"
	"optrix/internal/store"
)

// Router exposes the read-only query endpoints.
type Router struct {
	Store   store.Store
	Monitor *risk.Monitor
}

// Register mounts the API routes on the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/positions", r.handlePositions)
	group.GET("/trades", r.handleTrades)
	group.GET("/diagnostics", r.handleDiagnostics)
}

func (r *Router) handleStatus(c *gin.Context) {
	if r.Monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk monitor not running"})
		return
	}
	c.JSON(http.StatusOK, r.Monitor.Status())
}

func (r *Router) handlePositions(c *gin.Context) {
	positions, err := r.Store.ListOpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (r *Router) handleTrades(c *gin.Context) {
	day := c.Query("day")
	if day == "" {
		day = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
		return
	}
	trades, err := r.Store.TradesForDay(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "trades": trades})
}

func (r *Router) handleDiagnostics(c *gin.Context) {
	segment := c.Query("segment")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}
	recs, err := r.Store.RecentDiagnostics(c.Request.Context(), segment, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"diagnostics": recs})
}
