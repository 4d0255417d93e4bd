package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/balance-engine/internal/engine"
)

// HealthChecker reports whether the repository is reachable. Satisfied by
// *internal/db.Store.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// APIHandler wires the HTTP surface to the MessageProcessor and live
// audit stream (SPEC_FULL.md §4.9).
type APIHandler struct {
	processor *engine.MessageProcessor
	wsHub     *Hub
	dbHealth  HealthChecker
	gameCount int
}

// SetupRouter builds the gin.Engine exposing the ingestion, health, and
// live-stream endpoints. dbHealth and gameCount feed /api/v1/health; either
// may be left zero-valued if unavailable.
func SetupRouter(processor *engine.MessageProcessor, wsHub *Hub, dbHealth HealthChecker, gameCount int) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var.
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{processor: processor, wsHub: wsHub, dbHealth: dbHealth, gameCount: gameCount}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// Ingestion is the only write path; rate-limit it per IP to absorb a
	// misbehaving relay without taking down the engine for everyone else.
	auth.Use(NewRateLimiter(120, 20).Middleware())
	{
		auth.POST("/messages", handler.handleIngestMessage)
	}

	return r
}

// handleIngestMessage implements POST /api/v1/messages (SPEC_FULL.md §4.9):
// classify, parse, and apply a single raw chat message, returning the
// status code that reflects how far the message got before anything went
// wrong.
func (h *APIHandler) handleIngestMessage(c *gin.Context) {
	var req struct {
		Text      string `json:"text" binding:"required"`
		Timestamp string `json:"timestamp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "timestamp must be RFC3339: " + err.Error()})
		return
	}

	err = h.processor.Process(c.Request.Context(), req.Text, ts)

	switch {
	case err == nil, errors.Is(err, engine.ErrAlreadyHandled):
		c.JSON(http.StatusOK, gin.H{"status": "processed"})

	case errors.Is(err, engine.ErrParseFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})

	case errors.Is(err, engine.ErrUnknownGame):
		c.JSON(http.StatusFailedDependency, gin.H{"error": err.Error()})

	case errors.Is(err, engine.ErrCancelled):
		c.JSON(499, gin.H{"error": err.Error()})

	case errors.Is(err, engine.ErrStorageFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// handleHealth reports engine status for service discovery and load balancers.
func (h *APIHandler) handleHealth(c *gin.Context) {
	dbConnected := false
	if h.dbHealth != nil {
		dbConnected = h.dbHealth.Ping(c.Request.Context()) == nil
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "operational",
		"engine":          "balance engine",
		"dbConnected":     dbConnected,
		"configuredGames": h.gameCount,
	})
}
