package collector

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
)

// Config configures the dev collector.
type Config struct {
	// APIKey is the key clients must present in X-Api-Key.
	APIKey string
	// FailStatus, when non-zero, is returned for every batch instead of 200.
	// Used to exercise the SDK's backoff and disable paths locally.
	FailStatus int
}

// Handler is a local development collector: it validates credentials,
// transparently decompresses batches, and narrates what it received. It is
// a debugging sink, deliberately not a production ingest service.
type Handler struct {
	cfg    Config
	router *gin.Engine
	log    *zap.Logger
}

// NewHandler creates a collector handler.
func NewHandler(cfg Config, log *zap.Logger) *Handler {
	h := &Handler{
		cfg:    cfg,
		router: gin.Default(),
		log:    log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/events", h.receiveEvents)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// receiveEvents handles POST /events
func (h *Handler) receiveEvents(c *gin.Context) {
	if c.GetHeader("X-Api-Key") != h.cfg.APIKey {
		h.log.Warn("Rejected batch with invalid API key")
		c.JSON(http.StatusForbidden, gin.H{
			"error": "invalid_api_key",
		})
		return
	}

	if h.cfg.FailStatus != 0 {
		h.log.Info("Injecting failure response",
			zap.Int("status", h.cfg.FailStatus))
		c.JSON(h.cfg.FailStatus, gin.H{
			"error": "injected_failure",
		})
		return
	}

	body, err := h.readBody(c)
	if err != nil {
		h.log.Warn("Failed to read batch body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "malformed_body",
			"message": err.Error(),
		})
		return
	}

	var batch []domain.Portable
	if err := json.Unmarshal(body, &batch); err != nil {
		h.log.Warn("Failed to decode batch", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "malformed_batch",
			"message": err.Error(),
		})
		return
	}

	for _, p := range batch {
		h.log.Info("Event received",
			zap.String("id", p.ID),
			zap.String("category", p.Category),
			zap.String("severity", p.Severity),
			zap.String("message", p.Message),
			zap.String("session_id", p.SessionID))
	}

	h.log.Info("Batch received",
		zap.Int("event_count", len(batch)),
		zap.Bool("compressed", c.GetHeader("Content-Encoding") == "gzip"))

	c.JSON(http.StatusOK, gin.H{
		"received": len(batch),
	})
}

// readBody returns the request body, gunzipped when the client signalled
// compression via Content-Encoding.
func (h *Handler) readBody(c *gin.Context) ([]byte, error) {
	var reader io.Reader = c.Request.Body
	if c.GetHeader("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(c.Request.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	}
	return io.ReadAll(reader)
}
