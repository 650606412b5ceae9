package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"promptaat/internal/domain/services"
	"promptaat/internal/metrics"

	"github.com/gin-gonic/gin"
)

// EventJournal remembers processed webhook event ids so at-least-once
// deliveries are handled once. A nil journal disables dedup; the upsert is
// idempotent either way.
type EventJournal interface {
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
}

// WebhookHandler adapts the webhook HTTP routes onto the sync core. The
// current and legacy routes share one code path and differ only in which
// signing secret verifies the event.
type WebhookHandler struct {
	verifier       *services.EventVerifier
	legacyVerifier *services.EventVerifier
	sync           *services.SyncService
	journal        EventJournal
	logger         *slog.Logger
}

func NewWebhookHandler(verifier, legacyVerifier *services.EventVerifier, sync *services.SyncService, journal EventJournal, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:       verifier,
		legacyVerifier: legacyVerifier,
		sync:           sync,
		journal:        journal,
		logger:         logger,
	}
}

func (h *WebhookHandler) Register(router *gin.Engine) {
	router.POST("/api/billing/webhook", h.HandleWebhook)
	router.POST("/webhook", h.HandleLegacyWebhook)
}

func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	h.handle(c, h.verifier)
}

func (h *WebhookHandler) HandleLegacyWebhook(c *gin.Context) {
	h.handle(c, h.legacyVerifier)
}

func (h *WebhookHandler) handle(c *gin.Context, verifier *services.EventVerifier) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	// Verification runs before any side effect so forged payloads never
	// reach the database.
	event, err := verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "rejected")
		h.logWarn("rejected webhook event", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook verification failed"})
		return
	}

	eventType := string(event.Type)

	if h.journal != nil {
		first, err := h.journal.MarkEventProcessed(c.Request.Context(), event.ID)
		if err != nil {
			// Dedup is best effort; the upsert tolerates replays.
			h.logWarn("event journal unavailable, processing anyway",
				"event_id", event.ID, "error", err)
		} else if !first {
			metrics.RecordWebhookEvent(eventType, "duplicate")
			h.logInfo("skipping already-processed event", "event_id", event.ID, "type", eventType)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	}

	if err := h.sync.HandleEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, services.ErrInvalidPayload) {
			metrics.RecordWebhookEvent(eventType, "rejected")
			h.logWarn("rejected unparseable event", "event_id", event.ID, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
			return
		}

		metrics.RecordWebhookEvent(eventType, "failed")
		h.logError("failed to process webhook event", err, "event_id", event.ID, "type", eventType)
		// 5xx makes the provider redeliver.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	metrics.RecordWebhookEvent(eventType, "processed")
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) logInfo(msg string, args ...interface{}) {
	if h.logger != nil {
		h.logger.Info(msg, args...)
	}
}

func (h *WebhookHandler) logWarn(msg string, args ...interface{}) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}

func (h *WebhookHandler) logError(msg string, err error, args ...interface{}) {
	if h.logger != nil {
		allArgs := append([]interface{}{"error", err}, args...)
		h.logger.Error(msg, allArgs...)
	}
}
