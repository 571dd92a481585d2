package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"mailsync_server/core/port/in"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// Webhook Handler - Gmail Pub/Sub push
// =============================================================================

const (
	// IdempotencyTTL bounds how long a (mailbox, cursor) pair is remembered.
	IdempotencyTTL = 5 * time.Minute
	// SyncLockTTL bounds one webhook-triggered sync.
	SyncLockTTL = 2 * time.Minute
)

// WebhookMetrics counts webhook outcomes.
type WebhookMetrics struct {
	Processed  int64 `json:"processed"`
	Duplicates int64 `json:"duplicates"`
	Errors     int64 `json:"errors"`
	Locked     int64 `json:"locked"`
}

// WebhookHandler receives Gmail Pub/Sub push notifications. Every response is
// 200: a non-2xx makes Pub/Sub redeliver, and a broken notification will not
// get better on retry.
type WebhookHandler struct {
	syncService in.MailSyncService
	redis       *redis.Client
	metrics     WebhookMetrics
}

// NewWebhookHandler creates the handler. redis may be nil; idempotency and
// lock checks are then skipped.
func NewWebhookHandler(syncService in.MailSyncService, redisClient *redis.Client) *WebhookHandler {
	return &WebhookHandler{
		syncService: syncService,
		redis:       redisClient,
	}
}

func (h *WebhookHandler) Register(app *fiber.App) {
	app.Post("/webhooks/gmail", h.GmailWebhook)
	app.Post("/api/v1/webhooks/gmail", h.GmailWebhook)
}

// GetMetrics returns a snapshot of the webhook counters.
func (h *WebhookHandler) GetMetrics() WebhookMetrics {
	return WebhookMetrics{
		Processed:  atomic.LoadInt64(&h.metrics.Processed),
		Duplicates: atomic.LoadInt64(&h.metrics.Duplicates),
		Errors:     atomic.LoadInt64(&h.metrics.Errors),
		Locked:     atomic.LoadInt64(&h.metrics.Locked),
	}
}

// gmailPushNotification is the Pub/Sub push envelope.
type gmailPushNotification struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gmailNotificationData is the decoded payload inside the envelope.
type gmailNotificationData struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

func (h *WebhookHandler) GmailWebhook(c *fiber.Ctx) error {
	var notification gmailPushNotification
	if err := c.BodyParser(&notification); err != nil {
		logger.WithError(err).Warn("[GmailWebhook] failed to parse notification")
		return c.SendStatus(fiber.StatusOK)
	}

	data, err := base64.StdEncoding.DecodeString(notification.Message.Data)
	if err != nil {
		logger.WithError(err).Warn("[GmailWebhook] failed to decode data")
		return c.SendStatus(fiber.StatusOK)
	}

	var payload gmailNotificationData
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.WithError(err).Warn("[GmailWebhook] failed to unmarshal data")
		return c.SendStatus(fiber.StatusOK)
	}
	if payload.EmailAddress == "" {
		logger.Warn("[GmailWebhook] notification without mailbox address")
		return c.SendStatus(fiber.StatusOK)
	}

	logger.Info("[GmailWebhook] received: email=%s, historyId=%d",
		payload.EmailAddress, payload.HistoryID)

	ctx := c.Context()

	if h.isDuplicate(ctx, payload.EmailAddress, payload.HistoryID) {
		logger.Debug("[GmailWebhook] duplicate skipped: email=%s, historyId=%d",
			payload.EmailAddress, payload.HistoryID)
		return c.SendStatus(fiber.StatusOK)
	}

	if !h.acquireSyncLock(ctx, payload.EmailAddress) {
		// A sync for this mailbox is already in flight; the idempotency key
		// stays set so the duplicate is not reprocessed when Pub/Sub re-posts.
		atomic.AddInt64(&h.metrics.Locked, 1)
		logger.Info("[GmailWebhook] lock busy, skipping: email=%s", payload.EmailAddress)
		return c.SendStatus(fiber.StatusOK)
	}

	atomic.AddInt64(&h.metrics.Processed, 1)
	h.dispatch(payload.EmailAddress, payload.HistoryID)

	return c.SendStatus(fiber.StatusOK)
}

// dispatch runs the sync detached: the push has already been acked.
func (h *WebhookHandler) dispatch(emailAddress string, historyID uint64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), SyncLockTTL)
		defer cancel()
		defer h.releaseSyncLock(context.Background(), emailAddress)

		if err := h.syncService.HandlePush(ctx, emailAddress, historyID); err != nil {
			atomic.AddInt64(&h.metrics.Errors, 1)
			logger.WithError(err).Error("[GmailWebhook] push sync failed: email=%s", emailAddress)
			return
		}
		logger.Info("[GmailWebhook] push sync completed: email=%s", emailAddress)
	}()
}

// =============================================================================
// Redis idempotency and locking
// =============================================================================

func (h *WebhookHandler) idempotencyKey(emailAddress string, historyID uint64) string {
	return fmt.Sprintf("webhook:idempotent:%s:%d", emailAddress, historyID)
}

func (h *WebhookHandler) syncLockKey(emailAddress string) string {
	return fmt.Sprintf("webhook:synclock:%s", emailAddress)
}

func (h *WebhookHandler) isDuplicate(ctx context.Context, emailAddress string, historyID uint64) bool {
	if h.redis == nil {
		return false
	}
	ok, err := h.redis.SetNX(ctx, h.idempotencyKey(emailAddress, historyID), "1", IdempotencyTTL).Result()
	if err != nil {
		// Redis trouble must not drop notifications; treat as first delivery.
		return false
	}
	if !ok {
		atomic.AddInt64(&h.metrics.Duplicates, 1)
		return true
	}
	return false
}

func (h *WebhookHandler) acquireSyncLock(ctx context.Context, emailAddress string) bool {
	if h.redis == nil {
		return true
	}
	ok, err := h.redis.SetNX(ctx, h.syncLockKey(emailAddress), "1", SyncLockTTL).Result()
	return err != nil || ok
}

func (h *WebhookHandler) releaseSyncLock(ctx context.Context, emailAddress string) {
	if h.redis == nil {
		return
	}
	_ = h.redis.Del(ctx, h.syncLockKey(emailAddress))
}
