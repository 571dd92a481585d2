package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"mailsync_server/core/port/in"
	"mailsync_server/pkg/response"
)

// =============================================================================
// Sync Handler - sync trigger endpoints
// =============================================================================

// SyncHandler exposes the sync strategies over HTTP.
type SyncHandler struct {
	syncService in.MailSyncService
}

func NewSyncHandler(syncService in.MailSyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

func (h *SyncHandler) Register(router fiber.Router) {
	sync := router.Group("/sync")
	sync.Post("/full", h.Full)
	sync.Post("/delta", h.Delta)
	sync.Post("/history", h.History)
	sync.Post("/paginated", h.Paginated)
	sync.Post("/all", h.AllUsers)
	sync.Post("/watch", h.Watch)
}

// Full triggers a paginated bulk sync for the caller.
func (h *SyncHandler) Full(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	maxPages := c.QueryInt("max_pages", 0)
	pageSize := c.QueryInt("page_size", 0)

	result, err := h.syncService.SyncFull(c.Context(), userID, maxPages, pageSize)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, result)
}

// Delta triggers a single-pass recent-message sync.
func (h *SyncHandler) Delta(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	maxMessages := c.QueryInt("max_messages", 0)

	result, err := h.syncService.SyncDelta(c.Context(), userID, maxMessages)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, result)
}

// History replays the upstream change log from the given cursor.
func (h *SyncHandler) History(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	cursor, err := strconv.ParseUint(c.Query("start_cursor"), 10, 64)
	if err != nil || cursor == 0 {
		return response.BadRequest(c, "start_cursor must be a positive integer")
	}

	result, err := h.syncService.SyncHistory(c.Context(), userID, cursor)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, result)
}

// Paginated syncs one page now and optionally continues in the background.
func (h *SyncHandler) Paginated(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	pageSize := c.QueryInt("page_size", 0)
	continueInBackground := c.QueryBool("continue", true)

	result, err := h.syncService.SyncPaginated(c.Context(), userID, pageSize, continueInBackground)
	if err != nil {
		return response.AppError(c, err)
	}
	if result.ContinuedInBackground {
		return response.Accepted(c, result)
	}
	return response.OK(c, result)
}

// Watch registers the push notification channel for the caller's mailbox.
func (h *SyncHandler) Watch(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	reg, err := h.syncService.StartWatch(c.Context(), userID)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, reg)
}

// AllUsers fans a full sync out over every connected account.
func (h *SyncHandler) AllUsers(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return err
	}

	totals, err := h.syncService.SyncAllUsers(c.Context())
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, totals)
}
