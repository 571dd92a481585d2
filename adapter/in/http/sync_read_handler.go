package http

import (
	"github.com/gofiber/fiber/v2"

	"mailsync_server/core/port/in"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/response"
)

// =============================================================================
// Read Handler - mirrored thread/message access
// =============================================================================

// ReadHandler serves the mirrored mailbox rows.
type ReadHandler struct {
	syncService in.MailSyncService
	bodies      out.BodyStore
}

// NewReadHandler creates the handler. bodies may be nil; message responses
// then carry only the inline plain-text body.
func NewReadHandler(syncService in.MailSyncService, bodies out.BodyStore) *ReadHandler {
	return &ReadHandler{syncService: syncService, bodies: bodies}
}

func (h *ReadHandler) Register(router fiber.Router) {
	threads := router.Group("/threads")
	threads.Get("/", h.ListThreads)
	threads.Get("/:id", h.GetThread)
	threads.Get("/:id/messages", h.ListThreadMessages)

	messages := router.Group("/messages")
	messages.Get("/:id", h.GetMessage)
}

func (h *ReadHandler) ListThreads(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)

	threads, total, err := h.syncService.ListThreads(c.Context(), userID, limit, offset)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OKWithMeta(c, threads, &response.Meta{
		Total:    total,
		PageSize: limit,
		HasMore:  offset+len(threads) < total,
	})
}

func (h *ReadHandler) GetThread(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	threadID, err := parseID(c.Params("id"))
	if err != nil {
		return response.AppError(c, err)
	}

	thread, err := h.syncService.GetThread(c.Context(), userID, threadID)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, thread)
}

func (h *ReadHandler) ListThreadMessages(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	threadID, err := parseID(c.Params("id"))
	if err != nil {
		return response.AppError(c, err)
	}

	messages, err := h.syncService.ListThreadMessages(c.Context(), userID, threadID)
	if err != nil {
		return response.AppError(c, err)
	}
	return response.OK(c, messages)
}

// messageResponse wraps a message with its externally stored HTML body.
type messageResponse struct {
	Message  interface{} `json:"message"`
	BodyHTML string      `json:"body_html,omitempty"`
}

func (h *ReadHandler) GetMessage(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	messageID, err := parseID(c.Params("id"))
	if err != nil {
		return response.AppError(c, err)
	}

	msg, err := h.syncService.GetMessage(c.Context(), userID, messageID)
	if err != nil {
		return response.AppError(c, err)
	}

	resp := messageResponse{Message: msg}
	if msg.BodyHTMLKey != "" && h.bodies != nil {
		// Blob lookup failure degrades to text-only rather than failing the read.
		if html, err := h.bodies.Get(c.Context(), msg.BodyHTMLKey); err == nil {
			resp.BodyHTML = html
		}
	}
	return response.OK(c, resp)
}
