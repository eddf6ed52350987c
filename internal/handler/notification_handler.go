package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/middleware"
	"github.com/noah-isme/officehub-api/internal/service"
	"github.com/noah-isme/officehub-api/internal/utils"
)

// NotificationStreamer attaches a listener to a user's private realtime channel.
type NotificationStreamer interface {
	Subscribe(userID uint) (<-chan dto.RealtimeEvent, func())
}

// NotificationHandler manages SSE notification streams and CRUD operations.
type NotificationHandler struct {
	service     service.NotificationService
	streamer    NotificationStreamer
	permissions middleware.PermissionChecker
	logger      zerolog.Logger
	keepAlive   time.Duration
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, streamer NotificationStreamer, permissions middleware.PermissionChecker, logger zerolog.Logger, keepAlive time.Duration) *NotificationHandler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &NotificationHandler{
		service:     service,
		streamer:    streamer,
		permissions: permissions,
		logger:      logger.With().Str("component", "notification_handler").Logger(),
		keepAlive:   keepAlive,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", middleware.RequirePermission(h.permissions, "notifications.create"), h.create)
	router.Get("/stream", h.stream)
	router.Post("/read-all", h.markAllRead)
	router.Patch("/:id/read", h.markRead)

	sweep := router.Group("/sweep", middleware.RequirePermission(h.permissions, "notifications.sweep"))
	sweep.Post("/overdue", h.sweepOverdue)
	sweep.Post("/upcoming", h.sweepUpcoming)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}

	unreadOnly := strings.EqualFold(strings.TrimSpace(c.Query("unread")), "true")
	notifications, err := h.service.ListForUser(requestContext(c), userID, unreadOnly)
	if err != nil {
		return respondError(c, h.logger, err, "list notifications")
	}

	return utils.SendSuccess(c, "notifications", notifications)
}

func (h *NotificationHandler) create(c *fiber.Ctx) error {
	var payload dto.NotificationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid request body")
	}

	notification, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "create notification")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "notification created", notification)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid notification id")
	}

	notification, err := h.service.MarkRead(requestContext(c), id, userID)
	if err != nil {
		return respondError(c, h.logger, err, "mark notification read")
	}

	return utils.SendSuccess(c, "notification updated", notification)
}

func (h *NotificationHandler) markAllRead(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		return respondError(c, h.logger, err, "mark all notifications read")
	}

	return utils.SendSuccess(c, "notifications updated", dto.MarkAllReadResponse{Updated: updated})
}

func (h *NotificationHandler) sweepOverdue(c *fiber.Ctx) error {
	created, err := h.service.ScanOverdue(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "overdue sweep")
	}
	return utils.SendSuccess(c, "overdue sweep finished", dto.SweepResponse{Created: created})
}

func (h *NotificationHandler) sweepUpcoming(c *fiber.Ctx) error {
	created, err := h.service.ScanUpcoming(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "upcoming sweep")
	}
	return utils.SendSuccess(c, "upcoming sweep finished", dto.SweepResponse{Created: created})
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	if h.streamer == nil {
		return utils.SendErrorKind(c, fiber.StatusServiceUnavailable, "unavailable", "realtime stream disabled")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	events, cleanup := h.streamer.Subscribe(userID)
	keepAlive := h.keepAlive
	logger := *requestLogger(h.logger, c)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cleanup()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		if err := writeKeepAlive(w); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Notification == nil {
					continue
				}
				if err := writeNotificationEvent(w, event.Notification); err != nil {
					logger.Debug().Err(err).Msg("failed to write notification event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					logger.Debug().Err(err).Msg("notification stream closed")
					return
				}
			}
		}
	})

	return nil
}

func writeNotificationEvent(w *bufio.Writer, notification *dto.NotificationResponse) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: notification\nid: %d\n", notification.ID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
