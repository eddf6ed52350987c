package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/middleware"
	"github.com/noah-isme/officehub-api/internal/observability"
	"github.com/noah-isme/officehub-api/internal/service"
	"github.com/noah-isme/officehub-api/internal/utils"
)

const maxFilesPerMessage = 10

// MessageBroadcaster relays persisted room activity to live sessions.
type MessageBroadcaster interface {
	BroadcastMessage(ctx context.Context, message dto.ChatMessageResponse)
	BroadcastRead(ctx context.Context, roomID, readerID uint, count int64)
}

// MessageHandler exposes room history, sending and read receipts over HTTP.
type MessageHandler struct {
	messages    service.MessageService
	attachments service.AttachmentService
	broadcaster MessageBroadcaster
	logger      zerolog.Logger
}

// NewMessageHandler constructs a message handler.
func NewMessageHandler(messages service.MessageService, attachments service.AttachmentService, broadcaster MessageBroadcaster, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messages:    messages,
		attachments: attachments,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "message_handler").Logger(),
	}
}

// Register binds message routes under the rooms group.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Get("/:id/messages", h.list)
	router.Post("/:id/messages", middleware.RateLimit("chat_send", 20, 10*time.Second), h.send)
	router.Post("/:id/read", h.markRead)
}

func (h *MessageHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid room id")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid offset")
	}

	query := dto.MessageListQuery{Limit: limit, Offset: offset}
	messages, err := h.messages.List(requestContext(c), roomID, userID, query)
	if err != nil {
		return respondError(c, h.logger, err, "list messages")
	}

	return utils.OK(c, messages, "messages retrieved", fiber.Map{"limit": limit, "offset": offset, "count": len(messages)})
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid room id")
	}

	ctx := requestContext(c)

	var (
		payload dto.SendMessageRequest
		refs    []service.AttachmentRef
	)

	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		payload, refs, err = h.readMultipart(ctx, c, userID)
		if err != nil {
			return respondError(c, h.logger, err, "accept attachments")
		}
	} else if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid request body")
	}

	message, err := h.messages.Send(ctx, roomID, userID, payload, refs)
	if err != nil {
		h.attachments.Discard(ctx, refs)
		return respondError(c, h.logger, err, "send message")
	}

	observability.ChatMessages().WithLabelValues("http").Inc()
	if h.broadcaster != nil {
		h.broadcaster.BroadcastMessage(ctx, message)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

// readMultipart accepts every file part into storage. Already stored parts are discarded if a later one fails.
func (h *MessageHandler) readMultipart(ctx context.Context, c *fiber.Ctx, userID uint) (dto.SendMessageRequest, []service.AttachmentRef, error) {
	var payload dto.SendMessageRequest

	form, err := c.MultipartForm()
	if err != nil {
		return payload, nil, validationFailure("invalid multipart body")
	}

	if values := form.Value["text"]; len(values) > 0 {
		payload.Text = values[0]
	}
	if values := form.Value["receiver_id"]; len(values) > 0 && strings.TrimSpace(values[0]) != "" {
		parsed, err := strconv.ParseUint(strings.TrimSpace(values[0]), 10, 64)
		if err != nil {
			return payload, nil, validationFailure("invalid receiver_id")
		}
		receiver := uint(parsed)
		payload.ReceiverID = &receiver
	}

	files := form.File["files"]
	if len(files) > maxFilesPerMessage {
		return payload, nil, validationFailure("too many files")
	}

	refs := make([]service.AttachmentRef, 0, len(files))
	for _, fh := range files {
		file, err := fh.Open()
		if err != nil {
			h.attachments.Discard(ctx, refs)
			return payload, nil, err
		}

		ref, err := h.attachments.Accept(ctx, service.Upload{
			Reader:     file,
			Name:       fh.Filename,
			MimeType:   fh.Header.Get(fiber.HeaderContentType),
			Size:       fh.Size,
			UploaderID: userID,
		})
		_ = file.Close()
		if err != nil {
			h.attachments.Discard(ctx, refs)
			return payload, nil, err
		}
		refs = append(refs, ref)
	}

	return payload, refs, nil
}

func (h *MessageHandler) markRead(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid room id")
	}

	ctx := requestContext(c)
	count, err := h.messages.MarkRead(ctx, roomID, userID)
	if err != nil {
		return respondError(c, h.logger, err, "mark read")
	}
	if h.broadcaster != nil {
		h.broadcaster.BroadcastRead(ctx, roomID, userID, count)
	}

	return utils.SendSuccess(c, "messages marked as read", fiber.Map{"updated": count})
}
