package handler

import (
	"mime"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/internal/service"
	"github.com/noah-isme/officehub-api/internal/utils"
)

// AttachmentHandler streams stored attachments back to room members.
type AttachmentHandler struct {
	attachments service.AttachmentService
	logger      zerolog.Logger
}

// NewAttachmentHandler constructs an attachment handler.
func NewAttachmentHandler(attachments service.AttachmentService, logger zerolog.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		attachments: attachments,
		logger:      logger.With().Str("component", "attachment_handler").Logger(),
	}
}

// Register binds attachment routes.
func (h *AttachmentHandler) Register(router fiber.Router) {
	router.Get("/:id", h.download)
}

func (h *AttachmentHandler) download(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	attachmentID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid attachment id")
	}

	download, err := h.attachments.Open(requestContext(c), attachmentID, userID)
	if err != nil {
		return respondError(c, h.logger, err, "download attachment")
	}

	c.Set(fiber.HeaderContentType, download.MimeType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": download.Name}))
	c.Set("X-Content-Type-Options", "nosniff")

	size := -1
	if download.Size > 0 {
		size = int(download.Size)
	}
	// The response body takes ownership of the stream and closes it once written.
	return c.Status(fiber.StatusOK).SendStream(download.Body, size)
}
