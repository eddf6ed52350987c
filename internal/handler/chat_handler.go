package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/internal/middleware"
	"github.com/noah-isme/officehub-api/internal/service"
	"github.com/noah-isme/officehub-api/internal/utils"
)

const wsIdentityKey = "ws_identity"

// ChatHandler wires the websocket upgrade onto the realtime transport.
type ChatHandler struct {
	service  service.ChatService
	verifier middleware.TokenVerifier
	logger   zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, verifier middleware.TokenVerifier, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:  service,
		verifier: verifier,
		logger:   logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", h.upgrade)
	router.Get("/ws", websocket.New(h.handleConnection))
}

// upgrade checks an optional credential before the protocol switch. Without one the socket must
// authenticate with its first frame.
func (h *ChatHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token != "" {
		identity, err := h.verifier.Verify(requestContext(c), token)
		if err != nil {
			requestLogger(h.logger, c).Info().Err(err).Msg("chat upgrade rejected")
			return utils.SendErrorKind(c, fiber.StatusUnauthorized, "unauthenticated", "invalid or expired token")
		}
		c.Locals(wsIdentityKey, identity)
	}

	return c.Next()
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	correlation, _ := conn.Locals("correlation_id").(string)
	opts := service.ChatConnectionOptions{CorrelationID: correlation}
	if identity, ok := conn.Locals(wsIdentityKey).(middleware.Identity); ok {
		opts.Identity = &identity
	}

	h.logger.Debug().Str("correlation_id", opts.CorrelationID).Bool("preauthenticated", opts.Identity != nil).Msg("chat websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Debug().Str("correlation_id", opts.CorrelationID).Msg("chat websocket disconnected")
}
