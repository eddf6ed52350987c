package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/service"
	"github.com/noah-isme/officehub-api/internal/utils"
)

// MemberEvictor drops a removed member's live sessions from a room.
type MemberEvictor interface {
	EvictMember(ctx context.Context, roomID, userID uint)
}

// RoomHandler exposes the room directory and membership management.
type RoomHandler struct {
	rooms   service.RoomService
	evictor MemberEvictor
	logger  zerolog.Logger
}

// NewRoomHandler constructs a room handler.
func NewRoomHandler(rooms service.RoomService, evictor MemberEvictor, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:   rooms,
		evictor: evictor,
		logger:  logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register binds room routes.
func (h *RoomHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Get("/:id/members", h.members)
	router.Post("/:id/members", h.addMembers)
	router.Delete("/:id/members/:userId", h.kick)
}

func (h *RoomHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}

	rooms, err := h.rooms.ListRoomsForUser(requestContext(c), userID)
	if err != nil {
		return respondError(c, h.logger, err, "list rooms")
	}
	return utils.SendSuccess(c, "rooms retrieved", rooms)
}

func (h *RoomHandler) create(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}

	var payload dto.CreateRoomRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid request body")
	}

	room, err := h.rooms.Create(requestContext(c), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "create room")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", room)
}

func (h *RoomHandler) get(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid room id")
	}

	room, err := h.rooms.GetRoomForUser(requestContext(c), roomID, userID)
	if err != nil {
		return respondError(c, h.logger, err, "get room")
	}
	return utils.SendSuccess(c, "room retrieved", room)
}

func (h *RoomHandler) members(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid room id")
	}

	members, err := h.rooms.ListMembers(requestContext(c), roomID, userID)
	if err != nil {
		return respondError(c, h.logger, err, "list members")
	}
	return utils.SendSuccess(c, "members retrieved", members)
}

func (h *RoomHandler) addMembers(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid room id")
	}

	var payload dto.AddMembersRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid request body")
	}

	ctx := requestContext(c)
	if err := h.rooms.AddMembers(ctx, roomID, userID, payload.UserIDs); err != nil {
		return respondError(c, h.logger, err, "add members")
	}

	members, err := h.rooms.ListMembers(ctx, roomID, userID)
	if err != nil {
		return respondError(c, h.logger, err, "list members")
	}
	return utils.SendSuccess(c, "members added", members)
}

func (h *RoomHandler) kick(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return unauthenticated(c)
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid room id")
	}
	targetID, err := parseIDParam(c, "userId")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "validation", "invalid user id")
	}

	ctx := requestContext(c)
	if err := h.rooms.KickMember(ctx, roomID, userID, targetID); err != nil {
		return respondError(c, h.logger, err, "kick member")
	}
	if h.evictor != nil {
		h.evictor.EvictMember(ctx, roomID, targetID)
	}

	return utils.SendSuccess(c, "member removed", nil)
}
