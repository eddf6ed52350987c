package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/models"
	"github.com/noah-isme/officehub-api/internal/repository"
)

// RoomService manages the room directory and its memberships.
type RoomService interface {
	Create(ctx context.Context, creatorID uint, payload dto.CreateRoomRequest) (dto.RoomResponse, error)
	AddMembers(ctx context.Context, roomID, requesterID uint, userIDs []uint) error
	KickMember(ctx context.Context, roomID, requesterID, targetID uint) error
	ListMembers(ctx context.Context, roomID, requesterID uint) ([]dto.MemberResponse, error)
	GetRoomForUser(ctx context.Context, roomID, userID uint) (dto.RoomResponse, error)
	ListRoomsForUser(ctx context.Context, userID uint) ([]dto.RoomResponse, error)
}

type roomService struct {
	repo      repository.RoomRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewRoomService constructs a room service.
func NewRoomService(repo repository.RoomRepository, validate *validator.Validate, logger zerolog.Logger) RoomService {
	return &roomService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "room_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/officehub-api/internal/service/room"),
	}
}

func (s *roomService) Create(ctx context.Context, creatorID uint, payload dto.CreateRoomRequest) (dto.RoomResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.RoomResponse{}, err
	}

	name := plainText(s.sanitizer, payload.Name)
	if name == "" {
		return dto.RoomResponse{}, validationError("room name is empty after sanitization")
	}

	members := uniqueMembers(payload.MemberIDs, creatorID)
	switch payload.Kind {
	case models.RoomKindPrivate:
		if len(members) != 1 {
			return dto.RoomResponse{}, validationError("a private room needs exactly one other member")
		}
	case models.RoomKindGroup:
		if len(members) < 1 {
			return dto.RoomResponse{}, validationError("a group room needs at least one other member")
		}
	}

	ctx, span := s.tracer.Start(ctx, "rooms.create", trace.WithAttributes(
		attribute.String("room.kind", string(payload.Kind)),
		attribute.Int("room.members", len(members)+1),
	))
	defer span.End()

	room := models.Room{Name: name, Kind: payload.Kind, OwnerID: creatorID}
	if len(payload.Metadata) > 0 {
		room.Metadata = datatypes.JSONMap(payload.Metadata)
	}
	if err := s.repo.CreateWithMembers(ctx, &room, members); err != nil {
		span.RecordError(err)
		return dto.RoomResponse{}, err
	}

	s.logger.Info().Uint("room_id", room.ID).Uint("owner_id", creatorID).Str("kind", string(room.Kind)).Msg("room created")
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) AddMembers(ctx context.Context, roomID, requesterID uint, userIDs []uint) error {
	if err := validateStruct(s.validator, dto.AddMembersRequest{UserIDs: userIDs}); err != nil {
		return err
	}

	room, err := s.requireAdmin(ctx, roomID, requesterID)
	if err != nil {
		return err
	}
	if room.Kind == models.RoomKindPrivate {
		return conflictError("private rooms have fixed membership")
	}

	ctx, span := s.tracer.Start(ctx, "rooms.add_members", trace.WithAttributes(attribute.Int("room.id", int(roomID))))
	defer span.End()

	added, err := s.repo.AddMembers(ctx, roomID, uniqueMembers(userIDs, 0))
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info().Uint("room_id", roomID).Int64("added", added).Msg("room members added")
	return nil
}

func (s *roomService) KickMember(ctx context.Context, roomID, requesterID, targetID uint) error {
	room, err := s.requireAdmin(ctx, roomID, requesterID)
	if err != nil {
		return err
	}
	if room.Kind == models.RoomKindPrivate {
		return conflictError("private rooms have fixed membership")
	}
	if targetID == requesterID {
		return conflictError("members cannot remove themselves")
	}

	ctx, span := s.tracer.Start(ctx, "rooms.kick_member", trace.WithAttributes(attribute.Int("room.id", int(roomID))))
	defer span.End()

	removed, err := s.repo.RemoveMember(ctx, roomID, targetID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !removed {
		return notFoundError("user %d is not a member of room %d", targetID, roomID)
	}

	s.logger.Info().Uint("room_id", roomID).Uint("user_id", targetID).Uint("by", requesterID).Msg("room member removed")
	return nil
}

func (s *roomService) ListMembers(ctx context.Context, roomID, requesterID uint) ([]dto.MemberResponse, error) {
	if _, err := s.repo.FindMembership(ctx, roomID, requesterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, forbiddenError("not a member of room %d", roomID)
		}
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return dto.NewMemberResponseSlice(members), nil
}

func (s *roomService) GetRoomForUser(ctx context.Context, roomID, userID uint) (dto.RoomResponse, error) {
	room, err := s.repo.FindForMember(ctx, roomID, userID)
	if err != nil {
		return dto.RoomResponse{}, lookupError(err, "room")
	}
	return dto.NewRoomResponse(room), nil
}

func (s *roomService) ListRoomsForUser(ctx context.Context, userID uint) ([]dto.RoomResponse, error) {
	summaries, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewRoomSummaryResponseSlice(summaries), nil
}

func (s *roomService) requireAdmin(ctx context.Context, roomID, requesterID uint) (models.Room, error) {
	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return models.Room{}, lookupError(err, "room")
	}

	member, err := s.repo.FindMembership(ctx, roomID, requesterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, forbiddenError("not a member of room %d", roomID)
		}
		return models.Room{}, err
	}
	if member.Role != models.MemberRoleAdmin {
		return models.Room{}, forbiddenError("only room admins can manage members")
	}
	return room, nil
}

// uniqueMembers drops duplicates, zero ids and the excluded id while keeping the caller's order.
func uniqueMembers(ids []uint, exclude uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
