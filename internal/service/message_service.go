package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/models"
	"github.com/noah-isme/officehub-api/internal/repository"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
)

// MessageService persists chat messages and their read state. It never broadcasts.
type MessageService interface {
	Send(ctx context.Context, roomID, senderID uint, payload dto.SendMessageRequest, attachments []AttachmentRef) (dto.ChatMessageResponse, error)
	List(ctx context.Context, roomID, requesterID uint, query dto.MessageListQuery) ([]dto.ChatMessageResponse, error)
	MarkRead(ctx context.Context, roomID, readerID uint) (int64, error)
}

type messageService struct {
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewMessageService constructs a message service.
func NewMessageService(rooms repository.RoomRepository, messages repository.MessageRepository, validate *validator.Validate, logger zerolog.Logger) MessageService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &messageService{
		rooms:     rooms,
		messages:  messages,
		validator: validate,
		sanitizer: sanitizer,
		logger:    logger.With().Str("component", "message_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/officehub-api/internal/service/message"),
	}
}

func (s *messageService) Send(ctx context.Context, roomID, senderID uint, payload dto.SendMessageRequest, attachments []AttachmentRef) (dto.ChatMessageResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	if err := s.requireMember(ctx, roomID, senderID); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Text))
	if clean == "" && len(attachments) == 0 {
		return dto.ChatMessageResponse{}, validationError("message needs text or at least one attachment")
	}

	if payload.ReceiverID != nil {
		if _, err := s.rooms.FindMembership(ctx, roomID, *payload.ReceiverID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.ChatMessageResponse{}, validationError("receiver is not a member of room %d", roomID)
			}
			return dto.ChatMessageResponse{}, err
		}
	}

	ctx, span := s.tracer.Start(ctx, "messages.send", trace.WithAttributes(
		attribute.Int("chat.room_id", int(roomID)),
		attribute.Int("chat.sender_id", int(senderID)),
		attribute.Int("chat.attachments", len(attachments)),
	))
	defer span.End()

	model := models.Message{
		RoomID:     roomID,
		SenderID:   senderID,
		ReceiverID: payload.ReceiverID,
		Text:       clean,
	}
	rows := make([]models.Attachment, 0, len(attachments))
	for _, ref := range attachments {
		rows = append(rows, models.Attachment{
			Kind:         models.AttachmentKindChat,
			StorageKey:   ref.StorageKey,
			OriginalName: ref.OriginalName,
			MimeType:     ref.MimeType,
			SizeBytes:    ref.SizeBytes,
			UploaderID:   senderID,
		})
	}

	if err := s.messages.CreateWithAttachments(ctx, &model, rows); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.ChatMessageResponse{}, err
	}

	span.SetStatus(codes.Ok, "stored")
	return dto.NewChatMessageResponse(model), nil
}

func (s *messageService) List(ctx context.Context, roomID, requesterID uint, query dto.MessageListQuery) ([]dto.ChatMessageResponse, error) {
	if err := validateStruct(s.validator, query); err != nil {
		return nil, err
	}

	if _, err := s.rooms.FindMembership(ctx, roomID, requesterID); err != nil {
		return nil, lookupError(err, "room")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultMessagePageSize
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}

	messages, err := s.messages.ListByRoom(ctx, roomID, limit, query.Offset)
	if err != nil {
		return nil, err
	}
	return dto.NewChatMessageResponseSlice(messages), nil
}

func (s *messageService) MarkRead(ctx context.Context, roomID, readerID uint) (int64, error) {
	if err := s.requireMember(ctx, roomID, readerID); err != nil {
		return 0, err
	}

	ctx, span := s.tracer.Start(ctx, "messages.mark_read", trace.WithAttributes(attribute.Int("chat.room_id", int(roomID))))
	defer span.End()

	count, err := s.messages.MarkRoomRead(ctx, roomID, readerID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return count, nil
}

func (s *messageService) requireMember(ctx context.Context, roomID, userID uint) error {
	if _, err := s.rooms.FindMembership(ctx, roomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return forbiddenError("not a member of room %d", roomID)
		}
		return err
	}
	return nil
}
