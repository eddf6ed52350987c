package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/officehub-api/internal/models"
)

// MessageRepository persists chat messages together with their attachments.
type MessageRepository interface {
	CreateWithAttachments(ctx context.Context, message *models.Message, attachments []models.Attachment) error
	ListByRoom(ctx context.Context, roomID uint, limit, offset int) ([]models.Message, error)
	MarkRoomRead(ctx context.Context, roomID, readerID uint) (int64, error)
	FindAttachmentForMember(ctx context.Context, attachmentID, userID uint) (models.Attachment, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// CreateWithAttachments inserts the message, binds every attachment to it and bumps the room recency in one
// transaction. Any failure leaves no rows behind.
func (r *messageRepository) CreateWithAttachments(ctx context.Context, message *models.Message, attachments []models.Attachment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(message).Error; err != nil {
			return err
		}

		if len(attachments) > 0 {
			for i := range attachments {
				messageID := message.ID
				attachments[i].Kind = models.AttachmentKindChat
				attachments[i].MessageID = &messageID
				attachments[i].TaskID = nil
			}
			if err := tx.Create(&attachments).Error; err != nil {
				return err
			}
		}

		message.Attachments = attachments
		return touchRoom(tx, message.RoomID)
	})
}

// ListByRoom returns the newest messages first, each with attachments in upload order.
func (r *messageRepository) ListByRoom(ctx context.Context, roomID uint, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRoomRead flips every unread message written by someone other than the reader.
func (r *messageRepository) MarkRoomRead(ctx context.Context, roomID, readerID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("room_id = ? AND sender_id <> ? AND is_read = ?", roomID, readerID, false).
		UpdateColumn("is_read", true)
	return result.RowsAffected, result.Error
}

// FindAttachmentForMember resolves an attachment only if the user belongs to the room of its message.
func (r *messageRepository) FindAttachmentForMember(ctx context.Context, attachmentID, userID uint) (models.Attachment, error) {
	var attachment models.Attachment
	err := r.db.WithContext(ctx).
		Joins("JOIN messages ON messages.id = attachments.message_id").
		Joins("JOIN room_members ON room_members.room_id = messages.room_id").
		Where("attachments.id = ? AND attachments.kind = ? AND room_members.user_id = ?", attachmentID, models.AttachmentKindChat, userID).
		First(&attachment).Error
	if err != nil {
		return models.Attachment{}, err
	}
	return attachment, nil
}
