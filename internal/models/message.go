package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// AttachmentKind tags which entity owns an attachment.
type AttachmentKind string

const (
	AttachmentKindChat AttachmentKind = "chat"
	AttachmentKindTask AttachmentKind = "task"
)

// ErrAttachmentOwner is returned when an attachment does not have exactly one owner matching its kind.
var ErrAttachmentOwner = errors.New("attachment must belong to exactly one message or task")

// Message is a single chat entry posted into a room.
type Message struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	RoomID      uint         `gorm:"not null;index:idx_message_room_sent" json:"room_id"`
	SenderID    uint         `gorm:"not null;index" json:"sender_id"`
	ReceiverID  *uint        `gorm:"index" json:"receiver_id,omitempty"`
	Text        string       `gorm:"type:text" json:"text"`
	IsRead      bool         `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time    `gorm:"index:idx_message_room_sent" json:"sent_at"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment describes an uploaded payload kept in attachment storage.
type Attachment struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Kind         AttachmentKind `gorm:"size:16;not null;default:chat" json:"kind"`
	MessageID    *uint          `gorm:"index" json:"message_id,omitempty"`
	TaskID       *uint          `gorm:"index" json:"task_id,omitempty"`
	StorageKey   string         `gorm:"size:255;not null;uniqueIndex" json:"-"`
	OriginalName string         `gorm:"size:255;not null" json:"original_name"`
	MimeType     string         `gorm:"size:128;not null" json:"mime_type"`
	SizeBytes    int64          `gorm:"not null" json:"size_bytes"`
	UploaderID   uint           `gorm:"not null;index" json:"uploader_id"`
	CreatedAt    time.Time      `json:"uploaded_at"`
}

// BeforeSave enforces that the owner matches the attachment kind.
func (a *Attachment) BeforeSave(tx *gorm.DB) error {
	switch a.Kind {
	case AttachmentKindChat:
		if a.MessageID == nil || a.TaskID != nil {
			return ErrAttachmentOwner
		}
	case AttachmentKindTask:
		if a.TaskID == nil || a.MessageID != nil {
			return ErrAttachmentOwner
		}
	default:
		return ErrAttachmentOwner
	}
	return nil
}
