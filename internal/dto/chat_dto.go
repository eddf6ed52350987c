package dto

import (
	"time"

	"github.com/noah-isme/officehub-api/internal/models"
)

// CreateRoomRequest describes a new conversation.
type CreateRoomRequest struct {
	Name      string                 `json:"name" validate:"required,min=1,max=255"`
	Kind      models.RoomKind        `json:"kind" validate:"required,oneof=private group"`
	MemberIDs []uint                 `json:"member_ids" validate:"required,dive,gt=0"`
	// Metadata holds client settings such as a topic or linked project.
	Metadata  map[string]interface{} `json:"metadata" validate:"omitempty,max=32"`
}

// AddMembersRequest lists users to invite into a room.
type AddMembersRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

// SendMessageRequest is the JSON body accepted by the HTTP send endpoint.
type SendMessageRequest struct {
	Text       string `json:"text" validate:"max=4000"`
	ReceiverID *uint  `json:"receiver_id" validate:"omitempty,gt=0"`
}

// MessageListQuery paginates a room's history.
type MessageListQuery struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// RoomResponse is the serialized representation of a room.
type RoomResponse struct {
	ID          uint                   `json:"id"`
	Name        string                 `json:"name"`
	Kind        models.RoomKind        `json:"kind"`
	OwnerID     uint                   `json:"owner_id"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	UnreadCount *int64                 `json:"unread_count,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// MemberResponse is the serialized representation of a membership.
type MemberResponse struct {
	RoomID   uint              `json:"room_id"`
	UserID   uint              `json:"user_id"`
	Role     models.MemberRole `json:"role"`
	JoinedAt time.Time         `json:"joined_at"`
}

// AttachmentResponse describes attachment metadata; the payload is fetched separately.
type AttachmentResponse struct {
	ID           uint      `json:"id"`
	MessageID    uint      `json:"message_id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	UploaderID   uint      `json:"uploader_id"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// ChatMessageResponse is the serialized representation of a chat message.
type ChatMessageResponse struct {
	ID          uint                 `json:"id"`
	RoomID      uint                 `json:"room_id"`
	SenderID    uint                 `json:"sender_id"`
	ReceiverID  *uint                `json:"receiver_id,omitempty"`
	Text        string               `json:"text"`
	IsRead      bool                 `json:"is_read"`
	SentAt      time.Time            `json:"sent_at"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// NewRoomResponse converts a model into a DTO.
func NewRoomResponse(room models.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		Kind:      room.Kind,
		OwnerID:   room.OwnerID,
		Metadata:  room.Metadata,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}
}

// NewRoomSummaryResponseSlice converts member-scoped room summaries into DTOs.
func NewRoomSummaryResponseSlice(items []models.RoomSummary) []RoomResponse {
	out := make([]RoomResponse, 0, len(items))
	for _, item := range items {
		response := NewRoomResponse(item.Room)
		unread := item.UnreadCount
		response.UnreadCount = &unread
		out = append(out, response)
	}
	return out
}

// NewMemberResponseSlice converts memberships into DTOs.
func NewMemberResponseSlice(members []models.RoomMember) []MemberResponse {
	out := make([]MemberResponse, 0, len(members))
	for _, member := range members {
		out = append(out, MemberResponse{
			RoomID:   member.RoomID,
			UserID:   member.UserID,
			Role:     member.Role,
			JoinedAt: member.JoinedAt,
		})
	}
	return out
}

// NewChatMessageResponse converts a model, including its attachments, into a DTO.
func NewChatMessageResponse(message models.Message) ChatMessageResponse {
	attachments := make([]AttachmentResponse, 0, len(message.Attachments))
	for _, attachment := range message.Attachments {
		attachments = append(attachments, AttachmentResponse{
			ID:           attachment.ID,
			MessageID:    message.ID,
			OriginalName: attachment.OriginalName,
			MimeType:     attachment.MimeType,
			SizeBytes:    attachment.SizeBytes,
			UploaderID:   attachment.UploaderID,
			UploadedAt:   attachment.CreatedAt,
		})
	}

	return ChatMessageResponse{
		ID:          message.ID,
		RoomID:      message.RoomID,
		SenderID:    message.SenderID,
		ReceiverID:  message.ReceiverID,
		Text:        message.Text,
		IsRead:      message.IsRead,
		SentAt:      message.CreatedAt,
		Attachments: attachments,
	}
}

// NewChatMessageResponseSlice converts a slice of models into DTOs.
func NewChatMessageResponseSlice(messages []models.Message) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewChatMessageResponse(message))
	}
	return out
}
