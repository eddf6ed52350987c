package dto

import "time"

// Client frame types accepted over the chat websocket.
const (
	FrameAuth        = "auth"
	FrameJoin        = "join"
	FrameLeave       = "leave"
	FrameSendMessage = "send_message"
	FrameTyping      = "typing"
	FrameMarkRead    = "mark_read"
)

// Server event types pushed over the chat websocket.
const (
	EventAuthenticated = "authenticated"
	EventJoined        = "joined"
	EventLeft          = "left"
	EventNewMessage    = "new_message"
	EventTyping        = "typing"
	EventMessagesRead  = "messages_read"
	EventMemberRemoved = "member_removed"
	EventNotification  = "notification"
	EventError         = "error"
)

// ClientFrame is a single inbound websocket frame.
type ClientFrame struct {
	Type     string `json:"type" validate:"required,oneof=auth join leave send_message typing mark_read"`
	RoomID   uint   `json:"room_id" validate:"required_if=Type join,required_if=Type leave"`
	Text     string `json:"text" validate:"max=4000"`
	IsTyping bool   `json:"is_typing"`
	Token    string `json:"token" validate:"required_if=Type auth"`
}

// RealtimeError is the payload of an error event.
type RealtimeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RealtimeEvent is a single outbound websocket frame.
type RealtimeEvent struct {
	Type         string                `json:"type"`
	RoomID       uint                  `json:"room_id,omitempty"`
	UserID       uint                  `json:"user_id,omitempty"`
	Room         *RoomResponse         `json:"room,omitempty"`
	Message      *ChatMessageResponse  `json:"message,omitempty"`
	IsTyping     *bool                 `json:"is_typing,omitempty"`
	ReadCount    *int64                `json:"read_count,omitempty"`
	Notification *NotificationResponse `json:"notification,omitempty"`
	Error        *RealtimeError        `json:"error,omitempty"`
	SentAt       time.Time             `json:"sent_at"`
}
