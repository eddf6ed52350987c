package models

import (
	"time"

	"gorm.io/datatypes"
)

// RoomKind distinguishes two-party conversations from multi-party ones.
type RoomKind string

const (
	RoomKindPrivate RoomKind = "private"
	RoomKindGroup   RoomKind = "group"
)

// MemberRole grants management rights inside a room.
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// Room is a named conversation container.
type Room struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"size:255;not null" json:"name"`
	Kind      RoomKind          `gorm:"size:16;not null;index" json:"kind"`
	OwnerID   uint              `gorm:"index;not null" json:"owner_id"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `gorm:"index" json:"updated_at"`
	Members   []RoomMember      `json:"members,omitempty"`
}

// RoomMember links a user to a room with a role.
type RoomMember struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	RoomID   uint       `gorm:"not null;uniqueIndex:idx_room_member" json:"room_id"`
	UserID   uint       `gorm:"not null;uniqueIndex:idx_room_member;index" json:"user_id"`
	Role     MemberRole `gorm:"size:16;not null;default:member" json:"role"`
	JoinedAt time.Time  `gorm:"not null" json:"joined_at"`
}

// RoomSummary is a room as seen by one member, with their unread count.
type RoomSummary struct {
	Room        Room
	UnreadCount int64
}
