package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/officehub-api/internal/models"
)

// RoomRepository persists rooms and their memberships.
type RoomRepository interface {
	CreateWithMembers(ctx context.Context, room *models.Room, memberIDs []uint) error
	FindByID(ctx context.Context, roomID uint) (models.Room, error)
	FindForMember(ctx context.Context, roomID, userID uint) (models.Room, error)
	FindMembership(ctx context.Context, roomID, userID uint) (models.RoomMember, error)
	AddMembers(ctx context.Context, roomID uint, userIDs []uint) (int64, error)
	RemoveMember(ctx context.Context, roomID, userID uint) (bool, error)
	ListMembers(ctx context.Context, roomID uint) ([]models.RoomMember, error)
	ListForUser(ctx context.Context, userID uint) ([]models.RoomSummary, error)
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository constructs a room repository backed by GORM.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

// CreateWithMembers inserts the room, its owner as admin and every member in one transaction.
func (r *roomRepository) CreateWithMembers(ctx context.Context, room *models.Room, memberIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(room).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		rows := make([]models.RoomMember, 0, len(memberIDs)+1)
		rows = append(rows, models.RoomMember{RoomID: room.ID, UserID: room.OwnerID, Role: models.MemberRoleAdmin, JoinedAt: now})
		for _, id := range memberIDs {
			rows = append(rows, models.RoomMember{RoomID: room.ID, UserID: id, Role: models.MemberRoleMember, JoinedAt: now})
		}

		if _, err := insertMembers(tx, rows); err != nil {
			return err
		}

		return tx.Where("room_id = ?", room.ID).Order("id ASC").Find(&room.Members).Error
	})
}

func (r *roomRepository) FindByID(ctx context.Context, roomID uint) (models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, roomID).Error; err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *roomRepository) FindForMember(ctx context.Context, roomID, userID uint) (models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("rooms.id = ? AND room_members.user_id = ?", roomID, userID).
		First(&room).Error
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *roomRepository) FindMembership(ctx context.Context, roomID, userID uint) (models.RoomMember, error) {
	var member models.RoomMember
	if err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&member).Error; err != nil {
		return models.RoomMember{}, err
	}
	return member, nil
}

// AddMembers inserts the users as plain members, skipping existing memberships, and reports how many were new.
func (r *roomRepository) AddMembers(ctx context.Context, roomID uint, userIDs []uint) (int64, error) {
	var added int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		rows := make([]models.RoomMember, 0, len(userIDs))
		for _, id := range userIDs {
			rows = append(rows, models.RoomMember{RoomID: roomID, UserID: id, Role: models.MemberRoleMember, JoinedAt: now})
		}
		if len(rows) > 0 {
			count, err := insertMembers(tx, rows)
			if err != nil {
				return err
			}
			added = count
		}
		return touchRoom(tx, roomID)
	})
	return added, err
}

// RemoveMember deletes the membership row. It returns false when the user was not a member.
func (r *roomRepository) RemoveMember(ctx context.Context, roomID, userID uint) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&models.RoomMember{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		removed = true
		return touchRoom(tx, roomID)
	})
	return removed, err
}

// ListMembers returns admins first, then everyone else by join time.
func (r *roomRepository) ListMembers(ctx context.Context, roomID uint) ([]models.RoomMember, error) {
	var members []models.RoomMember
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("CASE WHEN role = '" + string(models.MemberRoleAdmin) + "' THEN 0 ELSE 1 END, joined_at ASC, id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

type unreadRow struct {
	RoomID uint
	Total  int64
}

// ListForUser returns the user's rooms by recency together with the messages they have not read yet.
func (r *roomRepository) ListForUser(ctx context.Context, userID uint) ([]models.RoomSummary, error) {
	db := r.db.WithContext(ctx)

	var rooms []models.Room
	err := db.
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("rooms.updated_at DESC").
		Order("rooms.id DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return []models.RoomSummary{}, nil
	}

	ids := make([]uint, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}

	var counts []unreadRow
	err = db.Model(&models.Message{}).
		Select("room_id, COUNT(*) AS total").
		Where("room_id IN ? AND sender_id <> ? AND is_read = ?", ids, userID, false).
		Group("room_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	unread := make(map[uint]int64, len(counts))
	for _, row := range counts {
		unread[row.RoomID] = row.Total
	}

	summaries := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, models.RoomSummary{Room: room, UnreadCount: unread[room.ID]})
	}
	return summaries, nil
}

func insertMembers(tx *gorm.DB, rows []models.RoomMember) (int64, error) {
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&rows)
	return result.RowsAffected, result.Error
}

func touchRoom(tx *gorm.DB, roomID uint) error {
	return tx.Model(&models.Room{}).Where("id = ?", roomID).UpdateColumn("updated_at", time.Now().UTC()).Error
}
