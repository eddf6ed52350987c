package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/officehub-api/internal/models"
)

func seedRoom(t *testing.T, db *gorm.DB, owner uint, members ...uint) models.Room {
	t.Helper()
	room := models.Room{Name: "Room", Kind: models.RoomKindGroup, OwnerID: owner}
	require.NoError(t, NewRoomRepository(db).CreateWithMembers(context.Background(), &room, members))
	return room
}

func TestMessageRepositoryCreateWithAttachments(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	room := seedRoom(t, db, 1, 2)

	message := models.Message{RoomID: room.ID, SenderID: 1, Text: "see files"}
	attachments := []models.Attachment{
		{StorageKey: "a-1.pdf", OriginalName: "minutes.pdf", MimeType: "application/pdf", SizeBytes: 10, UploaderID: 1},
		{StorageKey: "a-2.png", OriginalName: "shot.png", MimeType: "image/png", SizeBytes: 20, UploaderID: 1},
	}
	require.NoError(t, repo.CreateWithAttachments(context.Background(), &message, attachments))
	require.NotZero(t, message.ID)
	require.Len(t, message.Attachments, 2)
	require.Equal(t, message.ID, *message.Attachments[0].MessageID)

	listed, err := repo.ListByRoom(context.Background(), room.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Len(t, listed[0].Attachments, 2)
	require.Equal(t, "minutes.pdf", listed[0].Attachments[0].OriginalName)
	require.Equal(t, "shot.png", listed[0].Attachments[1].OriginalName)
}

func TestMessageRepositoryCreateRollsBackOnAttachmentFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	room := seedRoom(t, db, 1, 2)

	attachments := []models.Attachment{
		{StorageKey: "dup", OriginalName: "a.txt", MimeType: "text/plain", SizeBytes: 1, UploaderID: 1},
		{StorageKey: "dup", OriginalName: "b.txt", MimeType: "text/plain", SizeBytes: 1, UploaderID: 1},
	}
	message := models.Message{RoomID: room.ID, SenderID: 1, Text: "broken"}
	require.Error(t, repo.CreateWithAttachments(context.Background(), &message, attachments))

	var messages, stored int64
	require.NoError(t, db.Model(&models.Message{}).Count(&messages).Error)
	require.NoError(t, db.Model(&models.Attachment{}).Count(&stored).Error)
	require.Zero(t, messages)
	require.Zero(t, stored)
}

func TestMessageRepositoryListByRoomNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	room := seedRoom(t, db, 1, 2)

	base := time.Now().UTC().Add(-time.Hour)
	for i, text := range []string{"first", "second", "third"} {
		msg := models.Message{RoomID: room.ID, SenderID: 1, Text: text, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, db.Create(&msg).Error)
	}

	page, err := repo.ListByRoom(context.Background(), room.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "third", page[0].Text)
	require.Equal(t, "second", page[1].Text)

	rest, err := repo.ListByRoom(context.Background(), room.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "first", rest[0].Text)
}

func TestMessageRepositoryMarkRoomReadSkipsOwnMessages(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	room := seedRoom(t, db, 1, 2)

	require.NoError(t, db.Create(&[]models.Message{
		{RoomID: room.ID, SenderID: 1, Text: "from reader"},
		{RoomID: room.ID, SenderID: 2, Text: "to reader"},
		{RoomID: room.ID, SenderID: 2, Text: "again"},
	}).Error)

	count, err := repo.MarkRoomRead(context.Background(), room.ID, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	count, err = repo.MarkRoomRead(context.Background(), room.ID, 1)
	require.NoError(t, err)
	require.Zero(t, count)

	var own models.Message
	require.NoError(t, db.Where("sender_id = ?", 1).First(&own).Error)
	require.False(t, own.IsRead)
}

func TestMessageRepositoryFindAttachmentForMember(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	room := seedRoom(t, db, 1, 2)

	message := models.Message{RoomID: room.ID, SenderID: 1}
	attachments := []models.Attachment{{StorageKey: "k.pdf", OriginalName: "k.pdf", MimeType: "application/pdf", SizeBytes: 3, UploaderID: 1}}
	require.NoError(t, repo.CreateWithAttachments(context.Background(), &message, attachments))

	found, err := repo.FindAttachmentForMember(context.Background(), message.Attachments[0].ID, 2)
	require.NoError(t, err)
	require.Equal(t, "k.pdf", found.StorageKey)

	_, err = repo.FindAttachmentForMember(context.Background(), message.Attachments[0].ID, 3)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
