package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/officehub-api/internal/database"
	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/models"
	"github.com/noah-isme/officehub-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.Report{},
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
		&models.Attachment{},
		&models.Notification{},
	))
	return db
}

type chatFixture struct {
	db       *gorm.DB
	rooms    RoomService
	messages MessageService
}

func newChatFixture(t *testing.T) chatFixture {
	t.Helper()
	db := setupServiceDB(t)
	validate := validator.New()
	roomRepo := repository.NewRoomRepository(db)
	return chatFixture{
		db:       db,
		rooms:    NewRoomService(roomRepo, validate, testLogger()),
		messages: NewMessageService(roomRepo, repository.NewMessageRepository(db), validate, testLogger()),
	}
}

func (f chatFixture) group(t *testing.T, owner uint, members ...uint) dto.RoomResponse {
	t.Helper()
	room, err := f.rooms.Create(context.Background(), owner, dto.CreateRoomRequest{
		Name:      "Project",
		Kind:      models.RoomKindGroup,
		MemberIDs: members,
	})
	require.NoError(t, err)
	return room
}
