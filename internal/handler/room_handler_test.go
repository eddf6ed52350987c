package handler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/handler"
	"github.com/noah-isme/officehub-api/internal/middleware"
	"github.com/noah-isme/officehub-api/internal/models"
	"github.com/noah-isme/officehub-api/internal/service"
)

type roomServiceStub struct {
	created   dto.CreateRoomRequest
	creatorID uint
	kicked    [3]uint
	rooms     []dto.RoomResponse
	members   []dto.MemberResponse
	err       error
	kickErr   error
}

func (s *roomServiceStub) Create(_ context.Context, creatorID uint, payload dto.CreateRoomRequest) (dto.RoomResponse, error) {
	s.creatorID = creatorID
	s.created = payload
	if s.err != nil {
		return dto.RoomResponse{}, s.err
	}
	return dto.RoomResponse{ID: 10, Name: payload.Name, Kind: payload.Kind, OwnerID: creatorID}, nil
}

func (s *roomServiceStub) AddMembers(context.Context, uint, uint, []uint) error {
	return s.err
}

func (s *roomServiceStub) KickMember(_ context.Context, roomID, requesterID, targetID uint) error {
	s.kicked = [3]uint{roomID, requesterID, targetID}
	return s.kickErr
}

func (s *roomServiceStub) ListMembers(context.Context, uint, uint) ([]dto.MemberResponse, error) {
	return s.members, s.err
}

func (s *roomServiceStub) GetRoomForUser(_ context.Context, roomID, _ uint) (dto.RoomResponse, error) {
	if s.err != nil {
		return dto.RoomResponse{}, s.err
	}
	return dto.RoomResponse{ID: roomID, Name: "Ops"}, nil
}

func (s *roomServiceStub) ListRoomsForUser(context.Context, uint) ([]dto.RoomResponse, error) {
	return s.rooms, s.err
}

func newRoomApp(svc service.RoomService, evictor handler.MemberEvictor, userID uint) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v2/rooms", asUser(middleware.Identity{UserID: userID}))
	handler.NewRoomHandler(svc, evictor, discardLogger()).Register(group)
	return app
}

func TestRoomHandler_Create(t *testing.T) {
	svc := &roomServiceStub{}
	app := newRoomApp(svc, nil, 4)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/rooms", jsonBody(t, map[string]interface{}{
		"name":       "Finance",
		"kind":       "group",
		"member_ids": []uint{5, 6},
	}))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Success bool             `json:"success"`
		Data    dto.RoomResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, uint(10), body.Data.ID)
	require.Equal(t, uint(4), svc.creatorID)
	require.Equal(t, models.RoomKindGroup, svc.created.Kind)
	require.Equal(t, []uint{5, 6}, svc.created.MemberIDs)
}

func TestRoomHandler_RequiresIdentity(t *testing.T) {
	app := newRoomApp(&roomServiceStub{}, nil, 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/rooms", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRoomHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		statusCode int
		kind       string
	}{
		{name: "validation", err: fmt.Errorf("%w: name required", service.ErrValidation), statusCode: fiber.StatusBadRequest, kind: "validation"},
		{name: "forbidden", err: fmt.Errorf("%w: admin only", service.ErrForbidden), statusCode: fiber.StatusForbidden, kind: "forbidden"},
		{name: "not_found", err: fmt.Errorf("%w: room", service.ErrNotFound), statusCode: fiber.StatusNotFound, kind: "not_found"},
		{name: "conflict", err: fmt.Errorf("%w: private room", service.ErrConflict), statusCode: fiber.StatusConflict, kind: "conflict"},
		{name: "internal", err: errors.New("connection reset"), statusCode: fiber.StatusInternalServerError, kind: "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newRoomApp(&roomServiceStub{err: tc.err}, nil, 1)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/rooms/3", nil))
			require.NoError(t, err)
			require.Equal(t, tc.statusCode, resp.StatusCode)

			var body envelope
			decodeResponse(t, resp, &body)
			require.False(t, body.Success)
			require.Equal(t, tc.kind, body.Error)
			if tc.kind == "internal" {
				require.NotContains(t, body.Message, "connection reset")
			}
		})
	}
}

func TestRoomHandler_ValidationDetails(t *testing.T) {
	var fieldErrs validator.ValidationErrors
	require.ErrorAs(t, validator.New().Struct(dto.CreateRoomRequest{Name: "Ops"}), &fieldErrs)

	svc := &roomServiceStub{err: fmt.Errorf("%w: %w", service.ErrValidation, fieldErrs)}
	app := newRoomApp(svc, nil, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/rooms", jsonBody(t, map[string]interface{}{"name": "Ops"}))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "validation", body.Error)
	require.Equal(t, "required", body.Details["Kind"])
	require.Equal(t, "required", body.Details["MemberIDs"])
}

func TestRoomHandler_InvalidID(t *testing.T) {
	app := newRoomApp(&roomServiceStub{}, nil, 1)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/rooms/abc/members", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRoomHandler_KickEvictsLiveSessions(t *testing.T) {
	svc := &roomServiceStub{}
	evictor := &evictorStub{}
	app := newRoomApp(svc, evictor, 1)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/v2/rooms/3/members/8", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, [3]uint{3, 1, 8}, svc.kicked)
	require.Equal(t, [][2]uint{{3, 8}}, evictor.calls)

	svc.kickErr = fmt.Errorf("%w: cannot remove yourself", service.ErrConflict)
	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/v2/rooms/3/members/1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Len(t, evictor.calls, 1)
}
