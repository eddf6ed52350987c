package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/officehub-api/internal/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, target))
}

func jsonBody(t *testing.T, payload interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// asUser authenticates every request as the given identity.
func asUser(identity middleware.Identity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if identity.UserID != 0 {
			middleware.SetIdentity(c, identity)
		}
		return c.Next()
	}
}

type evictorStub struct {
	calls [][2]uint
}

func (e *evictorStub) EvictMember(_ context.Context, roomID, userID uint) {
	e.calls = append(e.calls, [2]uint{roomID, userID})
}

// headerIdentity authenticates requests as the user named in X-Test-User.
func headerIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw := c.Get("X-Test-User"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err == nil {
				middleware.SetIdentity(c, middleware.Identity{UserID: uint(id)})
			}
		}
		return c.Next()
	}
}
