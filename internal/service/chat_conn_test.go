package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/middleware"
)

var (
	errFakeClosed  = errors.New("fake connection closed")
	errFakeTimeout = errors.New("fake read deadline exceeded")
)

// fakeConn is an in-memory websocket with read deadline support.
type fakeConn struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once

	mu           sync.Mutex
	readDeadline time.Time
	closeCode    int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	deadline := f.readDeadline
	f.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case data := <-f.inbound:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errFakeClosed
	case <-timeout:
		return 0, nil, errFakeTimeout
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}

	switch messageType {
	case websocket.CloseMessage:
		f.mu.Lock()
		if len(data) >= 2 {
			f.closeCode = int(binary.BigEndian.Uint16(data[:2]))
		}
		f.mu.Unlock()
	case websocket.TextMessage:
		select {
		case f.outbound <- data:
		case <-f.closed:
			return errFakeClosed
		}
	}
	return nil
}

func (f *fakeConn) SetReadDeadline(t time.Time) error {
	f.mu.Lock()
	f.readDeadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) SetReadLimit(int64) {}

func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

func (f *fakeConn) sendFrame(t *testing.T, frame interface{}) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	f.inbound <- data
}

// waitEvent skips events of other types until one of eventType arrives.
func (f *fakeConn) waitEvent(t *testing.T, eventType string) dto.RealtimeEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-f.outbound:
			var event dto.RealtimeEvent
			require.NoError(t, json.Unmarshal(data, &event))
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
			return dto.RealtimeEvent{}
		}
	}
}

// requireNoEvent asserts that no event of eventType arrives within wait.
func (f *fakeConn) requireNoEvent(t *testing.T, eventType string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case data := <-f.outbound:
			var event dto.RealtimeEvent
			require.NoError(t, json.Unmarshal(data, &event))
			require.NotEqual(t, eventType, event.Type, "unexpected %s event", eventType)
		case <-deadline:
			return
		}
	}
}

// stallingConn holds the first text write until release is closed, even across Close.
type stallingConn struct {
	*fakeConn
	writing chan struct{}
	release chan struct{}
	started sync.Once
}

func (s *stallingConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return s.fakeConn.WriteMessage(messageType, data)
	}
	s.started.Do(func() { close(s.writing) })
	<-s.release
	return errFakeClosed
}

type verifierStub struct {
	tokens map[string]middleware.Identity
}

func (v verifierStub) Verify(_ context.Context, token string) (middleware.Identity, error) {
	identity, ok := v.tokens[token]
	if !ok {
		return middleware.Identity{}, middleware.ErrInvalidToken
	}
	return identity, nil
}

// connect serves conn as an already authenticated user and waits for the greeting.
func connect(t *testing.T, svc ChatService, userID uint) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	identity := middleware.Identity{UserID: userID}
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.ServeConnection(conn, ChatConnectionOptions{Identity: &identity})
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		<-done
	})
	conn.waitEvent(t, dto.EventAuthenticated)
	return conn
}

func joinRoom(t *testing.T, conn *fakeConn, roomID uint) {
	t.Helper()
	conn.sendFrame(t, map[string]interface{}{"type": dto.FrameJoin, "room_id": roomID})
	event := conn.waitEvent(t, dto.EventJoined)
	require.Equal(t, roomID, event.RoomID)
}
