package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/middleware"
)

func newTestChatService(f chatFixture, redisClient *redis.Client, cfg ChatConfig) ChatService {
	return newRelayedChatService(f, redisClient, nil, cfg)
}

func newRelayedChatService(f chatFixture, redisClient *redis.Client, natsConn *nats.Conn, cfg ChatConfig) ChatService {
	verifier := verifierStub{tokens: map[string]middleware.Identity{
		"alice-token": {UserID: 1},
		"bob-token":   {UserID: 2},
	}}
	return NewChatService(f.rooms, f.messages, verifier, redisClient, natsConn, validator.New(), cfg, testLogger())
}

func dialNATS(t *testing.T, url string) *nats.Conn {
	t.Helper()
	conn, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestChatServiceBroadcastsMessagesToRoom(t *testing.T) {
	f := newChatFixture(t)
	room := f.group(t, 1, 2)
	svc := newTestChatService(f, nil, ChatConfig{})

	alice := connect(t, svc, 1)
	bob := connect(t, svc, 2)
	joinRoom(t, alice, room.ID)
	joinRoom(t, bob, room.ID)

	alice.sendFrame(t, map[string]interface{}{"type": dto.FrameSendMessage, "text": "standup in 5"})

	for _, conn := range []*fakeConn{alice, bob} {
		event := conn.waitEvent(t, dto.EventNewMessage)
		require.Equal(t, room.ID, event.RoomID)
		require.NotNil(t, event.Message)
		require.Equal(t, "standup in 5", event.Message.Text)
		require.Equal(t, uint(1), event.Message.SenderID)
	}

	history, err := f.messages.List(context.Background(), room.ID, 2, dto.MessageListQuery{})
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestChatServiceTypingSkipsSender(t *testing.T) {
	f := newChatFixture(t)
	room := f.group(t, 1, 2)
	svc := newTestChatService(f, nil, ChatConfig{})

	alice := connect(t, svc, 1)
	bob := connect(t, svc, 2)
	joinRoom(t, alice, room.ID)
	joinRoom(t, bob, room.ID)

	alice.sendFrame(t, map[string]interface{}{"type": dto.FrameTyping, "room_id": room.ID, "is_typing": true})

	event := bob.waitEvent(t, dto.EventTyping)
	require.Equal(t, uint(1), event.UserID)
	require.NotNil(t, event.IsTyping)
	require.True(t, *event.IsTyping)

	alice.requireNoEvent(t, dto.EventTyping, 100*time.Millisecond)
}

func TestChatServiceMarkReadBroadcastsCount(t *testing.T) {
	f := newChatFixture(t)
	room := f.group(t, 1, 2)
	svc := newTestChatService(f, nil, ChatConfig{})

	_, err := f.messages.Send(context.Background(), room.ID, 1, dto.SendMessageRequest{Text: "one"}, nil)
	require.NoError(t, err)
	_, err = f.messages.Send(context.Background(), room.ID, 1, dto.SendMessageRequest{Text: "two"}, nil)
	require.NoError(t, err)

	alice := connect(t, svc, 1)
	bob := connect(t, svc, 2)
	joinRoom(t, alice, room.ID)
	joinRoom(t, bob, room.ID)

	bob.sendFrame(t, map[string]interface{}{"type": dto.FrameMarkRead})

	event := alice.waitEvent(t, dto.EventMessagesRead)
	require.Equal(t, uint(2), event.UserID)
	require.NotNil(t, event.ReadCount)
	require.Equal(t, int64(2), *event.ReadCount)
}

func TestChatServiceHandshakeTimeoutClosesUnauthenticated(t *testing.T) {
	f := newChatFixture(t)
	svc := newTestChatService(f, nil, ChatConfig{HandshakeTimeout: 50 * time.Millisecond})

	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.ServeConnection(conn, ChatConnectionOptions{})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not time out")
	}

	event := conn.waitEvent(t, dto.EventError)
	require.Equal(t, "unauthenticated", event.Error.Code)
	require.Equal(t, CloseUnauthenticated, conn.code())
}

func TestChatServiceAuthFrame(t *testing.T) {
	f := newChatFixture(t)
	svc := newTestChatService(f, nil, ChatConfig{HandshakeTimeout: time.Second})

	t.Run("valid token", func(t *testing.T) {
		conn := newFakeConn()
		conn.sendFrame(t, map[string]interface{}{"type": dto.FrameAuth, "token": "bob-token"})
		done := make(chan struct{})
		go func() {
			defer close(done)
			svc.ServeConnection(conn, ChatConnectionOptions{})
		}()

		event := conn.waitEvent(t, dto.EventAuthenticated)
		require.Equal(t, uint(2), event.UserID)

		require.NoError(t, conn.Close())
		<-done
		require.Zero(t, conn.code())
	})

	t.Run("unknown token", func(t *testing.T) {
		conn := newFakeConn()
		conn.sendFrame(t, map[string]interface{}{"type": dto.FrameAuth, "token": "forged"})
		svc.ServeConnection(conn, ChatConnectionOptions{})

		event := conn.waitEvent(t, dto.EventError)
		require.Equal(t, "unauthenticated", event.Error.Code)
		require.Equal(t, CloseUnauthenticated, conn.code())
	})

	t.Run("first frame is not auth", func(t *testing.T) {
		conn := newFakeConn()
		conn.sendFrame(t, map[string]interface{}{"type": dto.FrameJoin, "room_id": 1})
		svc.ServeConnection(conn, ChatConnectionOptions{})
		require.Equal(t, CloseUnauthenticated, conn.code())
	})
}

func TestChatServiceFrameErrorsKeepConnectionOpen(t *testing.T) {
	f := newChatFixture(t)
	room := f.group(t, 1, 2)
	svc := newTestChatService(f, nil, ChatConfig{})

	outsider := connect(t, svc, 9)

	outsider.sendFrame(t, map[string]interface{}{"type": dto.FrameJoin, "room_id": room.ID})
	event := outsider.waitEvent(t, dto.EventError)
	require.Equal(t, "not_found", event.Error.Code)

	outsider.sendFrame(t, map[string]interface{}{"type": dto.FrameSendMessage, "room_id": room.ID, "text": "hi"})
	event = outsider.waitEvent(t, dto.EventError)
	require.Equal(t, "not_joined", event.Error.Code)

	outsider.inbound <- []byte(`{"type":"dance"}`)
	event = outsider.waitEvent(t, dto.EventError)
	require.Equal(t, "validation", event.Error.Code)

	outsider.inbound <- []byte(`not json`)
	event = outsider.waitEvent(t, dto.EventError)
	require.Equal(t, "validation", event.Error.Code)

	outsider.sendFrame(t, map[string]interface{}{"type": dto.FrameJoin})
	event = outsider.waitEvent(t, dto.EventError)
	require.Equal(t, "validation", event.Error.Code)

	select {
	case <-outsider.closed:
		t.Fatal("connection closed after frame errors")
	default:
	}
}

func TestChatServiceEvictMember(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.group(t, 1, 2)
	svc := newTestChatService(f, nil, ChatConfig{})

	alice := connect(t, svc, 1)
	bob := connect(t, svc, 2)
	joinRoom(t, alice, room.ID)
	joinRoom(t, bob, room.ID)

	require.NoError(t, f.rooms.KickMember(ctx, room.ID, 1, 2))
	svc.EvictMember(ctx, room.ID, 2)

	event := bob.waitEvent(t, dto.EventMemberRemoved)
	require.Equal(t, room.ID, event.RoomID)
	require.Equal(t, uint(2), event.UserID)
	alice.waitEvent(t, dto.EventMemberRemoved)

	bob.sendFrame(t, map[string]interface{}{"type": dto.FrameSendMessage, "room_id": room.ID, "text": "still here?"})
	event = bob.waitEvent(t, dto.EventError)
	require.Equal(t, "not_joined", event.Error.Code)

	bob.sendFrame(t, map[string]interface{}{"type": dto.FrameJoin, "room_id": room.ID})
	event = bob.waitEvent(t, dto.EventError)
	require.Equal(t, "not_found", event.Error.Code)
}

func TestChatHubDisconnectsSlowClient(t *testing.T) {
	f := newChatFixture(t)
	svc := newTestChatService(f, nil, ChatConfig{}).(*chatService)

	conn := newFakeConn()
	slow := &chatClient{
		id:       "slow",
		conn:     conn,
		send:     make(chan []byte, 1),
		service:  svc,
		identity: middleware.Identity{UserID: 5},
		ctx:      context.Background(),
		closed:   make(chan struct{}),
	}
	svc.hub.addSubscriber(slow)
	require.True(t, svc.hub.join(slow, 7))

	out := outbound{event: dto.RealtimeEvent{Type: dto.EventTyping}, payload: []byte(`{"type":"typing"}`)}
	require.Equal(t, 1, svc.hub.broadcastRoom(7, out, ""))
	require.Equal(t, 0, svc.hub.broadcastRoom(7, out, ""))

	require.True(t, slow.isClosed())
	require.Zero(t, svc.hub.roomSize(7))
	require.False(t, svc.hub.join(slow, 7))

	select {
	case <-conn.closed:
	default:
		t.Fatal("slow connection was not closed")
	}
}

func TestChatServicePushToUserReachesSubscribers(t *testing.T) {
	f := newChatFixture(t)
	svc := newTestChatService(f, nil, ChatConfig{})
	ctx := context.Background()

	socket := connect(t, svc, 3)
	events, cleanup := svc.Subscribe(3)
	defer cleanup()
	_, otherCleanup := svc.Subscribe(4)
	otherCleanup()
	otherCleanup()

	svc.PushToUser(ctx, 3, dto.NotificationResponse{ID: 11, UserID: 3, Message: "Report approved"})

	select {
	case event := <-events:
		require.Equal(t, dto.EventNotification, event.Type)
		require.Equal(t, uint(11), event.Notification.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification")
	}

	event := socket.waitEvent(t, dto.EventNotification)
	require.Equal(t, "Report approved", event.Notification.Message)

	cleanup()
	_, open := <-events
	require.False(t, open)
}

func TestChatServiceRelaysAcrossNodesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newChatFixture(t)
	room := f.group(t, 1, 2)
	cfg := ChatConfig{ChannelBase: "officehub:test"}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	nodeA := newTestChatService(f, client, cfg)
	nodeB := newTestChatService(f, client, cfg)
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	alice := connect(t, nodeA, 1)
	bob := connect(t, nodeB, 2)
	joinRoom(t, alice, room.ID)
	joinRoom(t, bob, room.ID)

	bob.sendFrame(t, map[string]interface{}{"type": dto.FrameSendMessage, "room_id": room.ID, "text": "from node b"})

	event := alice.waitEvent(t, dto.EventNewMessage)
	require.Equal(t, "from node b", event.Message.Text)

	bob.waitEvent(t, dto.EventNewMessage)
	bob.requireNoEvent(t, dto.EventNewMessage, 200*time.Millisecond)

	nodeB.PushToUser(ctx, 1, dto.NotificationResponse{ID: 5, UserID: 1, Message: "Task overdue"})
	event = alice.waitEvent(t, dto.EventNotification)
	require.Equal(t, uint(5), event.Notification.ID)
}

func TestChatServiceRelaysEachEventOnceWithRedisAndNATS(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	f := newChatFixture(t)
	room := f.group(t, 1, 2)
	cfg := ChatConfig{ChannelBase: "officehub:test"}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	nodeA := newRelayedChatService(f, redisClient, dialNATS(t, srv.ClientURL()), cfg)
	nodeB := newRelayedChatService(f, redisClient, dialNATS(t, srv.ClientURL()), cfg)
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	alice := connect(t, nodeA, 1)
	bob := connect(t, nodeB, 2)
	joinRoom(t, alice, room.ID)
	joinRoom(t, bob, room.ID)

	alice.sendFrame(t, map[string]interface{}{"type": dto.FrameSendMessage, "room_id": room.ID, "text": "hi"})
	event := bob.waitEvent(t, dto.EventNewMessage)
	require.Equal(t, "hi", event.Message.Text)
	bob.requireNoEvent(t, dto.EventNewMessage, 500*time.Millisecond)

	alice.sendFrame(t, map[string]interface{}{"type": dto.FrameTyping, "room_id": room.ID, "is_typing": true})
	bob.waitEvent(t, dto.EventTyping)
	bob.requireNoEvent(t, dto.EventTyping, 300*time.Millisecond)

	nodeA.PushToUser(ctx, 2, dto.NotificationResponse{ID: 9, UserID: 2, Message: "Report approved"})
	event = bob.waitEvent(t, dto.EventNotification)
	require.Equal(t, uint(9), event.Notification.ID)
	bob.requireNoEvent(t, dto.EventNotification, 300*time.Millisecond)
}

func TestChatServiceServeConnectionWaitsForWriter(t *testing.T) {
	f := newChatFixture(t)
	svc := newTestChatService(f, nil, ChatConfig{})

	conn := &stallingConn{fakeConn: newFakeConn(), writing: make(chan struct{}), release: make(chan struct{})}
	identity := middleware.Identity{UserID: 1}
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.ServeConnection(conn, ChatConnectionOptions{Identity: &identity})
	}()

	select {
	case <-conn.writing:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never started")
	}
	require.NoError(t, conn.Close())

	select {
	case <-done:
		t.Fatal("ServeConnection returned while a write was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(conn.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConnection did not return after the writer stopped")
	}
}

func BenchmarkChatHubBroadcastRoom(b *testing.B) {
	svc := NewChatService(nil, nil, verifierStub{}, nil, nil, validator.New(), ChatConfig{}, testLogger()).(*chatService)

	for i := 0; i < 200; i++ {
		client := &chatClient{
			id:       "bench-" + strconv.Itoa(i),
			conn:     newFakeConn(),
			send:     make(chan []byte, 1024),
			service:  svc,
			identity: middleware.Identity{UserID: uint(i + 1)},
			ctx:      context.Background(),
			closed:   make(chan struct{}),
		}
		svc.hub.join(client, 1)
	}

	out := outbound{event: dto.RealtimeEvent{Type: dto.EventTyping}, payload: []byte(`{"type":"typing"}`)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%1000 == 0 {
			b.StopTimer()
			svc.hub.mu.RLock()
			for client := range svc.hub.rooms[1] {
				for len(client.send) > 0 {
					<-client.send
				}
			}
			svc.hub.mu.RUnlock()
			b.StartTimer()
		}
		svc.hub.broadcastRoom(1, out, "")
	}
}

