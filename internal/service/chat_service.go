package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/middleware"
	"github.com/noah-isme/officehub-api/internal/observability"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultChatSendBuffer   = 64

	scopeRoom  = "room"
	scopeUser  = "user"
	scopeEvict = "evict"

	relayNone  = ""
	relayRedis = "redis"
	relayNATS  = "nats"
)

//go:embed schema/client_frame.json
var clientFrameSchemaJSON string

var clientFrameSchema = jsonschema.MustCompileString("client_frame.json", clientFrameSchemaJSON)

// ErrNotJoined is reported when a frame targets a room the connection has not joined.
var ErrNotJoined = errors.New("room not joined")

// ChatConfig tunes the realtime transport.
type ChatConfig struct {
	HandshakeTimeout time.Duration
	SendBuffer       int
	ChannelBase      string
}

// ChatConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ChatConnectionOptions struct {
	// Identity is set when the upgrade request already carried a valid credential.
	Identity      *middleware.Identity
	CorrelationID string
	Context       context.Context
}

// ChatService multiplexes authenticated websocket connections into room groups and user channels.
type ChatService interface {
	ServeConnection(conn ChatConn, opts ChatConnectionOptions)
	BroadcastMessage(ctx context.Context, message dto.ChatMessageResponse)
	BroadcastRead(ctx context.Context, roomID, readerID uint, count int64)
	EvictMember(ctx context.Context, roomID, userID uint)
	PushToUser(ctx context.Context, userID uint, notification dto.NotificationResponse)
	Subscribe(userID uint) (<-chan dto.RealtimeEvent, func())
	Start(ctx context.Context)
}

type chatService struct {
	rooms       RoomService
	messages    MessageService
	verifier    middleware.TokenVerifier
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	hub         *chatHub
	nodeID      string
	relay       string
	cfg         ChatConfig
}

// chatEnvelope carries one fan-out across nodes.
type chatEnvelope struct {
	Source      string            `json:"source"`
	Scope       string            `json:"scope"`
	TargetID    uint              `json:"target_id"`
	UserID      uint              `json:"user_id,omitempty"`
	ExcludeConn string            `json:"exclude_conn,omitempty"`
	Event       dto.RealtimeEvent `json:"event"`
}

// NewChatService creates the realtime transport. Redis and NATS are optional fan-out buses;
// when both are configured only NATS relays events, so every remote node applies an event once.
func NewChatService(rooms RoomService, messages MessageService, verifier middleware.TokenVerifier, redisClient *redis.Client, natsConn *nats.Conn, validate *validator.Validate, cfg ChatConfig, logger zerolog.Logger) ChatService {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultChatSendBuffer
	}

	streamChannel := ""
	natsSubject := ""
	if cfg.ChannelBase != "" {
		streamChannel = cfg.ChannelBase + ":chat"
		natsSubject = strings.ReplaceAll(cfg.ChannelBase, ":", ".") + ".chat"
	}

	relay := relayNone
	switch {
	case natsConn != nil && natsSubject != "":
		relay = relayNATS
	case redisClient != nil && streamChannel != "":
		relay = relayRedis
	}

	return &chatService{
		rooms:       rooms,
		messages:    messages,
		verifier:    verifier,
		redis:       redisClient,
		redisStream: streamChannel,
		nats:        natsConn,
		natsSubject: natsSubject,
		validator:   validate,
		logger:      logger.With().Str("component", "chat_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/officehub-api/internal/service/chat"),
		hub:         newChatHub(logger),
		nodeID:      uuid.NewString(),
		relay:       relay,
		cfg:         cfg,
	}
}

// Start subscribes to the relay bus. The subscription is confirmed before Start returns.
func (s *chatService) Start(ctx context.Context) {
	switch s.relay {
	case relayRedis:
		pubsub := s.redis.Subscribe(ctx, s.redisStream)
		if _, err := pubsub.Receive(ctx); err != nil {
			s.logger.Error().Err(err).Msg("failed to subscribe to redis chat channel")
			_ = pubsub.Close()
			return
		}
		go s.consumeRedis(ctx, pubsub)
	case relayNATS:
		s.consumeNATS(ctx)
	}
}

func (s *chatService) ServeConnection(conn ChatConn, opts ChatConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	baseCtx = middleware.ContextWithCorrelation(baseCtx, opts.CorrelationID)

	client := &chatClient{
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, s.cfg.SendBuffer),
		service:    s,
		ctx:        baseCtx,
		closed:     make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	conn.SetReadLimit(chatMaxFrameSize)

	if opts.Identity != nil {
		client.identity = *opts.Identity
	} else {
		identity, err := s.awaitAuth(client)
		if err != nil {
			s.logger.Info().Err(err).Str("conn_id", client.id).Msg("chat handshake rejected")
			client.reject(CloseUnauthenticated, "unauthenticated")
			return
		}
		client.identity = identity
	}

	s.hub.addSubscriber(client)
	observability.ChatConnections().Inc()
	defer observability.ChatConnections().Dec()

	s.logger.Debug().Uint("user_id", client.owner()).Str("conn_id", client.id).Msg("chat client authenticated")

	go client.writer()
	client.emit(dto.RealtimeEvent{Type: dto.EventAuthenticated, UserID: client.owner()})
	client.reader()

	// The upgraded conn is recycled once this returns.
	<-client.writerDone
}

// awaitAuth requires the first frame to be a valid auth frame within the handshake timeout.
func (s *chatService) awaitAuth(client *chatClient) (middleware.Identity, error) {
	if err := client.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return middleware.Identity{}, err
	}

	_, data, err := client.conn.ReadMessage()
	if err != nil {
		return middleware.Identity{}, fmt.Errorf("await auth frame: %w", err)
	}

	frame, err := s.decodeFrame(data)
	if err != nil {
		return middleware.Identity{}, err
	}
	if frame.Type != dto.FrameAuth {
		return middleware.Identity{}, fmt.Errorf("first frame must be auth, got %q", frame.Type)
	}

	return s.verifier.Verify(client.ctx, frame.Token)
}

// decodeFrame checks the frame against the wire schema and then the struct rules.
func (s *chatService) decodeFrame(data []byte) (dto.ClientFrame, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return dto.ClientFrame{}, validationError("frame is not valid JSON")
	}
	if err := clientFrameSchema.Validate(raw); err != nil {
		return dto.ClientFrame{}, validationError("frame rejected: %v", err)
	}

	var frame dto.ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return dto.ClientFrame{}, validationError("frame rejected: %v", err)
	}
	if err := validateStruct(s.validator, frame); err != nil {
		return dto.ClientFrame{}, err
	}
	return frame, nil
}

func (s *chatService) handleFrame(client *chatClient, data []byte) {
	frame, err := s.decodeFrame(data)
	if err != nil {
		s.emitDomainError(client, err)
		return
	}

	ctx, span := s.tracer.Start(client.ctx, "chat.frame", trace.WithAttributes(
		attribute.String("chat.frame", frame.Type),
		attribute.Int("chat.user_id", int(client.owner())),
	))
	defer span.End()

	switch frame.Type {
	case dto.FrameAuth:
		err = conflictError("connection is already authenticated")
	case dto.FrameJoin:
		err = s.handleJoin(ctx, client, frame.RoomID)
	case dto.FrameLeave:
		err = s.handleLeave(client, frame.RoomID)
	case dto.FrameSendMessage:
		err = s.handleSend(ctx, client, frame)
	case dto.FrameTyping:
		err = s.handleTyping(client, frame)
	case dto.FrameMarkRead:
		err = s.handleMarkRead(ctx, client, frame.RoomID)
	}

	if err != nil {
		span.RecordError(err)
		s.emitDomainError(client, err)
	}
}

func (s *chatService) handleJoin(ctx context.Context, client *chatClient, roomID uint) error {
	room, err := s.rooms.GetRoomForUser(ctx, roomID, client.owner())
	if err != nil {
		return err
	}
	if !s.hub.join(client, roomID) {
		return nil
	}
	client.current = roomID
	client.emit(dto.RealtimeEvent{Type: dto.EventJoined, RoomID: roomID, Room: &room})
	return nil
}

func (s *chatService) handleLeave(client *chatClient, roomID uint) error {
	if !s.hub.leave(client, roomID) {
		return ErrNotJoined
	}
	if client.current == roomID {
		client.current = 0
	}
	client.emit(dto.RealtimeEvent{Type: dto.EventLeft, RoomID: roomID})
	return nil
}

func (s *chatService) handleSend(ctx context.Context, client *chatClient, frame dto.ClientFrame) error {
	roomID, err := s.joinedRoom(client, frame.RoomID)
	if err != nil {
		return err
	}

	message, err := s.messages.Send(ctx, roomID, client.owner(), dto.SendMessageRequest{Text: frame.Text}, nil)
	if err != nil {
		return err
	}

	observability.ChatMessages().WithLabelValues("websocket").Inc()
	s.BroadcastMessage(ctx, message)
	return nil
}

func (s *chatService) handleTyping(client *chatClient, frame dto.ClientFrame) error {
	roomID, err := s.joinedRoom(client, frame.RoomID)
	if err != nil {
		return err
	}

	isTyping := frame.IsTyping
	s.fanout(client.ctx, chatEnvelope{
		Scope:       scopeRoom,
		TargetID:    roomID,
		ExcludeConn: client.id,
		Event:       dto.RealtimeEvent{Type: dto.EventTyping, RoomID: roomID, UserID: client.owner(), IsTyping: &isTyping},
	})
	return nil
}

func (s *chatService) handleMarkRead(ctx context.Context, client *chatClient, roomID uint) error {
	if roomID == 0 {
		roomID = client.current
	}
	if roomID == 0 {
		return ErrNotJoined
	}

	count, err := s.messages.MarkRead(ctx, roomID, client.owner())
	if err != nil {
		return err
	}
	s.BroadcastRead(ctx, roomID, client.owner(), count)
	return nil
}

// joinedRoom resolves the frame's target, defaulting to the current room, and requires it to be joined.
func (s *chatService) joinedRoom(client *chatClient, roomID uint) (uint, error) {
	if roomID == 0 {
		roomID = client.current
	}
	if roomID == 0 || !s.hub.isJoined(client, roomID) {
		return 0, ErrNotJoined
	}
	return roomID, nil
}

func (s *chatService) emitDomainError(client *chatClient, err error) {
	code, message := realtimeErrorCode(err)
	if code == "internal" {
		s.logger.Error().Err(err).Str("conn_id", client.id).Str("correlation_id", middleware.CorrelationIDFromContext(client.ctx)).Msg("chat frame failed")
	}
	client.emitError(code, message)
}

func realtimeErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, ErrNotJoined):
		return "not_joined", err.Error()
	case errors.Is(err, ErrValidation):
		return "validation", err.Error()
	case errors.Is(err, ErrForbidden):
		return "forbidden", err.Error()
	case errors.Is(err, ErrNotFound):
		return "not_found", err.Error()
	case errors.Is(err, ErrConflict):
		return "conflict", err.Error()
	default:
		return "internal", "internal error"
	}
}

func (s *chatService) BroadcastMessage(ctx context.Context, message dto.ChatMessageResponse) {
	msg := message
	s.fanout(ctx, chatEnvelope{
		Scope:    scopeRoom,
		TargetID: message.RoomID,
		Event:    dto.RealtimeEvent{Type: dto.EventNewMessage, RoomID: message.RoomID, UserID: message.SenderID, Message: &msg},
	})
}

func (s *chatService) BroadcastRead(ctx context.Context, roomID, readerID uint, count int64) {
	read := count
	s.fanout(ctx, chatEnvelope{
		Scope:    scopeRoom,
		TargetID: roomID,
		Event:    dto.RealtimeEvent{Type: dto.EventMessagesRead, RoomID: roomID, UserID: readerID, ReadCount: &read},
	})
}

// EvictMember drops the user's connections from the room group on every node and tells the room.
func (s *chatService) EvictMember(ctx context.Context, roomID, userID uint) {
	s.fanout(ctx, chatEnvelope{
		Scope:    scopeEvict,
		TargetID: roomID,
		UserID:   userID,
		Event:    dto.RealtimeEvent{Type: dto.EventMemberRemoved, RoomID: roomID, UserID: userID},
	})
}

// PushToUser delivers a notification to the user's private channel.
func (s *chatService) PushToUser(ctx context.Context, userID uint, notification dto.NotificationResponse) {
	n := notification
	s.fanout(ctx, chatEnvelope{
		Scope:    scopeUser,
		TargetID: userID,
		Event:    dto.RealtimeEvent{Type: dto.EventNotification, UserID: userID, Notification: &n},
	})
}

// Subscribe attaches a buffered listener to the user's private channel; events are dropped when it is full.
func (s *chatService) Subscribe(userID uint) (<-chan dto.RealtimeEvent, func()) {
	sub := &channelSubscriber{
		userID: userID,
		events: make(chan dto.RealtimeEvent, s.cfg.SendBuffer),
		log:    s.logger,
	}
	s.hub.addSubscriber(sub)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.hub.removeSubscriber(sub)
			close(sub.events)
		})
	}
	return sub.events, cleanup
}

// fanout applies the envelope on this node and relays it to the others.
func (s *chatService) fanout(ctx context.Context, envelope chatEnvelope) {
	envelope.Source = s.nodeID
	if envelope.Event.SentAt.IsZero() {
		envelope.Event.SentAt = time.Now().UTC()
	}

	s.apply(envelope, true)
	if err := s.publish(ctx, envelope); err != nil {
		s.logger.Warn().Err(err).Str("scope", envelope.Scope).Msg("failed to publish chat event")
	}
}

func (s *chatService) apply(envelope chatEnvelope, local bool) {
	payload, err := json.Marshal(envelope.Event)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode realtime event")
		return
	}
	out := outbound{event: envelope.Event, payload: payload}

	exclude := ""
	if local {
		exclude = envelope.ExcludeConn
	}

	switch envelope.Scope {
	case scopeRoom:
		s.hub.broadcastRoom(envelope.TargetID, out, exclude)
	case scopeUser:
		s.hub.pushUser(envelope.TargetID, out)
	case scopeEvict:
		evicted := s.hub.evict(envelope.TargetID, envelope.UserID)
		s.hub.broadcastRoom(envelope.TargetID, out, "")
		for _, client := range evicted {
			if !client.deliver(out) {
				client.disconnect()
			}
		}
	}
}

func (s *chatService) publish(ctx context.Context, envelope chatEnvelope) error {
	if s.relay == relayNone {
		return nil
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if s.relay == relayNATS {
		return s.nats.Publish(s.natsSubject, payload)
	}
	return s.redis.Publish(context.WithoutCancel(ctx), s.redisStream, payload).Err()
}

func (s *chatService) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("chat redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

// consumeNATS subscribes without a queue group so every node sees every event.
func (s *chatService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats chat subject")
		return
	}
	if err := s.nats.Flush(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to confirm nats chat subscription")
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain chat nats subscription")
		}
	}()
}

func (s *chatService) handleEnvelope(data []byte) {
	var envelope chatEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid chat event")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	s.apply(envelope, false)
}

// channelSubscriber feeds a user's private events into a channel, as used by the SSE stream.
type channelSubscriber struct {
	userID uint
	events chan dto.RealtimeEvent
	log    zerolog.Logger
}

func (c *channelSubscriber) owner() uint {
	return c.userID
}

func (c *channelSubscriber) deliver(out outbound) bool {
	select {
	case c.events <- out.event:
	default:
		observability.RealtimeDropped().WithLabelValues("sse").Inc()
		c.log.Warn().Uint("user_id", c.userID).Str("type", out.event.Type).Msg("dropping realtime event for slow stream")
	}
	return true
}

func (c *channelSubscriber) disconnect() {}
