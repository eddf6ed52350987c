package service

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/observability"
)

// outbound is an event together with its encoded frame, marshalled once per fan-out.
type outbound struct {
	event   dto.RealtimeEvent
	payload []byte
}

// subscriber receives events addressed to a user. deliver reports false when the
// subscriber cannot keep up and must be disconnected.
type subscriber interface {
	owner() uint
	deliver(out outbound) bool
	disconnect()
}

// chatHub tracks room groups, per-connection room sets and per-user subscribers.
type chatHub struct {
	mu          sync.RWMutex
	rooms       map[uint]map[*chatClient]struct{}
	memberships map[*chatClient]map[uint]struct{}
	users       map[uint]map[subscriber]struct{}
	log         zerolog.Logger
}

func newChatHub(logger zerolog.Logger) *chatHub {
	return &chatHub{
		rooms:       make(map[uint]map[*chatClient]struct{}),
		memberships: make(map[*chatClient]map[uint]struct{}),
		users:       make(map[uint]map[subscriber]struct{}),
		log:         logger.With().Str("component", "chat_hub").Logger(),
	}
}

func (h *chatHub) addSubscriber(sub subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := sub.owner()
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[subscriber]struct{})
	}
	h.users[userID][sub] = struct{}{}
}

func (h *chatHub) removeSubscriber(sub subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSubscriberLocked(sub)
}

func (h *chatHub) dropSubscriberLocked(sub subscriber) {
	userID := sub.owner()
	if subs, ok := h.users[userID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.users, userID)
		}
	}
}

// join adds the connection to the room group. A connection that is already closing is never added.
func (h *chatHub) join(client *chatClient, roomID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.isClosed() {
		return false
	}

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*chatClient]struct{})
	}
	h.rooms[roomID][client] = struct{}{}

	if _, ok := h.memberships[client]; !ok {
		h.memberships[client] = make(map[uint]struct{})
	}
	h.memberships[client][roomID] = struct{}{}
	return true
}

func (h *chatHub) leave(client *chatClient, roomID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(client, roomID)
}

func (h *chatHub) leaveLocked(client *chatClient, roomID uint) bool {
	rooms, ok := h.memberships[client]
	if !ok {
		return false
	}
	if _, joined := rooms[roomID]; !joined {
		return false
	}

	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(h.memberships, client)
	}
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	return true
}

func (h *chatHub) isJoined(client *chatClient, roomID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.memberships[client][roomID]
	return ok
}

// remove drops the connection from every room group and from its user channel.
func (h *chatHub) remove(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.memberships[client] {
		if clients, ok := h.rooms[roomID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	delete(h.memberships, client)
	h.dropSubscriberLocked(client)
}

// evict removes every connection of userID from the room group and returns them.
func (h *chatHub) evict(roomID, userID uint) []*chatClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	var evicted []*chatClient
	for client := range h.rooms[roomID] {
		if client.owner() == userID {
			evicted = append(evicted, client)
		}
	}
	for _, client := range evicted {
		h.leaveLocked(client, roomID)
	}
	return evicted
}

// broadcastRoom delivers to every connection in the room except excludeConn.
// Connections whose queue is full are closed after the lock is released.
func (h *chatHub) broadcastRoom(roomID uint, out outbound, excludeConn string) int {
	h.mu.RLock()
	var slow []*chatClient
	delivered := 0
	for client := range h.rooms[roomID] {
		if excludeConn != "" && client.id == excludeConn {
			continue
		}
		if client.deliver(out) {
			delivered++
			continue
		}
		slow = append(slow, client)
	}
	h.mu.RUnlock()

	h.disconnectSlow(slow, roomID)
	return delivered
}

// pushUser delivers to every subscriber of the user's private channel.
func (h *chatHub) pushUser(userID uint, out outbound) int {
	h.mu.RLock()
	var slow []subscriber
	delivered := 0
	for sub := range h.users[userID] {
		if sub.deliver(out) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		observability.RealtimeDropped().WithLabelValues("websocket").Inc()
		h.log.Warn().Uint("user_id", userID).Msg("disconnecting slow realtime subscriber")
		sub.disconnect()
	}
	return delivered
}

func (h *chatHub) disconnectSlow(slow []*chatClient, roomID uint) {
	for _, client := range slow {
		observability.RealtimeDropped().WithLabelValues("websocket").Inc()
		h.log.Warn().Uint("room_id", roomID).Uint("user_id", client.owner()).Str("conn_id", client.id).Msg("disconnecting slow chat client")
		client.disconnect()
	}
}

// roomSize reports how many local connections are in the room group.
func (h *chatHub) roomSize(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
