// Package channel owns the websocket endpoint: one Session per connection,
// authenticated before any frame is processed, fed into the translation
// pipeline and the chat fan-out.
package channel

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/lingolink/realtime-core/internal/auth"
	"github.com/lingolink/realtime-core/internal/bridge"
	"github.com/lingolink/realtime-core/internal/metrics"
	"github.com/lingolink/realtime-core/internal/model"
	"github.com/lingolink/realtime-core/internal/pipeline"
	"github.com/lingolink/realtime-core/internal/protocol"
	"github.com/lingolink/realtime-core/internal/registry"
	"github.com/lingolink/realtime-core/internal/store"
)

// closeCodeAuthFailure is sent when the connection fails authentication.
// 4000-4999 is the application range in RFC 6455.
const closeCodeAuthFailure = 4401

const (
	writeTimeout    = 10 * time.Second
	sessionStateTTL = time.Hour
)

// ChatStore is the persistence surface the channel needs.
type ChatStore interface {
	InsertMessage(ctx context.Context, in store.InsertMessageInput) (*model.Message, error)
	IsChatMember(ctx context.Context, chatID, userID string) (bool, error)
	MarkChatRead(ctx context.Context, chatID, userID string) error
}

// Hub upgrades websocket connections and routes cross-instance traffic
// between the bridge and locally connected sessions.
type Hub struct {
	issuer   *auth.Issuer
	guard    auth.Verifier
	registry *registry.Registry
	bridge   *bridge.Bridge
	pipe     *pipeline.Orchestrator
	chats    ChatStore
	rdb      redis.UniversalClient

	// instanceID tags published bridge payloads so this hub can ignore
	// its own echoes.
	instanceID string
	upgrader   websocket.Upgrader

	ctx context.Context

	topicMu   sync.Mutex
	topicRefs map[string]int
}

func NewHub(issuer *auth.Issuer, guard auth.Verifier, reg *registry.Registry, br *bridge.Bridge, pipe *pipeline.Orchestrator, chats ChatStore, rdb redis.UniversalClient) *Hub {
	return &Hub{
		issuer:     issuer,
		guard:      guard,
		registry:   reg,
		bridge:     br,
		pipe:       pipe,
		chats:      chats,
		rdb:        rdb,
		instanceID: uuid.NewString(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:       context.Background(),
		topicRefs: map[string]int{},
	}
}

// Start subscribes the hub to the instance-wide topics. chat:* topics are
// subscribed lazily as sessions join chats.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx = ctx
	return h.bridge.Subscribe(ctx, bridge.PresenceTopic(), h.onPresence)
}

// ServeWS authenticates and upgrades one websocket connection, then blocks
// on its read loop until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("level=warn msg=ws_upgrade_failed err=%v", err)
		return
	}

	userID, ok := h.authenticate(r)
	if !ok {
		metrics.Default().IncCounter("lingo_ws_connections_total", map[string]string{"event": "auth_reject"})
		msg := websocket.FormatCloseMessage(closeCodeAuthFailure, "authentication required")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}

	s := newSession(h, conn, userID)
	h.registry.Connect(userID, s)
	metrics.Default().IncCounter("lingo_ws_connections_total", map[string]string{"event": "open"})
	log.Printf("msg=ws_open user_id=%s session_id=%s", userID, s.id)
	h.publishPresence(userID, "online")

	s.readLoop()

	s.close()
	h.registry.Disconnect(userID, s)
	metrics.Default().IncCounter("lingo_ws_connections_total", map[string]string{"event": "close"})
	log.Printf("msg=ws_close user_id=%s session_id=%s", userID, s.id)
	if !h.registry.IsOnline(userID) {
		h.publishPresence(userID, "offline")
	}
}

// authenticate resolves the user from a token query parameter or a bearer
// header. Browsers cannot set headers on websocket dials, hence the query
// form.
func (h *Hub) authenticate(r *http.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
			token = strings.TrimPrefix(v, "Bearer ")
		}
	}
	if token == "" {
		return "", false
	}
	claims, err := h.issuer.ParseAccessToken(token)
	if err != nil {
		return "", false
	}
	if h.guard.UserRevoked(r.Context(), claims.UserID) {
		return "", false
	}
	return claims.UserID, true
}

func (h *Hub) publishPresence(userID, status string) {
	h.bridge.Publish(h.ctx, bridge.PresenceTopic(), map[string]any{
		"origin":  h.instanceID,
		"user_id": userID,
		"status":  status,
	})
	h.fanOutPresence(userID, status)
}

func (h *Hub) fanOutPresence(userID, status string) {
	frame := protocol.Event(protocol.FramePresence, map[string]any{
		"user_id": userID,
		"status":  status,
	})
	for _, id := range h.registry.OnlineUserIDs() {
		if id == userID {
			continue
		}
		h.registry.SendToUser(id, frame)
	}
}

func (h *Hub) onPresence(_ string, payload map[string]any) {
	if payload["origin"] == h.instanceID {
		return
	}
	userID, _ := payload["user_id"].(string)
	status, _ := payload["status"].(string)
	if userID == "" || status == "" {
		return
	}
	h.fanOutPresence(userID, status)
}

// retainChatTopic subscribes the hub to a chat topic on first local viewer
// and keeps a refcount so the subscription survives until the last viewer
// leaves.
func (h *Hub) retainChatTopic(chatID string) {
	h.topicMu.Lock()
	defer h.topicMu.Unlock()
	topic := bridge.ChatTopic(chatID)
	h.topicRefs[topic]++
	if h.topicRefs[topic] == 1 {
		if err := h.bridge.Subscribe(h.ctx, topic, h.onChatEvent); err != nil {
			log.Printf("level=warn msg=bridge_subscribe_failed topic=%s err=%v", topic, err)
		}
	}
}

func (h *Hub) releaseChatTopic(chatID string) {
	h.topicMu.Lock()
	defer h.topicMu.Unlock()
	topic := bridge.ChatTopic(chatID)
	if h.topicRefs[topic] == 0 {
		return
	}
	h.topicRefs[topic]--
	if h.topicRefs[topic] == 0 {
		delete(h.topicRefs, topic)
		if err := h.bridge.Unsubscribe(h.ctx, topic); err != nil {
			log.Printf("level=warn msg=bridge_unsubscribe_failed topic=%s err=%v", topic, err)
		}
	}
}

// onChatEvent replays a chat event published by another instance to the
// local sessions that should see it.
func (h *Hub) onChatEvent(topic string, payload map[string]any) {
	if payload["origin"] == h.instanceID {
		return
	}
	chatID := strings.TrimPrefix(topic, "chat:")
	event, _ := payload["event"].(string)
	senderID, _ := payload["sender_id"].(string)
	data, _ := payload["data"].(map[string]any)
	if chatID == "" || event == "" || data == nil {
		return
	}

	frame := protocol.Event(protocol.FrameType(event), data)
	switch protocol.FrameType(event) {
	case protocol.FrameNewMessage:
		h.registry.NotifyAllChatMembers(h.ctx, chatID, frame, senderID)
	case protocol.FrameTyping, protocol.FrameReadReceipt:
		h.registry.BroadcastToChatViewers(chatID, frame, senderID)
	}
}

func (h *Hub) publishChatEvent(chatID, event, senderID string, data map[string]any) {
	h.bridge.Publish(h.ctx, bridge.ChatTopic(chatID), map[string]any{
		"origin":    h.instanceID,
		"event":     event,
		"sender_id": senderID,
		"data":      data,
	})
}
