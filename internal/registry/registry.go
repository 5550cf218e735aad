// Package registry tracks which users hold live channels on THIS process and
// which chats they are currently viewing. It knows nothing about connections
// on other processes; the bridge covers those.
package registry

import (
	"context"
	"log"
	"sync"

	"github.com/lingolink/realtime-core/internal/protocol"
)

// Conn is one physical channel to a client device. gorilla websocket
// connections satisfy it through a small adapter; tests use fakes.
type Conn interface {
	WriteFrame(frame protocol.ServerFrame) error
}

// MembershipStore resolves chat membership from persistence. Needed for
// notifications that must reach members who are online but not currently
// viewing the chat.
type MembershipStore interface {
	ListChatMemberIDs(ctx context.Context, chatID string) ([]string, error)
}

type Registry struct {
	mu          sync.RWMutex
	connections map[string]map[Conn]struct{}   // userID -> live handles
	viewers     map[string]map[string]struct{} // chatID -> userIDs viewing

	members MembershipStore
}

func New(members MembershipStore) *Registry {
	return &Registry{
		connections: make(map[string]map[Conn]struct{}),
		viewers:     make(map[string]map[string]struct{}),
		members:     members,
	}
}

// Connect registers a handle. A user may hold many at once (multi-device).
func (r *Registry) Connect(userID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.connections[userID]
	if set == nil {
		set = make(map[Conn]struct{})
		r.connections[userID] = set
	}
	set[c] = struct{}{}
}

// Disconnect removes a handle. Dropping the last handle removes the user
// entirely and clears them from every chat's viewer set.
func (r *Registry) Disconnect(userID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.connections[userID]
	if set == nil {
		return
	}
	delete(set, c)
	if len(set) > 0 {
		return
	}
	delete(r.connections, userID)
	for chatID, viewerSet := range r.viewers {
		delete(viewerSet, userID)
		if len(viewerSet) == 0 {
			delete(r.viewers, chatID)
		}
	}
}

// IsOnline reports whether the user holds at least one live handle here.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[userID]) > 0
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connections))
	for id := range r.connections {
		out = append(out, id)
	}
	return out
}

func (r *Registry) JoinChat(userID, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.viewers[chatID]
	if set == nil {
		set = make(map[string]struct{})
		r.viewers[chatID] = set
	}
	set[userID] = struct{}{}
}

func (r *Registry) LeaveChat(userID, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.viewers[chatID]
	if set == nil {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(r.viewers, chatID)
	}
}

// IsViewing reports whether the user currently has the chat open here.
func (r *Registry) IsViewing(userID, chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.viewers[chatID][userID]
	return ok
}

// SendToUser writes the frame to every live handle the user holds.
// Best-effort: handles that fail to write are pruned silently.
func (r *Registry) SendToUser(userID string, frame protocol.ServerFrame) {
	for _, c := range r.handlesFor(userID) {
		if err := c.WriteFrame(frame); err != nil {
			r.prune(userID, c)
		}
	}
}

// BroadcastToChatViewers delivers to every user currently viewing the chat,
// optionally excluding the sender.
func (r *Registry) BroadcastToChatViewers(chatID string, frame protocol.ServerFrame, excludeUserID string) {
	for _, userID := range r.viewersOf(chatID) {
		if userID == excludeUserID {
			continue
		}
		r.SendToUser(userID, frame)
	}
}

// NotifyAllChatMembers delivers to every *member* of the chat who is online
// here, viewing or not. Membership comes from persistence, viewer state does
// not apply.
func (r *Registry) NotifyAllChatMembers(ctx context.Context, chatID string, frame protocol.ServerFrame, excludeUserID string) {
	memberIDs, err := r.members.ListChatMemberIDs(ctx, chatID)
	if err != nil {
		log.Printf("metric=registry_notify status=error chat_id=%s err=%q", chatID, err.Error())
		return
	}
	for _, userID := range memberIDs {
		if userID == excludeUserID {
			continue
		}
		r.SendToUser(userID, frame)
	}
}

// handlesFor snapshots the handle set so fan-out never iterates a map that a
// concurrent connect/disconnect is mutating.
func (r *Registry) handlesFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.connections[userID]
	out := make([]Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) viewersOf(chatID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.viewers[chatID]
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}

func (r *Registry) prune(userID string, c Conn) {
	log.Printf("metric=registry_prune user_id=%s", userID)
	r.Disconnect(userID, c)
}
