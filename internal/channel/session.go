package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lingolink/realtime-core/internal/model"
	"github.com/lingolink/realtime-core/internal/pipeline"
	"github.com/lingolink/realtime-core/internal/protocol"
	"github.com/lingolink/realtime-core/internal/store"
)

var errSessionClosed = errors.New("session closed")

// Session is the state of one websocket connection. Writes are serialized
// through a mutex because the pipeline, the registry, and the read loop all
// send frames concurrently.
type Session struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	userID string

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	closed  bool

	mu     sync.Mutex
	tctx   model.TranslationContext
	joined map[string]struct{}
}

func newSession(h *Hub, conn *websocket.Conn, userID string) *Session {
	ctx, cancel := context.WithCancel(h.ctx)
	return &Session{
		hub:    h,
		conn:   conn,
		id:     uuid.NewString(),
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
		tctx:   model.NewTranslationContext(userID),
		joined: map[string]struct{}{},
	}
}

// WriteFrame sends one frame to the client. Safe for concurrent use; returns
// errSessionClosed after close so the registry prunes the handle.
func (s *Session) WriteFrame(frame protocol.ServerFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(frame)
}

func (s *Session) readLoop() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.DecodeClientFrame(raw)
		if err != nil {
			_ = s.WriteFrame(protocol.Error(err.Error()))
			continue
		}
		s.handle(frame)
	}
}

func (s *Session) handle(frame protocol.ClientFrame) {
	switch frame.Type {
	case protocol.FrameConfig:
		s.handleConfig(frame)
	case protocol.FrameAudio:
		s.handleAudio(frame)
	case protocol.FrameJoinChat:
		s.handleJoinChat(frame.ChatID)
	case protocol.FrameLeaveChat:
		s.handleLeaveChat(frame.ChatID)
	case protocol.FrameMessage:
		s.handleMessage(frame)
	case protocol.FrameTyping:
		s.handleTyping(frame.ChatID)
	case protocol.FrameMarkRead:
		s.handleMarkRead(frame.ChatID)
	case protocol.FramePing:
		_ = s.WriteFrame(protocol.Pong())
	}
}

// handleConfig merges the provided fields into the translation context; a
// config frame only overrides what it carries. The resulting state is
// persisted to Redis so a reconnect can restore it.
func (s *Session) handleConfig(frame protocol.ClientFrame) {
	s.mu.Lock()
	if frame.SourceLang != "" {
		s.tctx.SourceLanguage = frame.SourceLang
	}
	if frame.TargetLang != "" {
		s.tctx.TargetLanguage = frame.TargetLang
	}
	if frame.VoiceID != "" {
		s.tctx.VoiceID = frame.VoiceID
	}
	if frame.Persona != "" {
		s.tctx.Persona = frame.Persona
	}
	if frame.Industry != "" {
		s.tctx.Industry = frame.Industry
	}
	if frame.Glossary != nil {
		s.tctx.CustomGlossary = frame.Glossary
	}
	snapshot := s.tctx
	s.mu.Unlock()

	s.persistState(snapshot)
	_ = s.WriteFrame(protocol.ConfigAck())
}

func (s *Session) persistState(tctx model.TranslationContext) {
	state, err := json.Marshal(map[string]string{
		"source_lang": tctx.SourceLanguage,
		"target_lang": tctx.TargetLanguage,
		"voice_id":    tctx.VoiceID,
		"persona":     tctx.Persona,
	})
	if err != nil {
		return
	}
	if err := s.hub.rdb.Set(s.ctx, sessionStateKey(s.id), state, sessionStateTTL).Err(); err != nil {
		log.Printf("level=warn msg=session_state_persist_failed session_id=%s err=%v", s.id, err)
	}
}

func sessionStateKey(sessionID string) string { return "session:" + sessionID }

// handleAudio runs one chunk through the pipeline and forwards every result
// to the client. A failed chunk reports an error frame; the channel stays
// open for the next chunk.
func (s *Session) handleAudio(frame protocol.ClientFrame) {
	audio, err := base64.StdEncoding.DecodeString(frame.AudioB64)
	if err != nil {
		_ = s.WriteFrame(protocol.Error("invalid base64 audio"))
		return
	}

	s.mu.Lock()
	tctx := s.tctx
	s.mu.Unlock()

	for ev := range s.hub.pipe.ProcessAudioStreaming(s.ctx, audio, tctx) {
		switch ev.Type {
		case pipeline.EventTranscript:
			_ = s.WriteFrame(protocol.Transcript(ev.Text))
		case pipeline.EventTranslationDelta:
			_ = s.WriteFrame(protocol.Translation(ev.Text))
		case pipeline.EventAudioChunk:
			_ = s.WriteFrame(protocol.AudioChunk(base64.StdEncoding.EncodeToString(ev.Audio)))
		case pipeline.EventMetrics:
			_ = s.WriteFrame(protocol.Metrics(ev.Metrics))
		case pipeline.EventError:
			_ = s.WriteFrame(protocol.Error(ev.Err.Error()))
		}
	}
}

func (s *Session) handleJoinChat(chatID string) {
	member, err := s.hub.chats.IsChatMember(s.ctx, chatID, s.userID)
	if err != nil {
		_ = s.WriteFrame(protocol.Error("membership check failed"))
		return
	}
	if !member {
		_ = s.WriteFrame(protocol.Error("not a member of chat " + chatID))
		return
	}

	s.mu.Lock()
	_, already := s.joined[chatID]
	s.joined[chatID] = struct{}{}
	s.mu.Unlock()

	s.hub.registry.JoinChat(s.userID, chatID)
	if !already {
		s.hub.retainChatTopic(chatID)
	}
}

func (s *Session) handleLeaveChat(chatID string) {
	s.mu.Lock()
	_, joined := s.joined[chatID]
	delete(s.joined, chatID)
	s.mu.Unlock()

	s.hub.registry.LeaveChat(s.userID, chatID)
	if joined {
		s.hub.releaseChatTopic(chatID)
	}
}

func (s *Session) handleMessage(frame protocol.ClientFrame) {
	msg, err := s.hub.chats.InsertMessage(s.ctx, store.InsertMessageInput{
		ChatID:      frame.ChatID,
		SenderID:    s.userID,
		Content:     frame.Content,
		MessageType: frame.MessageType,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotMember) {
			_ = s.WriteFrame(protocol.Error("not a member of chat " + frame.ChatID))
			return
		}
		log.Printf("level=error msg=message_persist_failed chat_id=%s err=%v", frame.ChatID, err)
		_ = s.WriteFrame(protocol.Error("message not delivered"))
		return
	}

	data := map[string]any{
		"id":           msg.ID,
		"chat_id":      msg.ChatID,
		"sender_id":    msg.SenderID,
		"content":      msg.Content,
		"message_type": msg.MessageType,
		"created_at":   msg.CreatedAt.Format(time.RFC3339Nano),
	}
	out := protocol.Event(protocol.FrameNewMessage, data)
	s.hub.registry.NotifyAllChatMembers(s.ctx, msg.ChatID, out, s.userID)
	s.hub.publishChatEvent(msg.ChatID, string(protocol.FrameNewMessage), s.userID, data)
}

func (s *Session) handleTyping(chatID string) {
	if !s.hub.registry.IsViewing(s.userID, chatID) {
		return
	}
	data := map[string]any{
		"chat_id": chatID,
		"user_id": s.userID,
	}
	frame := protocol.Event(protocol.FrameTyping, data)
	s.hub.registry.BroadcastToChatViewers(chatID, frame, s.userID)
	s.hub.publishChatEvent(chatID, string(protocol.FrameTyping), s.userID, data)
}

func (s *Session) handleMarkRead(chatID string) {
	if err := s.hub.chats.MarkChatRead(s.ctx, chatID, s.userID); err != nil {
		if errors.Is(err, store.ErrNotMember) {
			_ = s.WriteFrame(protocol.Error("not a member of chat " + chatID))
		}
		return
	}
	data := map[string]any{
		"chat_id": chatID,
		"user_id": s.userID,
		"read_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	frame := protocol.Event(protocol.FrameReadReceipt, data)
	s.hub.registry.BroadcastToChatViewers(chatID, frame, s.userID)
	s.hub.publishChatEvent(chatID, string(protocol.FrameReadReceipt), s.userID, data)
}

// close tears the session down: no more writes reach the client, joined
// chat topics are released, and the persisted state is dropped.
func (s *Session) close() {
	s.writeMu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.writeMu.Unlock()
	if alreadyClosed {
		return
	}

	s.cancel()
	_ = s.conn.Close()

	s.mu.Lock()
	joined := make([]string, 0, len(s.joined))
	for chatID := range s.joined {
		joined = append(joined, chatID)
	}
	s.joined = map[string]struct{}{}
	s.mu.Unlock()

	for _, chatID := range joined {
		s.hub.releaseChatTopic(chatID)
	}
	if err := s.hub.rdb.Del(context.Background(), sessionStateKey(s.id)).Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("level=warn msg=session_state_cleanup_failed session_id=%s err=%v", s.id, err)
	}
}
