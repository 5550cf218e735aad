package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingolink/realtime-core/internal/auth"
	"github.com/lingolink/realtime-core/internal/bridge"
	"github.com/lingolink/realtime-core/internal/model"
	"github.com/lingolink/realtime-core/internal/pipeline"
	"github.com/lingolink/realtime-core/internal/provider/translate"
	"github.com/lingolink/realtime-core/internal/registry"
	"github.com/lingolink/realtime-core/internal/store"
)

type openVerifier struct{}

func (openVerifier) UserRevoked(context.Context, string) bool { return false }

type stubTranscriber struct{ transcript string }

func (s stubTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return s.transcript, nil
}

type stubTranslator struct{ deltas []string }

func (s stubTranslator) Translate(context.Context, translate.Request) (string, error) {
	return strings.Join(s.deltas, ""), nil
}

func (s stubTranslator) TranslateStream(context.Context, translate.Request) (<-chan string, <-chan error) {
	deltas := make(chan string, len(s.deltas))
	errc := make(chan error, 1)
	for _, d := range s.deltas {
		deltas <- d
	}
	close(deltas)
	close(errc)
	return deltas, errc
}

func (s stubTranslator) Name() string { return "stub-mt" }

type stubSynthesizer struct{ chunks [][]byte }

func (s stubSynthesizer) Synthesize(context.Context, string, string, string) ([]byte, error) {
	var out []byte
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out, nil
}

func (s stubSynthesizer) SynthesizeStream(context.Context, string, string, string) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, len(s.chunks))
	errc := make(chan error, 1)
	for _, c := range s.chunks {
		chunks <- c
	}
	close(chunks)
	close(errc)
	return chunks, errc
}

type fakeChats struct {
	members map[string]map[string]bool
}

func (f *fakeChats) IsChatMember(_ context.Context, chatID, userID string) (bool, error) {
	return f.members[chatID][userID], nil
}

func (f *fakeChats) InsertMessage(_ context.Context, in store.InsertMessageInput) (*model.Message, error) {
	if !f.members[in.ChatID][in.SenderID] {
		return nil, store.ErrNotMember
	}
	return &model.Message{
		ID:          "msg_test",
		ChatID:      in.ChatID,
		SenderID:    in.SenderID,
		Content:     in.Content,
		MessageType: in.MessageType,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (f *fakeChats) MarkChatRead(_ context.Context, chatID, userID string) error {
	if !f.members[chatID][userID] {
		return store.ErrNotMember
	}
	return nil
}

func (f *fakeChats) ListChatMemberIDs(_ context.Context, chatID string) ([]string, error) {
	var out []string
	for id := range f.members[chatID] {
		out = append(out, id)
	}
	return out, nil
}

type testEnv struct {
	hub    *Hub
	issuer *auth.Issuer
	srv    *httptest.Server
	mr     *miniredis.Miniredis
	chats  *fakeChats
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	chats := &fakeChats{members: map[string]map[string]bool{
		"cht_1": {"usr_alice": true, "usr_bob": true},
	}}

	issuer := auth.NewIssuer("test-secret")
	reg := registry.New(chats)
	br := bridge.New(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	br.Start(ctx)
	t.Cleanup(func() { _ = br.Close() })

	pipe := pipeline.New(
		stubTranscriber{transcript: "hello"},
		stubTranslator{deltas: []string{"hola"}},
		stubSynthesizer{chunks: [][]byte{[]byte("AUDIO")}},
		nil,
	)

	hub := NewHub(issuer, openVerifier{}, reg, br, pipe, chats, rdb)
	require.NoError(t, hub.Start(ctx))

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	return &testEnv{hub: hub, issuer: issuer, srv: srv, mr: mr, chats: chats}
}

func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := e.issuer.MintAccessToken(userID)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func frameType(t *testing.T, frame map[string]json.RawMessage) string {
	t.Helper()
	var ft string
	require.NoError(t, json.Unmarshal(frame["type"], &ft))
	return ft
}

func send(t *testing.T, conn *websocket.Conn, v map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestUnauthenticatedDialClosedWithAppCode(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, 4401, closeErr.Code)
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "usr_alice")

	send(t, conn, map[string]any{"type": "ping"})
	assert.Equal(t, "pong", frameType(t, readFrame(t, conn)))
}

func TestConfigAckAndPersistedState(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "usr_alice")

	send(t, conn, map[string]any{
		"type":        "config",
		"source_lang": "th",
		"target_lang": "en",
		"voice_id":    "voice-9",
	})
	assert.Equal(t, "config_ack", frameType(t, readFrame(t, conn)))

	var stateKey string
	for _, k := range env.mr.Keys() {
		if strings.HasPrefix(k, "session:") {
			stateKey = k
		}
	}
	require.NotEmpty(t, stateKey, "config must persist session state")
	raw, err := env.mr.Get(stateKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"source_lang":"th"`)
	assert.Contains(t, raw, `"voice_id":"voice-9"`)
}

func TestAudioChunkStreamsPipelineResults(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "usr_alice")

	send(t, conn, map[string]any{"type": "config", "source_lang": "en", "target_lang": "es"})
	assert.Equal(t, "config_ack", frameType(t, readFrame(t, conn)))

	send(t, conn, map[string]any{
		"type": "audio",
		"data": base64.StdEncoding.EncodeToString([]byte("pcm")),
	})

	var types []string
	var audioB64 string
	for len(types) < 4 {
		frame := readFrame(t, conn)
		ft := frameType(t, frame)
		types = append(types, ft)
		if ft == "audio" {
			require.NoError(t, json.Unmarshal(frame["data"], &audioB64))
		}
	}
	assert.Equal(t, []string{"transcript", "translation", "audio", "metrics"}, types)

	decoded, err := base64.StdEncoding.DecodeString(audioB64)
	require.NoError(t, err)
	assert.Equal(t, []byte("AUDIO"), decoded)
}

func TestMalformedAudioKeepsChannelOpen(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "usr_alice")

	send(t, conn, map[string]any{"type": "audio", "data": "not-base64!!!"})
	assert.Equal(t, "error", frameType(t, readFrame(t, conn)))

	send(t, conn, map[string]any{"type": "ping"})
	assert.Equal(t, "pong", frameType(t, readFrame(t, conn)))
}

func TestJoinChatRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "usr_stranger")

	send(t, conn, map[string]any{"type": "join_chat", "chat_id": "cht_1"})
	assert.Equal(t, "error", frameType(t, readFrame(t, conn)))
}

func TestMessageReachesOtherMember(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "usr_alice")
	bob := env.dial(t, "usr_bob")

	// alice sees bob come online
	assert.Equal(t, "presence", frameType(t, readFrame(t, alice)))

	send(t, alice, map[string]any{"type": "join_chat", "chat_id": "cht_1"})
	send(t, bob, map[string]any{"type": "join_chat", "chat_id": "cht_1"})
	time.Sleep(50 * time.Millisecond)

	send(t, alice, map[string]any{
		"type": "message", "chat_id": "cht_1", "content": "hi bob",
	})

	frame := readFrame(t, bob)
	require.Equal(t, "new_message", frameType(t, frame))
	var data map[string]any
	require.NoError(t, json.Unmarshal(frame["data"], &data))
	assert.Equal(t, "hi bob", data["content"])
	assert.Equal(t, "usr_alice", data["sender_id"])
	assert.Equal(t, "text", data["message_type"])
}

func TestMessageFromNonMemberRejected(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "usr_stranger")

	send(t, conn, map[string]any{"type": "message", "chat_id": "cht_1", "content": "hi"})
	assert.Equal(t, "error", frameType(t, readFrame(t, conn)))
}

func TestTypingFansOutToViewers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "usr_alice")
	bob := env.dial(t, "usr_bob")
	assert.Equal(t, "presence", frameType(t, readFrame(t, alice)))

	send(t, alice, map[string]any{"type": "join_chat", "chat_id": "cht_1"})
	send(t, bob, map[string]any{"type": "join_chat", "chat_id": "cht_1"})
	time.Sleep(50 * time.Millisecond)

	send(t, alice, map[string]any{"type": "typing", "chat_id": "cht_1"})

	frame := readFrame(t, bob)
	require.Equal(t, "typing", frameType(t, frame))
	var data map[string]any
	require.NoError(t, json.Unmarshal(frame["data"], &data))
	assert.Equal(t, "usr_alice", data["user_id"])
}
