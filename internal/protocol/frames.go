// Package protocol defines the JSON frames exchanged over a channel. Frames
// are decoded exactly once at ingress into a tagged union so downstream code
// never touches raw maps.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/lingolink/realtime-core/internal/model"
)

type FrameType string

const (
	// client -> server
	FrameConfig    FrameType = "config"
	FrameAudio     FrameType = "audio"
	FrameJoinChat  FrameType = "join_chat"
	FrameLeaveChat FrameType = "leave_chat"
	FrameMessage   FrameType = "message"
	FrameTyping    FrameType = "typing"
	FrameMarkRead  FrameType = "mark_read"
	FramePing      FrameType = "ping"

	// server -> client
	FrameConfigAck   FrameType = "config_ack"
	FrameTranscript  FrameType = "transcript"
	FrameTranslation FrameType = "translation"
	FrameMetrics     FrameType = "metrics"
	FrameNewMessage  FrameType = "new_message"
	FramePresence    FrameType = "presence"
	FrameReadReceipt FrameType = "read_receipt"
	FramePong        FrameType = "pong"
	FrameError       FrameType = "error"
)

// ClientFrame is the decoded form of one inbound frame. Only the fields for
// the indicated Type are populated.
type ClientFrame struct {
	Type FrameType

	// config
	SourceLang string
	TargetLang string
	VoiceID    string
	Persona    string
	Industry   string
	Glossary   map[string]string

	// audio
	AudioB64 string

	// join_chat / leave_chat / message / typing / mark_read
	ChatID      string
	Content     string
	MessageType string
}

type rawClientFrame struct {
	Type        string            `json:"type"`
	SourceLang  string            `json:"source_lang"`
	TargetLang  string            `json:"target_lang"`
	VoiceID     string            `json:"voice_id"`
	Persona     string            `json:"persona"`
	Industry    string            `json:"industry"`
	Glossary    map[string]string `json:"glossary"`
	Data        string            `json:"data"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	MessageType string            `json:"message_type"`
}

// DecodeClientFrame parses one inbound frame. A malformed frame returns an
// error and must never crash the channel.
func DecodeClientFrame(raw []byte) (ClientFrame, error) {
	var r rawClientFrame
	if err := json.Unmarshal(raw, &r); err != nil {
		return ClientFrame{}, fmt.Errorf("decode frame: %w", err)
	}

	f := ClientFrame{Type: FrameType(r.Type)}
	switch f.Type {
	case FrameConfig:
		f.SourceLang = r.SourceLang
		f.TargetLang = r.TargetLang
		f.VoiceID = r.VoiceID
		f.Persona = r.Persona
		f.Industry = r.Industry
		f.Glossary = r.Glossary
	case FrameAudio:
		if r.Data == "" {
			return ClientFrame{}, fmt.Errorf("audio frame missing data")
		}
		f.AudioB64 = r.Data
	case FrameJoinChat, FrameLeaveChat, FrameTyping, FrameMarkRead:
		if r.ChatID == "" {
			return ClientFrame{}, fmt.Errorf("%s frame missing chat_id", f.Type)
		}
		f.ChatID = r.ChatID
	case FrameMessage:
		if r.ChatID == "" {
			return ClientFrame{}, fmt.Errorf("message frame missing chat_id")
		}
		f.ChatID = r.ChatID
		f.Content = r.Content
		f.MessageType = r.MessageType
		if f.MessageType == "" {
			f.MessageType = "text"
		}
	case FramePing:
	default:
		return ClientFrame{}, fmt.Errorf("unknown frame type %q", r.Type)
	}
	return f, nil
}

// ServerFrame is one outbound frame. Data shape depends on Type.
type ServerFrame struct {
	Type FrameType `json:"type"`
	Data any       `json:"data"`
}

func ConfigAck() ServerFrame {
	return ServerFrame{Type: FrameConfigAck, Data: "ok"}
}

func Transcript(text string) ServerFrame {
	return ServerFrame{Type: FrameTranscript, Data: text}
}

func Translation(delta string) ServerFrame {
	return ServerFrame{Type: FrameTranslation, Data: delta}
}

func AudioChunk(b64 string) ServerFrame {
	return ServerFrame{Type: FrameAudio, Data: b64}
}

func Metrics(summary model.MetricsSummary) ServerFrame {
	return ServerFrame{Type: FrameMetrics, Data: summary}
}

func Pong() ServerFrame {
	return ServerFrame{Type: FramePong, Data: nil}
}

func Error(msg string) ServerFrame {
	return ServerFrame{Type: FrameError, Data: msg}
}

func Event(t FrameType, data map[string]any) ServerFrame {
	return ServerFrame{Type: t, Data: data}
}
