package model

import "time"

// TranslationContext carries the per-channel settings that shape how audio
// from that channel is translated. It is created when the channel opens,
// mutated by config frames, and discarded on close.
type TranslationContext struct {
	UserID         string
	SourceLanguage string
	TargetLanguage string
	VoiceID        string
	Persona        string
	Industry       string
	CustomGlossary map[string]string
}

// NewTranslationContext returns a context with the default language pair.
func NewTranslationContext(userID string) TranslationContext {
	return TranslationContext{
		UserID:         userID,
		SourceLanguage: LangAuto,
		TargetLanguage: "en",
		CustomGlossary: map[string]string{},
	}
}

// Customized reports whether the context carries persona, industry, or
// glossary overrides. Customized translations are not reproducible for other
// callers and must never enter the shared cache.
func (c TranslationContext) Customized() bool {
	return c.Persona != "" || c.Industry != "" || len(c.CustomGlossary) > 0
}

// PipelineMetrics records one timestamp pair per pipeline stage for a single
// audio chunk. The orchestrator guarantees end >= start for every pair, so
// the derived latencies are non-negative by construction.
type PipelineMetrics struct {
	STTStart       time.Time
	STTEnd         time.Time
	TranslateStart time.Time
	TranslateEnd   time.Time
	TTSStart       time.Time
	TTSEnd         time.Time
	TotalStart     time.Time
	TotalEnd       time.Time
}

func (m PipelineMetrics) STTLatencyMS() float64 {
	return float64(m.STTEnd.Sub(m.STTStart).Microseconds()) / 1000
}

func (m PipelineMetrics) TranslateLatencyMS() float64 {
	return float64(m.TranslateEnd.Sub(m.TranslateStart).Microseconds()) / 1000
}

func (m PipelineMetrics) TTSLatencyMS() float64 {
	return float64(m.TTSEnd.Sub(m.TTSStart).Microseconds()) / 1000
}

func (m PipelineMetrics) TotalLatencyMS() float64 {
	return float64(m.TotalEnd.Sub(m.TotalStart).Microseconds()) / 1000
}

// MetricsSummary is the wire form emitted to the client once per chunk.
type MetricsSummary struct {
	STTMS       float64 `json:"stt_ms"`
	TranslateMS float64 `json:"translate_ms"`
	TTSMS       float64 `json:"tts_ms"`
	TotalMS     float64 `json:"total_ms"`
}

func (m PipelineMetrics) Summary() MetricsSummary {
	return MetricsSummary{
		STTMS:       round1(m.STTLatencyMS()),
		TranslateMS: round1(m.TranslateLatencyMS()),
		TTSMS:       round1(m.TTSLatencyMS()),
		TotalMS:     round1(m.TotalLatencyMS()),
	}
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

// Message is a persisted chat message as returned by the store.
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	Content     string
	MessageType string
	CreatedAt   time.Time
}

// TranslationLog is one analytics record per completed translation. Written
// fire-and-forget; losing one is acceptable.
type TranslationLog struct {
	UserID         string
	SourceLanguage string
	TargetLanguage string
	SourceText     string
	TranslatedText string
	LatencyMS      float64
	ModelUsed      string
}
