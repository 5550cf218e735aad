// Package pipeline chains speech-to-text, translation, and speech synthesis
// for one audio chunk at a time. Results stream back as events so callers can
// forward partial translations before synthesis finishes.
package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/lingolink/realtime-core/internal/cache"
	"github.com/lingolink/realtime-core/internal/metrics"
	"github.com/lingolink/realtime-core/internal/model"
	"github.com/lingolink/realtime-core/internal/provider/stt"
	"github.com/lingolink/realtime-core/internal/provider/translate"
	"github.com/lingolink/realtime-core/internal/provider/tts"
)

type EventType string

const (
	EventTranscript       EventType = "transcript"
	EventTranslationDelta EventType = "translation_delta"
	EventAudioChunk       EventType = "audio_chunk"
	EventMetrics          EventType = "metrics"
	EventError            EventType = "error"
)

// Event is one streamed pipeline result. Exactly one payload field is set,
// selected by Type. An EventError is terminal: the channel closes after it.
type Event struct {
	Type    EventType
	Text    string
	Audio   []byte
	Metrics model.MetricsSummary
	Err     error
}

// LogSink receives one analytics record per completed translation,
// fire-and-forget. Implementations must not block the caller.
type LogSink interface {
	RecordTranslation(ctx context.Context, l model.TranslationLog)
}

type Orchestrator struct {
	stt        stt.Transcriber
	translator translate.Translator
	tts        tts.Synthesizer
	cache      *cache.Cache
	logs       LogSink
	now        func() time.Time
}

type Option func(*Orchestrator)

// WithLogSink enables fire-and-forget translation logging.
func WithLogSink(s LogSink) Option {
	return func(o *Orchestrator) { o.logs = s }
}

func withClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(transcriber stt.Transcriber, translator translate.Translator, synthesizer tts.Synthesizer, c *cache.Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stt:        transcriber,
		translator: translator,
		tts:        synthesizer,
		cache:      c,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessAudioStreaming runs one audio chunk through the full pipeline and
// streams results on the returned channel. Silence (an empty transcript)
// produces no events at all. The channel always closes; after an EventError
// nothing further is sent.
func (o *Orchestrator) ProcessAudioStreaming(ctx context.Context, audio []byte, tctx model.TranslationContext) <-chan Event {
	out := make(chan Event, 8)
	go func() {
		defer close(out)
		o.process(ctx, audio, tctx, out)
	}()
	return out
}

func (o *Orchestrator) process(ctx context.Context, audio []byte, tctx model.TranslationContext, out chan<- Event) {
	var m model.PipelineMetrics
	m.TotalStart = o.now()

	m.STTStart = o.now()
	transcript, err := o.stt.Transcribe(ctx, audio, tctx.SourceLanguage)
	m.STTEnd = o.now()
	if err != nil {
		o.fail(ctx, out, "stt", err)
		return
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		metrics.Default().IncCounter("lingo_pipeline_chunks_total", map[string]string{"status": "empty"})
		return
	}
	if !emit(ctx, out, Event{Type: EventTranscript, Text: transcript}) {
		return
	}

	translated, modelUsed, err := o.translateStage(ctx, transcript, tctx, &m, out)
	if err != nil {
		o.fail(ctx, out, "translate", err)
		return
	}

	m.TTSStart = o.now()
	chunks, errc := o.tts.SynthesizeStream(ctx, translated, tctx.VoiceID, tctx.TargetLanguage)
	for chunk := range chunks {
		if !emit(ctx, out, Event{Type: EventAudioChunk, Audio: chunk}) {
			return
		}
	}
	if err := <-errc; err != nil {
		m.TTSEnd = o.now()
		o.fail(ctx, out, "tts", err)
		return
	}
	m.TTSEnd = o.now()
	m.TotalEnd = o.now()

	o.observe(m)
	if !emit(ctx, out, Event{Type: EventMetrics, Metrics: m.Summary()}) {
		return
	}

	if o.logs != nil {
		o.logs.RecordTranslation(ctx, model.TranslationLog{
			UserID:         tctx.UserID,
			SourceLanguage: tctx.SourceLanguage,
			TargetLanguage: tctx.TargetLanguage,
			SourceText:     transcript,
			TranslatedText: translated,
			LatencyMS:      m.TotalLatencyMS(),
			ModelUsed:      modelUsed,
		})
	}
}

// translateStage resolves the translation for a transcript, streaming deltas
// to out as they arrive. Uncustomized contexts consult the shared cache; a
// hit is replayed as a single delta without touching the provider, and a
// miss is stored after the stream completes. Same-language requests pass the
// transcript through unchanged.
func (o *Orchestrator) translateStage(ctx context.Context, transcript string, tctx model.TranslationContext, m *model.PipelineMetrics, out chan<- Event) (string, string, error) {
	m.TranslateStart = o.now()
	defer func() { m.TranslateEnd = o.now() }()

	if tctx.SourceLanguage != model.LangAuto && tctx.SourceLanguage == tctx.TargetLanguage {
		if !emit(ctx, out, Event{Type: EventTranslationDelta, Text: transcript}) {
			return "", "", ctx.Err()
		}
		return transcript, "passthrough", nil
	}

	cacheable := o.cache != nil && !tctx.Customized()
	if cacheable {
		if hit, ok := o.cache.Lookup(ctx, transcript, tctx.SourceLanguage, tctx.TargetLanguage); ok {
			if !emit(ctx, out, Event{Type: EventTranslationDelta, Text: hit}) {
				return "", "", ctx.Err()
			}
			return hit, "cache", nil
		}
	}

	deltas, errc := o.translator.TranslateStream(ctx, translate.FromContext(tctx, transcript))
	var b strings.Builder
	for delta := range deltas {
		b.WriteString(delta)
		if !emit(ctx, out, Event{Type: EventTranslationDelta, Text: delta}) {
			return "", "", ctx.Err()
		}
	}
	if err := <-errc; err != nil {
		return "", "", err
	}

	translated := b.String()
	if cacheable {
		o.cache.Store(ctx, transcript, tctx.SourceLanguage, tctx.TargetLanguage, translated)
	}
	return translated, o.translator.Name(), nil
}

// ProcessAudio is the batch form: it runs the same stages but collects the
// whole result before returning. Silence returns empty audio and text with
// no error.
func (o *Orchestrator) ProcessAudio(ctx context.Context, audio []byte, tctx model.TranslationContext) ([]byte, string, model.MetricsSummary, error) {
	var synthesized []byte
	var translated strings.Builder
	var summary model.MetricsSummary

	for ev := range o.ProcessAudioStreaming(ctx, audio, tctx) {
		switch ev.Type {
		case EventTranslationDelta:
			translated.WriteString(ev.Text)
		case EventAudioChunk:
			synthesized = append(synthesized, ev.Audio...)
		case EventMetrics:
			summary = ev.Metrics
		case EventError:
			return nil, "", model.MetricsSummary{}, ev.Err
		}
	}
	return synthesized, translated.String(), summary, nil
}

func (o *Orchestrator) fail(ctx context.Context, out chan<- Event, stage string, err error) {
	log.Printf("level=error msg=pipeline_stage_failed stage=%s err=%v", stage, err)
	metrics.Default().IncCounter("lingo_pipeline_chunks_total", map[string]string{"status": "error"})
	if ctx.Err() != nil {
		return
	}
	emit(ctx, out, Event{Type: EventError, Err: err})
}

func (o *Orchestrator) observe(m model.PipelineMetrics) {
	reg := metrics.Default()
	reg.IncCounter("lingo_pipeline_chunks_total", map[string]string{"status": "ok"})
	reg.ObserveHistogram("lingo_pipeline_stage_latency_ms", m.STTLatencyMS(), map[string]string{"stage": "stt"})
	reg.ObserveHistogram("lingo_pipeline_stage_latency_ms", m.TranslateLatencyMS(), map[string]string{"stage": "translate"})
	reg.ObserveHistogram("lingo_pipeline_stage_latency_ms", m.TTSLatencyMS(), map[string]string{"stage": "tts"})
	reg.ObserveHistogram("lingo_pipeline_total_latency_ms", m.TotalLatencyMS(), nil)
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
