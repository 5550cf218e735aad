package jobs

import (
	"context"
	"log"

	"github.com/lingolink/realtime-core/internal/model"
	"github.com/lingolink/realtime-core/internal/provider/translate"
	"github.com/lingolink/realtime-core/internal/tasks"
)

const (
	JobLogTranslation = "log_translation"
	JobBatchTranslate = "batch_translate"
)

type TranslationLogStore interface {
	InsertTranslationLog(ctx context.Context, l model.TranslationLog) error
}

// RegisterHandlers binds the background job names to their implementations.
// Both the API process (for inline fallback) and the worker process call
// this during startup.
func RegisterHandlers(q *tasks.Queue, st TranslationLogStore) {
	q.Register(JobLogTranslation, func(ctx context.Context, args map[string]any) error {
		return st.InsertTranslationLog(ctx, translationLogFromArgs(args))
	})
}

// RegisterBatchTranslate binds the backfill job, which re-translates a list
// of texts for one language pair. Only processes holding provider
// credentials register it.
func RegisterBatchTranslate(q *tasks.Queue, tr translate.Translator) {
	q.Register(JobBatchTranslate, func(ctx context.Context, args map[string]any) error {
		src, _ := args["source_language"].(string)
		tgt, _ := args["target_language"].(string)
		rawTexts, _ := args["texts"].([]any)
		done := 0
		for _, raw := range rawTexts {
			text, ok := raw.(string)
			if !ok || text == "" {
				continue
			}
			if _, err := tr.Translate(ctx, translate.Request{
				Text:       text,
				SourceLang: src,
				TargetLang: tgt,
			}); err != nil {
				return err
			}
			done++
		}
		log.Printf("msg=batch_translate_done count=%d source=%s target=%s", done, src, tgt)
		return nil
	})
}

// QueueLogSink adapts the job queue to the pipeline's log sink: each record
// becomes a queued job, falling back to inline execution when Redis is
// unreachable.
type QueueLogSink struct {
	Queue *tasks.Queue
}

func (s QueueLogSink) RecordTranslation(ctx context.Context, l model.TranslationLog) {
	s.Queue.Enqueue(ctx, JobLogTranslation, map[string]any{
		"user_id":         l.UserID,
		"source_language": l.SourceLanguage,
		"target_language": l.TargetLanguage,
		"source_text":     l.SourceText,
		"translated_text": l.TranslatedText,
		"latency_ms":      l.LatencyMS,
		"model_used":      l.ModelUsed,
	})
}

func translationLogFromArgs(args map[string]any) model.TranslationLog {
	str := func(k string) string {
		v, _ := args[k].(string)
		return v
	}
	latency, _ := args["latency_ms"].(float64)
	return model.TranslationLog{
		UserID:         str("user_id"),
		SourceLanguage: str("source_language"),
		TargetLanguage: str("target_language"),
		SourceText:     str("source_text"),
		TranslatedText: str("translated_text"),
		LatencyMS:      latency,
		ModelUsed:      str("model_used"),
	}
}
