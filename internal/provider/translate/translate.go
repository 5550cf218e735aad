// Package translate abstracts the machine-translation provider and its
// fallback chain.
package translate

import (
	"context"

	"github.com/lingolink/realtime-core/internal/model"
)

// Request is one translation call. Persona, Industry, and Glossary shape the
// prompt; requests carrying any of them are considered customized and bypass
// the shared cache upstream.
type Request struct {
	Text       string
	SourceLang string
	TargetLang string
	Persona    string
	Industry   string
	Glossary   map[string]string
}

// Translator converts text between languages. TranslateStream yields
// incremental deltas whose concatenation equals the full translation; the
// error channel carries at most one terminal error and both channels close
// when the stream ends.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
	TranslateStream(ctx context.Context, req Request) (<-chan string, <-chan error)
	Name() string
}

// FromContext builds a Request from a channel's translation context.
func FromContext(tctx model.TranslationContext, text string) Request {
	return Request{
		Text:       text,
		SourceLang: tctx.SourceLanguage,
		TargetLang: tctx.TargetLanguage,
		Persona:    tctx.Persona,
		Industry:   tctx.Industry,
		Glossary:   tctx.CustomGlossary,
	}
}
