package translate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lingolink/realtime-core/internal/model"
)

// buildSystemPrompt produces the translator instruction for a request. The
// output is deterministic: glossary entries are sorted so the same request
// always yields the same prompt regardless of map iteration order.
func buildSystemPrompt(req Request) string {
	src := model.LanguageName(req.SourceLang)
	tgt := model.LanguageName(req.TargetLang)

	var b strings.Builder
	fmt.Fprintf(&b, `You are a real-time voice translator. Translate spoken %s to %s.

RULES:
- Preserve the speaker's tone, emotion, and intent
- Keep it natural, this will be spoken aloud via TTS
- Do NOT add explanations, notes, or commentary
- Preserve idioms by finding equivalent expressions in the target language
- Keep proper nouns unchanged
- Output ONLY the translated text, nothing else`, src, tgt)

	if req.Persona != "" {
		fmt.Fprintf(&b, "\n\nSPEAKER CONTEXT: %s", req.Persona)
	}
	if req.Industry != "" {
		fmt.Fprintf(&b, "\nINDUSTRY: %s, use appropriate terminology", req.Industry)
	}
	if len(req.Glossary) > 0 {
		terms := make([]string, 0, len(req.Glossary))
		for term := range req.Glossary {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		b.WriteString("\n\nCUSTOM GLOSSARY:")
		for _, term := range terms {
			fmt.Fprintf(&b, "\n  %s -> %s", term, req.Glossary[term])
		}
	}
	return b.String()
}
