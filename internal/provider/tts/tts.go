// Package tts abstracts the speech-synthesis provider.
package tts

import "context"

// Synthesizer converts text to audio. SynthesizeStream forwards audio in
// fixed-size chunks as the provider produces them so playback can start
// before the full utterance is rendered; the chunk channel closes on stream
// end and the error channel carries at most one terminal error.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, lang string) ([]byte, error)
	SynthesizeStream(ctx context.Context, text, voiceID, lang string) (<-chan []byte, <-chan error)
}
