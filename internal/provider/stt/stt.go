// Package stt abstracts the speech-to-text provider.
package stt

import "context"

// Transcriber converts raw audio bytes to text. lang is an ISO-639 code or
// "auto" for provider-side detection. An empty transcript is a valid result
// (silence), not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, lang string) (string, error)
}
