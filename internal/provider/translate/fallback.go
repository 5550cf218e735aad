package translate

import (
	"context"
	"log"
)

// Fallback chains a primary translator with a secondary. A primary failure
// triggers an immediate retry against the secondary with the same request;
// both failing is terminal for the chunk.
type Fallback struct {
	primary   Translator
	secondary Translator
}

func NewFallback(primary, secondary Translator) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Name() string { return f.primary.Name() }

func (f *Fallback) Translate(ctx context.Context, req Request) (string, error) {
	out, err := f.primary.Translate(ctx, req)
	if err == nil {
		return out, nil
	}
	if f.secondary == nil {
		return "", err
	}
	log.Printf("metric=translate_fallback primary=%s err=%q", f.primary.Name(), err.Error())
	return f.secondary.Translate(ctx, req)
}

// TranslateStream streams from the primary. If the primary fails before
// producing any delta, the secondary is streamed instead; a mid-stream
// failure after deltas have been forwarded is terminal, since replaying the
// secondary would duplicate text already sent to the client.
func (f *Fallback) TranslateStream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	deltas := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errc)

		primaryDeltas, primaryErrs := f.primary.TranslateStream(ctx, req)
		forwarded := false
		for delta := range primaryDeltas {
			forwarded = true
			select {
			case deltas <- delta:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		err := <-primaryErrs
		if err == nil {
			return
		}
		if forwarded || f.secondary == nil {
			errc <- err
			return
		}

		log.Printf("metric=translate_fallback primary=%s err=%q", f.primary.Name(), err.Error())
		secondaryDeltas, secondaryErrs := f.secondary.TranslateStream(ctx, req)
		for delta := range secondaryDeltas {
			select {
			case deltas <- delta:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := <-secondaryErrs; err != nil {
			errc <- err
		}
	}()

	return deltas, errc
}
