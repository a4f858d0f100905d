package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

// TypeHuman types text into an element one key event at a time, pausing
// roughly delay between keystrokes (up to 50% jitter). It stops early if
// ctx is cancelled.
func TypeHuman(ctx context.Context, el *rod.Element, text string, delay time.Duration) error {
	for _, char := range text {
		if err := el.Type(input.Key(char)); err != nil {
			return err
		}

		pause := delay
		if half := int64(delay / 2); half > 0 {
			pause += time.Duration(rand.Int63n(half))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
	return nil
}

// TypeFast types text without delays. Useful for tests and replay mode.
// Still triggers proper keyboard events (keydown/keyup) for each character.
func TypeFast(el *rod.Element, text string) error {
	keys := make([]input.Key, 0, len(text))
	for _, char := range text {
		keys = append(keys, input.Key(char))
	}
	return el.Type(keys...)
}
