package messaging

import "time"

// NoBackoff removes retry delays so tests run instantly.
func NoBackoff(t *Twilio) {
	t.backoff = func(int) time.Duration { return 0 }
}
