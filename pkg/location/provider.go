package location

import (
	"context"
	"time"
)

// Listener receives every fix delivered by a provider.
type Listener func(Location)

// Provider interface defines the methods for location providers
type Provider interface {
	// RequestLocationUpdates delivers fixes to listener until ctx is cancelled or the
	// source fails. Cancelling ctx is how a caller unsubscribes.
	RequestLocationUpdates(ctx context.Context, req Request, listener Listener) error
	Close() error
}

// throttle drops fixes that arrive sooner than the fastest interval after the previous delivery.
type throttle struct {
	fastest time.Duration
	last    time.Time
	now     func() time.Time
}

func newThrottle(fastest time.Duration) *throttle {
	return &throttle{fastest: fastest, now: time.Now}
}

func (t *throttle) allow() bool {
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.fastest {
		return false
	}
	t.last = now
	return true
}
