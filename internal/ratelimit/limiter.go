package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrLimited is returned when the key submitted less than one window ago,
// or when a concurrent request claimed the slot first.
var ErrLimited = errors.New("rate limited")

// Limiter enforces one accepted submission per key per window.
//
// Callers that only want to record successful work use Claim before the
// work and Release if it fails: the slot is held while the work runs, so
// two concurrent requests cannot both pass, and a failed attempt leaves
// the previous timestamp in place.
type Limiter struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

func NewLimiter(store Store, window time.Duration) *Limiter {
	return &Limiter{store: store, window: window, now: time.Now}
}

// WithClock replaces the time source; tests use it to step past the window.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Window returns the configured cooldown.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Key builds the limiter key for a client identity and e-mail address.
func Key(clientID, email string) string {
	return clientID + ":" + email
}

// Check reports ErrLimited without changing anything.
func (l *Limiter) Check(ctx context.Context, key string) error {
	last, err := l.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if l.limited(last) {
		return ErrLimited
	}
	return nil
}

// Claim is a held slot; pass it to Release to undo it.
type Claim struct {
	key  string
	prev time.Time
	at   time.Time
}

// Claim records now for key if the key is not limited.
func (l *Limiter) Claim(ctx context.Context, key string) (*Claim, error) {
	last, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if l.limited(last) {
		return nil, ErrLimited
	}

	at := l.now()
	ok, err := l.store.CompareAndSwap(ctx, key, last, at, l.window)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLimited
	}
	return &Claim{key: key, prev: last, at: at}, nil
}

// Confirm moves the claimed timestamp to now, so the window starts when
// the work finished rather than when the slot was taken. It does nothing
// if something else has written the key since.
func (l *Limiter) Confirm(ctx context.Context, c *Claim) error {
	if c == nil {
		return nil
	}
	at := l.now()
	ok, err := l.store.CompareAndSwap(ctx, c.key, c.at, at, l.window)
	if err != nil {
		return err
	}
	if ok {
		c.at = at
	}
	return nil
}

// Release restores the value that was there before c, unless something
// else has written the key since.
func (l *Limiter) Release(ctx context.Context, c *Claim) error {
	if c == nil {
		return nil
	}
	_, err := l.store.CompareAndSwap(ctx, c.key, c.at, c.prev, l.window)
	return err
}

// Prune drops entries older than one window; they can no longer limit
// anything.
func (l *Limiter) Prune(ctx context.Context) (int, error) {
	return l.store.Prune(ctx, l.now().Add(-l.window))
}

func (l *Limiter) limited(last time.Time) bool {
	return !last.IsZero() && l.now().Sub(last) < l.window
}
