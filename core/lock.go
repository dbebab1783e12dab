package core

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Lock is a store-backed mutual exclusion primitive. Acquire writes an owner
// token with set-if-absent; Release deletes the key only while that token is
// still the stored value, so a delayed holder cannot release a lock the store
// has already handed to someone else.
type Lock struct {
	store *Store
}

func NewLock(store *Store) *Lock {
	return &Lock{store: store}
}

// Acquire tries to take the lock for ttl. On success it returns the owner
// token needed to release.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetIfAbsent(ctx, key, owner, ttl)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return owner, true, nil
}

// Release gives the lock back. Reports false when the lock is no longer held
// by owner (expired and re-acquired, or never held).
func (l *Lock) Release(ctx context.Context, key, owner string) (bool, error) {
	return l.store.CompareAndDelete(ctx, key, owner)
}

// RateGuard throttles challenge issuance per (business type, id). The marker
// key records the last issue time; the guard only enforces it while the
// business record it gates still exists.
type RateGuard struct {
	store *Store
	now   func() time.Time
}

func NewRateGuard(store *Store) *RateGuard {
	return &RateGuard{store: store, now: time.Now}
}

// Frequent reports whether a new issuance for (bt, id) falls inside the
// throttle interval. A marker whose business record has expired is stale: it
// is cleared and not enforced, so a caller can never be locked out for good.
// When the request is rejected the marker is refreshed, pushing the window
// out for repeat offenders.
func (g *RateGuard) Frequent(ctx context.Context, bt BusinessType, id string) (bool, error) {
	lastStr, ok, err := g.store.Get(ctx, bt.requestKey(id))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	last, err := strconv.ParseInt(lastStr, 10, 64)
	if err != nil {
		// Unparseable marker; drop it and let the request through.
		_ = g.store.Delete(ctx, bt.requestKey(id))
		return false, nil
	}

	exists, err := g.store.Has(ctx, bt.Key(id))
	if err != nil {
		return false, err
	}
	if !exists {
		if err := g.store.Delete(ctx, bt.requestKey(id)); err != nil {
			return false, err
		}
		return false, nil
	}

	if g.now().UnixMilli()-last < bt.Expiry.Milliseconds() {
		if err := g.Touch(ctx, bt, id); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Touch records now as the last issue time for (bt, id), expiring with the
// business type's TTL.
func (g *RateGuard) Touch(ctx context.Context, bt BusinessType, id string) error {
	value := strconv.FormatInt(g.now().UnixMilli(), 10)
	return g.store.SetWithTTL(ctx, bt.requestKey(id), value, bt.Expiry)
}
