package throttle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kcubez/crypto-predictor/internal/model"
)

// ErrRateLimited indicates the minimum interval between model invocations
// has not elapsed. The call is rejected, never queued or delayed; the
// caller is expected to fall back to a statistical estimate.
var ErrRateLimited = errors.New("model invocation rate limited")

type entry struct {
	result   *model.ForecastResult
	cachedAt time.Time
}

// Throttle guards an expensive forecast call with a fixed-TTL memoized
// result per cache key and a single global minimum-interval clock. Not an
// LRU: entries expire by age only, purged opportunistically on writes.
type Throttle struct {
	mu             sync.Mutex
	cache          map[string]entry
	lastInvocation time.Time

	ttl         time.Duration
	minInterval time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// Options holds options for creating a new Throttle
type Options struct {
	TTL         time.Duration    // cache entry lifetime, defaults to 5 minutes
	MinInterval time.Duration    // spacing between invocations, defaults to 15 seconds
	Now         func() time.Time // injectable clock, defaults to time.Now
}

// New creates a Throttle with its own state; no package-level singleton.
func New(opts Options) *Throttle {
	if opts.TTL == 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Throttle{
		cache:       make(map[string]entry),
		ttl:         opts.TTL,
		minInterval: opts.MinInterval,
		now:         opts.Now,
		logger:      log.With().Str("component", "throttle").Logger(),
	}
}

// Key derives a deterministic cache key from the call's semantic inputs:
// the timeframe and the current price rounded to a whole unit.
func Key(timeframe string, currentPrice float64) string {
	return fmt.Sprintf("%s-%d", timeframe, int64(math.Round(currentPrice)))
}

// Do returns the cached result for key when fresh, unless force bypasses
// the cache read. On a miss it invokes fn, subject to the global minimum
// interval; a too-soon call fails with ErrRateLimited immediately.
func (t *Throttle) Do(ctx context.Context, key string, force bool, fn func(context.Context) (*model.ForecastResult, error)) (*model.ForecastResult, error) {
	t.mu.Lock()
	now := t.now()

	if !force {
		if e, ok := t.cache[key]; ok && now.Sub(e.cachedAt) < t.ttl {
			t.mu.Unlock()
			t.logger.Debug().Str("key", key).Msg("Returning cached forecast")
			return e.result, nil
		}
	}

	if !t.lastInvocation.IsZero() && now.Sub(t.lastInvocation) < t.minInterval {
		t.mu.Unlock()
		t.logger.Warn().Str("key", key).Msg("Invocation rejected by rate limit")
		return nil, ErrRateLimited
	}
	t.lastInvocation = now
	t.mu.Unlock()

	// The wrapped call may take minutes; never hold the lock across it.
	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.cache[key] = entry{result: result, cachedAt: t.now()}
	t.purgeExpiredLocked()
	t.mu.Unlock()

	return result, nil
}

// purgeExpiredLocked drops entries older than the TTL. Caller holds t.mu.
func (t *Throttle) purgeExpiredLocked() {
	now := t.now()
	for k, e := range t.cache {
		if now.Sub(e.cachedAt) >= t.ttl {
			delete(t.cache, k)
		}
	}
}
