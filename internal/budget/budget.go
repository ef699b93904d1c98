// Package budget tracks the request allowance shared by every upstream call
// made by the process.
package budget

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/qepting91/reddit-top/internal/domain"
	"golang.org/x/time/rate"
)

const defaultMaxWait = 5 * time.Second

// Options configures a Budget.
type Options struct {
	// MinDelay is the minimum spacing between two requests.
	MinDelay time.Duration
	// MaxWait bounds how long Acquire blocks before failing with ErrRateLimited.
	MaxWait time.Duration
	// LowWater is the remaining allowance at or below which requests are
	// spread evenly until the window resets. Zero disables pacing.
	LowWater int
}

// State is a point-in-time copy of the budget counters.
type State struct {
	Known     bool
	Remaining int
	ResetAt   time.Time
}

// Budget is the process-wide RateBudget. The zero value is not usable; use New.
type Budget struct {
	limiter  *rate.Limiter
	maxWait  time.Duration
	lowWater int

	mu        sync.Mutex
	known     bool
	remaining int
	resetAt   time.Time
}

func New(opts Options) *Budget {
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	limit := rate.Inf
	if opts.MinDelay > 0 {
		limit = rate.Every(opts.MinDelay)
	}
	return &Budget{
		limiter:  rate.NewLimiter(limit, 1),
		maxWait:  opts.MaxWait,
		lowWater: opts.LowWater,
	}
}

// Acquire blocks until one request may be sent. It fails with
// domain.ErrRateLimited when no allowance frees up within MaxWait, and with
// ctx.Err() when ctx ends first. A unit taken for a request that is then
// never sent goes back to the budget.
func (b *Budget) Acquire(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()

	var (
		pace   time.Duration
		window time.Time
	)
	for {
		ok, wait, p, w := b.reserve(time.Now())
		if ok {
			pace, window = p, w
			break
		}
		if err := sleep(wctx, wait); err != nil {
			return b.waitErr(ctx)
		}
	}

	if err := b.limiter.Wait(wctx); err != nil {
		b.release(window)
		return b.waitErr(ctx)
	}
	if pace > 0 {
		if err := sleep(ctx, min(pace, b.maxWait)); err != nil {
			b.release(window)
			return err
		}
	}
	return nil
}

// reserve takes one unit of allowance. When none is left it reports how long
// until the upstream window resets. window is the reset time of the window
// the unit came from, zero when the allowance is unknown.
func (b *Budget) reserve(now time.Time) (ok bool, wait, pace time.Duration, window time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.known && !now.Before(b.resetAt) {
		// new window; the next response reports the fresh allowance
		b.known = false
	}
	if !b.known {
		return true, 0, 0, time.Time{}
	}
	if b.remaining <= 0 {
		return false, b.resetAt.Sub(now), 0, time.Time{}
	}

	left := b.remaining
	b.remaining--
	if left <= b.lowWater {
		pace = b.resetAt.Sub(now) / time.Duration(left)
	}
	return true, 0, pace, b.resetAt
}

// release returns a unit taken by reserve, unless the window it came from
// has been replaced since.
func (b *Budget) release(window time.Time) {
	if window.IsZero() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.known && b.resetAt.Equal(window) {
		b.remaining++
	}
}

func (b *Budget) waitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: no request allowance within %s", domain.ErrRateLimited, b.maxWait)
}

// Observe records the allowance reported by the most recent response.
// Reports for the current window never raise the local count, since requests
// reserved after that response was produced are already subtracted.
func (b *Budget) Observe(remaining int, resetAt time.Time) {
	if remaining < 0 {
		remaining = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sameWindow := b.known && resetAt.Sub(b.resetAt).Abs() <= time.Second
	if sameWindow && remaining > b.remaining {
		return
	}
	b.known = true
	b.remaining = remaining
	b.resetAt = resetAt
}

// ObserveHeaders reads Reddit's X-Ratelimit-* headers. Responses without
// them leave the budget untouched.
func (b *Budget) ObserveHeaders(h http.Header) {
	rem := h.Get("X-Ratelimit-Remaining")
	reset := h.Get("X-Ratelimit-Reset")
	if rem == "" || reset == "" {
		return
	}
	remaining, err := strconv.ParseFloat(rem, 64)
	if err != nil {
		return
	}
	secs, err := strconv.ParseFloat(reset, 64)
	if err != nil {
		return
	}
	b.Observe(int(math.Floor(remaining)), time.Now().Add(time.Duration(secs*float64(time.Second))))
}

// Exhaust marks the allowance as spent until retryAfter has passed. Used
// when the upstream rejects a request outright.
func (b *Budget) Exhaust(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.known = true
	b.remaining = 0
	b.resetAt = time.Now().Add(retryAfter)
}

// RetryAfter reads how long the upstream asked us to back off. Zero means
// the response did not say.
func RetryAfter(h http.Header) time.Duration {
	for _, key := range []string{"Retry-After", "X-Ratelimit-Reset"} {
		if v := h.Get(key); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}

func (b *Budget) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{Known: b.known, Remaining: b.remaining, ResetAt: b.resetAt}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
