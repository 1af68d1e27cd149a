package scanner

import (
	"context"
	"sync"
	"time"
)

// fakeClock only moves when a fake transport advances it
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// attemptPlan is the scripted behaviour of one attempt
type attemptPlan struct {
	delay time.Duration
	err   error
	panic bool
}

// fakeTransport answers from per-address scripts and advances the clock by
// the scripted delay. Addresses without a script use fallback.
type fakeTransport struct {
	clock    *fakeClock
	fallback attemptPlan

	mu      sync.Mutex
	plans   map[string][]attemptPlan
	calls   map[string]int
	total   int
	targets []Target

	// hook runs before the scripted answer with the global call number.
	// A non-nil error is returned as the attempt result.
	hook func(ctx context.Context, target Target, call int) error
}

func newFakeTransport(clock *fakeClock) *fakeTransport {
	return &fakeTransport{
		clock: clock,
		plans: make(map[string][]attemptPlan),
		calls: make(map[string]int),
	}
}

// always scripts every attempt of address with the same plan
func (f *fakeTransport) always(address string, plan attemptPlan) {
	f.script(address, plan, plan, plan)
}

func (f *fakeTransport) script(address string, plans ...attemptPlan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans[address] = plans
}

func (f *fakeTransport) Probe(ctx context.Context, target Target) error {
	f.mu.Lock()
	n := f.calls[target.Address]
	f.calls[target.Address]++
	f.total++
	call := f.total
	f.targets = append(f.targets, target)
	plan := f.fallback
	if plans, ok := f.plans[target.Address]; ok && len(plans) > 0 {
		if n < len(plans) {
			plan = plans[n]
		} else {
			plan = plans[len(plans)-1]
		}
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, target, call); err != nil {
			return err
		}
	}
	if plan.panic {
		panic("transport exploded")
	}
	f.clock.Advance(plan.delay)
	return plan.err
}

func (f *fakeTransport) callsFor(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func (f *fakeTransport) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// fakeNetError is a net.Error reporting a timeout
type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "fake net error" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }
