package scanner

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestAttemptTimeout(t *testing.T) {
	tests := []struct {
		name       string
		maxLatency int
		multiplier float64
		first      time.Duration
		retry      time.Duration
	}{
		{
			name:       "fast tier",
			maxLatency: 400,
			multiplier: 1.5,
			first:      600 * time.Millisecond,
			retry:      720 * time.Millisecond,
		},
		{
			name:       "fast tier upper bound",
			maxLatency: 500,
			multiplier: 1.5,
			first:      750 * time.Millisecond,
			retry:      900 * time.Millisecond,
		},
		{
			name:       "medium tier",
			maxLatency: 1000,
			multiplier: 1.2,
			first:      1200 * time.Millisecond,
			retry:      1440 * time.Millisecond,
		},
		{
			name:       "slow tier",
			maxLatency: 2000,
			multiplier: 1.0,
			first:      2000 * time.Millisecond,
			retry:      2400 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settings{MaxIPCount: 1, MaxLatency: tt.maxLatency, Port: 443}
			if got := s.LatencyMultiplier(); got != tt.multiplier {
				t.Errorf("LatencyMultiplier() = %v, want %v", got, tt.multiplier)
			}
			if got := s.AttemptTimeout(0); got != tt.first {
				t.Errorf("AttemptTimeout(0) = %v, want %v", got, tt.first)
			}
			for _, attempt := range []int{1, 2} {
				if got := s.AttemptTimeout(attempt); got != tt.retry {
					t.Errorf("AttemptTimeout(%d) = %v, want %v", attempt, got, tt.retry)
				}
			}
		})
	}
}

func TestSettingsTarget(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     Target
	}{
		{
			name:     "server name on https port",
			settings: Settings{ServerName: "example.com", Port: 443},
			want:     Target{Address: "1.1.1.1", Port: 443, Scheme: "https", Path: TLSPath, ServerName: "example.com"},
		},
		{
			name:     "server name on alternate https port",
			settings: Settings{ServerName: "example.com", Port: 8443},
			want:     Target{Address: "1.1.1.1", Port: 8443, Scheme: "https", Path: TLSPath, ServerName: "example.com"},
		},
		{
			name:     "server name on http port",
			settings: Settings{ServerName: "example.com", Port: 8080},
			want:     Target{Address: "1.1.1.1", Port: 8080, Scheme: "http", Path: PlainPath},
		},
		{
			name:     "https port without server name",
			settings: Settings{Port: 443},
			want:     Target{Address: "1.1.1.1", Port: 443, Scheme: "http", Path: PlainPath},
		},
		{
			name:     "low port floored to 80",
			settings: Settings{Port: 53},
			want:     Target{Address: "1.1.1.1", Port: 80, Scheme: "http", Path: PlainPath},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.Target("1.1.1.1"); got != tt.want {
				t.Errorf("Target() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  bool
	}{
		{name: "valid", settings: Settings{MaxIPCount: 1, MaxLatency: 1, Port: 1}},
		{name: "zero count", settings: Settings{MaxIPCount: 0, MaxLatency: 1000, Port: 443}, wantErr: true},
		{name: "negative latency", settings: Settings{MaxIPCount: 1, MaxLatency: -1, Port: 443}, wantErr: true},
		{name: "port too large", settings: Settings{MaxIPCount: 1, MaxLatency: 1000, Port: 70000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("Validate() error = %v, want ErrInvalidSettings", err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "nil", err: nil, want: OutcomeSuccess},
		{name: "deadline", err: context.DeadlineExceeded, want: OutcomeTimeout},
		{name: "canceled", err: context.Canceled, want: OutcomeTimeout},
		{name: "wrapped deadline", err: &url.Error{Op: "Get", URL: "http://1.1.1.1", Err: context.DeadlineExceeded}, want: OutcomeTimeout},
		{name: "net timeout", err: fakeNetError{timeout: true}, want: OutcomeTimeout},
		{name: "net non timeout", err: fakeNetError{timeout: false}, want: OutcomeOther},
		{name: "other", err: errors.New("connection refused"), want: OutcomeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProberAdmissionBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		maxLatency  int
		delay       time.Duration
		wantLatency int64
		wantAdmit   bool
	}{
		{name: "at floor", maxLatency: 1000, delay: 50 * time.Millisecond, wantLatency: 50, wantAdmit: false},
		{name: "just above floor", maxLatency: 1000, delay: 51 * time.Millisecond, wantLatency: 51, wantAdmit: true},
		{name: "at max latency", maxLatency: 400, delay: 400 * time.Millisecond, wantLatency: 400, wantAdmit: true},
		{name: "above max latency", maxLatency: 400, delay: 401 * time.Millisecond, wantLatency: 401, wantAdmit: false},
		{name: "suspiciously fast", maxLatency: 1000, delay: 5 * time.Millisecond, wantLatency: 5, wantAdmit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			transport := newFakeTransport(clock)
			transport.always("1.1.1.1", attemptPlan{delay: tt.delay})

			p := NewProber(Settings{MaxIPCount: 1, MaxLatency: tt.maxLatency, Port: 443}, transport)
			p.now = clock.Now

			verdict := p.Probe(context.Background(), "1.1.1.1", nil)
			if verdict.LatencyMs != tt.wantLatency {
				t.Errorf("LatencyMs = %d, want %d", verdict.LatencyMs, tt.wantLatency)
			}
			if verdict.Admitted != tt.wantAdmit {
				t.Errorf("Admitted = %v, want %v", verdict.Admitted, tt.wantAdmit)
			}
			if verdict.Successes != Attempts {
				t.Errorf("Successes = %d, want %d", verdict.Successes, Attempts)
			}
		})
	}
}

func TestProberAttemptOutcomes(t *testing.T) {
	ok := attemptPlan{delay: 100 * time.Millisecond}
	timeout := attemptPlan{delay: 100 * time.Millisecond, err: context.DeadlineExceeded}
	refused := attemptPlan{delay: 100 * time.Millisecond, err: errors.New("connection refused")}

	tests := []struct {
		name          string
		plans         []attemptPlan
		policy        AttemptPolicy
		wantSuccesses int
		wantAdmit     bool
	}{
		{name: "all succeed", plans: []attemptPlan{ok, ok, ok}, policy: DefaultAttemptPolicy, wantSuccesses: 3, wantAdmit: true},
		{name: "one timeout", plans: []attemptPlan{ok, timeout, ok}, policy: DefaultAttemptPolicy, wantSuccesses: 2, wantAdmit: false},
		{name: "first attempt timeout", plans: []attemptPlan{timeout, ok, ok}, policy: DefaultAttemptPolicy, wantSuccesses: 2, wantAdmit: false},
		{name: "non timeout failures count by default", plans: []attemptPlan{refused, refused, refused}, policy: DefaultAttemptPolicy, wantSuccesses: 3, wantAdmit: true},
		{name: "strict policy rejects failures", plans: []attemptPlan{ok, refused, ok}, policy: StrictAttemptPolicy, wantSuccesses: 2, wantAdmit: false},
		{name: "strict policy admits clean runs", plans: []attemptPlan{ok, ok, ok}, policy: StrictAttemptPolicy, wantSuccesses: 3, wantAdmit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			transport := newFakeTransport(clock)
			transport.script("1.1.1.1", tt.plans...)

			p := NewProber(Settings{MaxIPCount: 1, MaxLatency: 1000, Port: 443}, transport)
			p.now = clock.Now
			p.policy = tt.policy

			verdict := p.Probe(context.Background(), "1.1.1.1", nil)
			if verdict.Successes != tt.wantSuccesses {
				t.Errorf("Successes = %d, want %d", verdict.Successes, tt.wantSuccesses)
			}
			if verdict.Admitted != tt.wantAdmit {
				t.Errorf("Admitted = %v, want %v", verdict.Admitted, tt.wantAdmit)
			}
			if got := transport.callsFor("1.1.1.1"); got != Attempts {
				t.Errorf("calls = %d, want %d", got, Attempts)
			}
		})
	}
}

func TestProberProgress(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport(clock)
	transport.script("1.1.1.1",
		attemptPlan{delay: 90 * time.Millisecond},
		attemptPlan{delay: 110 * time.Millisecond},
		attemptPlan{delay: 100 * time.Millisecond},
	)

	p := NewProber(Settings{MaxIPCount: 1, MaxLatency: 1000, Port: 443}, transport)
	p.now = clock.Now

	var events []Progress
	verdict := p.Probe(context.Background(), "1.1.1.1", func(pr Progress) {
		events = append(events, pr)
	})

	// one event before and one after every attempt
	if len(events) != 2*Attempts {
		t.Fatalf("got %d progress events, want %d", len(events), 2*Attempts)
	}
	after := []Progress{events[1], events[3], events[5]}
	want := []Progress{
		{Candidate: "1.1.1.1", Attempt: 1, LatencyMs: 0, Color: ColorCold},
		{Candidate: "1.1.1.1", Attempt: 2, LatencyMs: 100, Color: ColorWarm},
		{Candidate: "1.1.1.1", Attempt: 3, LatencyMs: 100, Color: ColorWarm},
	}
	for i := range want {
		if after[i] != want[i] {
			t.Errorf("progress after attempt %d = %+v, want %+v", i, after[i], want[i])
		}
	}
	for i := 0; i < Attempts; i++ {
		if events[2*i].Attempt != i+1 {
			t.Errorf("progress before attempt %d has Attempt = %d", i, events[2*i].Attempt)
		}
	}
	if verdict.LatencyMs != 100 {
		t.Errorf("LatencyMs = %d, want 100", verdict.LatencyMs)
	}
}

func TestProberHonoursDeadline(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport(clock)
	var deadlines []time.Duration
	transport.hook = func(ctx context.Context, _ Target, _ int) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("attempt context has no deadline")
			return nil
		}
		deadlines = append(deadlines, time.Until(deadline))
		return nil
	}

	p := NewProber(Settings{MaxIPCount: 1, MaxLatency: 400, Port: 443}, transport)
	p.now = clock.Now
	p.Probe(context.Background(), "1.1.1.1", nil)

	if len(deadlines) != Attempts {
		t.Fatalf("got %d deadlines, want %d", len(deadlines), Attempts)
	}
	if deadlines[0] > 600*time.Millisecond || deadlines[0] < 500*time.Millisecond {
		t.Errorf("first deadline = %v, want about 600ms", deadlines[0])
	}
	for _, d := range deadlines[1:] {
		if d > 720*time.Millisecond || d < 620*time.Millisecond {
			t.Errorf("retry deadline = %v, want about 720ms", d)
		}
	}
}

func TestProberStopsOnCancelledContext(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport(clock)
	transport.always("1.1.1.1", attemptPlan{delay: 100 * time.Millisecond})

	p := NewProber(Settings{MaxIPCount: 1, MaxLatency: 1000, Port: 443}, transport)
	p.now = clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdict := p.Probe(ctx, "1.1.1.1", nil)
	if verdict.Admitted {
		t.Error("candidate admitted with a cancelled context")
	}
	if got := transport.totalCalls(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}
