package scanner

import (
	"context"
	"errors"
	"net"
	"time"
)

const (
	// Attempts is the fixed number of requests issued per candidate
	Attempts = 3
	// MinLatencyMs is the exclusive lower latency bound for admission.
	// Faster answers usually come from loopback or cached responses.
	MinLatencyMs = 50
)

// Target is a single probe destination
type Target struct {
	Address    string
	Port       int
	Scheme     string
	Path       string
	ServerName string
}

// Transport performs one timed request against a target.
// The request must be aborted when ctx is done.
type Transport interface {
	Probe(ctx context.Context, target Target) error
}

// Outcome classifies a single attempt
type Outcome int

const (
	// OutcomeSuccess means the request completed with any HTTP response
	OutcomeSuccess Outcome = iota
	// OutcomeTimeout means the deadline expired or the request was aborted
	OutcomeTimeout
	// OutcomeOther is any other transport failure
	OutcomeOther
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeOther:
		return "other"
	default:
		return "unknown"
	}
}

// Classify maps a transport error to an attempt outcome
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeOther
}

// AttemptPolicy decides whether an attempt outcome counts towards admission
type AttemptPolicy func(Outcome) bool

// DefaultAttemptPolicy excludes only timeouts; non-timeout transport
// failures count as successful attempts.
func DefaultAttemptPolicy(o Outcome) bool {
	return o != OutcomeTimeout
}

// StrictAttemptPolicy counts only completed requests
func StrictAttemptPolicy(o Outcome) bool {
	return o == OutcomeSuccess
}

// Admit is the admission rule for a probed candidate
func Admit(successes int, latencyMs int64, maxLatency int) bool {
	return successes == Attempts && latencyMs > MinLatencyMs && latencyMs <= int64(maxLatency)
}

// Verdict is the outcome of probing one candidate
type Verdict struct {
	Address   string
	Successes int
	LatencyMs int64
	Admitted  bool
}

// Prober runs the fixed attempt protocol against single candidates
type Prober struct {
	settings  Settings
	transport Transport
	policy    AttemptPolicy
	now       func() time.Time
}

// NewProber creates a prober with the default attempt policy
func NewProber(settings Settings, transport Transport) *Prober {
	return &Prober{
		settings:  settings,
		transport: transport,
		policy:    DefaultAttemptPolicy,
		now:       time.Now,
	}
}

// Probe issues Attempts sequential requests to address and returns the verdict.
// onProgress, when set, is called before and after every attempt.
// Attempts stop early only when ctx is done.
func (p *Prober) Probe(ctx context.Context, address string, onProgress func(Progress)) Verdict {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	target := p.settings.Target(address)

	var (
		successes int
		progress  = Progress{Candidate: address, Color: ColorCold}
		start     = p.now()
	)
	for attempt := 0; attempt < Attempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		progress.Attempt = attempt + 1
		onProgress(progress)

		attemptCtx, cancel := context.WithTimeout(ctx, p.settings.AttemptTimeout(attempt))
		err := p.transport.Probe(attemptCtx, target)
		cancel()

		if p.policy(Classify(err)) {
			successes++
		}

		if attempt == 0 {
			progress.LatencyMs = 0
			progress.Color = ColorCold
		} else {
			progress.LatencyMs = p.now().Sub(start).Milliseconds() / int64(attempt+1)
			progress.Color = ColorWarm
		}
		onProgress(progress)
	}

	latency := p.now().Sub(start).Milliseconds() / Attempts
	return Verdict{
		Address:   address,
		Successes: successes,
		LatencyMs: latency,
		Admitted:  Admit(successes, latency, p.settings.MaxLatency),
	}
}
