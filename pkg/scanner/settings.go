package scanner

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Diagnostic paths requested on every probe attempt
const (
	// TLSPath is requested over HTTPS when a server name override is configured
	TLSPath = "/__down"
	// PlainPath is requested over plain HTTP
	PlainPath = "/cdn-cgi/trace"
	// MinPlainPort is the lowest port used for plain HTTP probing
	MinPlainPort = 80
)

// httpsPorts is the fixed set of ports probed over HTTPS
var httpsPorts = map[int]struct{}{
	443:  {},
	2053: {},
	2083: {},
	2087: {},
	2096: {},
	8443: {},
}

// ErrInvalidSettings is returned when scan settings fail validation
var ErrInvalidSettings = errors.New("invalid scan settings")

// Settings holds the caller supplied tuning parameters of a scan.
// Settings are immutable for the lifetime of an Engine.
type Settings struct {
	// MaxIPCount is the number of admitted results after which a scan stops
	MaxIPCount int
	// MaxLatency is the maximum acceptable latency in milliseconds
	MaxLatency int
	// Filter is an optional regular expression every candidate must fully match
	Filter string
	// ServerName is an optional TLS server name (and Host header) override
	ServerName string
	// Port is the target port
	Port int
}

// Validate checks that the settings can drive a scan
func (s Settings) Validate() error {
	if s.MaxIPCount <= 0 {
		return fmt.Errorf("%w: max ip count must be positive, got %d", ErrInvalidSettings, s.MaxIPCount)
	}
	if s.MaxLatency <= 0 {
		return fmt.Errorf("%w: max latency must be positive, got %d", ErrInvalidSettings, s.MaxLatency)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port out of range: %d", ErrInvalidSettings, s.Port)
	}
	return nil
}

// IsHTTPSPort reports whether port belongs to the HTTPS port set
func IsHTTPSPort(port int) bool {
	_, ok := httpsPorts[port]
	return ok
}

// UseTLS reports whether candidates are probed over HTTPS.
// Both a server name and an HTTPS port are required.
func (s Settings) UseTLS() bool {
	return s.ServerName != "" && IsHTTPSPort(s.Port)
}

// Target builds the probe target for a candidate address
func (s Settings) Target(address string) Target {
	if s.UseTLS() {
		return Target{
			Address:    address,
			Port:       s.Port,
			Scheme:     "https",
			Path:       TLSPath,
			ServerName: s.ServerName,
		}
	}
	port := s.Port
	if port < MinPlainPort {
		port = MinPlainPort
	}
	return Target{
		Address: address,
		Port:    port,
		Scheme:  "http",
		Path:    PlainPath,
	}
}

// LatencyMultiplier returns the timeout multiplier for the latency tier
//   - <= 500ms: 1.5
//   - <= 1000ms: 1.2
//   - otherwise: 1.0
func (s Settings) LatencyMultiplier() float64 {
	switch {
	case s.MaxLatency <= 500:
		return 1.5
	case s.MaxLatency <= 1000:
		return 1.2
	default:
		return 1.0
	}
}

// AttemptTimeout returns the hard deadline of the given attempt index.
// The first attempt gets multiplier x MaxLatency, retries get 1.2 times that.
func (s Settings) AttemptTimeout(attempt int) time.Duration {
	ms := s.LatencyMultiplier() * float64(s.MaxLatency)
	if attempt > 0 {
		ms *= 1.2
	}
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
