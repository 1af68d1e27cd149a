// Package scanner finds a bounded set of candidate addresses answering
// HTTP/HTTPS reliably within a latency budget, ranked by latency.
//
// A scan filters the candidates (full-match regex), shuffles them, keeps the
// first DefaultDepth of the shuffled order and probes them one at a time.
// Every candidate gets Attempts sequential requests with escalating deadlines:
//
//	attempt 0:    multiplier x MaxLatency
//	attempts 1-2: 1.2 x multiplier x MaxLatency
//
// where the multiplier is 1.5 up to 500ms, 1.2 up to 1000ms and 1.0 above.
// A candidate is admitted when all attempts count as successful and the
// average latency is within (MinLatencyMs, MaxLatency]. The scan stops when
// MaxIPCount results were admitted, the candidates are exhausted, or Stop was
// called.
//
// Lifecycle:
//
//	idle -> scanning -> (stopping) -> idle
//
// Stop is cooperative and observed between candidates. Cancelling the context
// passed to Start aborts the in-flight request. Observers either poll Snapshot
// or register a callback with Subscribe.
//
// Example:
//
//	engine, err := scanner.New(scanner.Settings{
//		MaxIPCount: 10,
//		MaxLatency: 1000,
//		ServerName: "example.com",
//		Port:       443,
//	}, probe.New())
//	report, err := engine.Scan(ctx, addresses)
//	if report.DeeperAvailable {
//		report, err = engine.Rescan(ctx, addresses)
//	}
package scanner
