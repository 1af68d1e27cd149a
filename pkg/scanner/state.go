package scanner

// State is the lifecycle state of the scan engine.
//
//	idle     -> scanning            (Start)
//	scanning -> stopping            (Stop)
//	scanning -> scanning            (Start, supersedes the running scan)
//	scanning -> idle                (loop completion)
//	stopping -> idle                (loop completion, or Stop)
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateStopping State = "stopping"
)

// Color signals whether the published latency is an estimate yet
type Color int

const (
	// ColorCold is used while the first attempt of a candidate runs
	ColorCold Color = iota
	// ColorWarm is used once a rolling latency estimate is available
	ColorWarm
)

func (c Color) String() string {
	if c == ColorWarm {
		return "warm"
	}
	return "cold"
}

// Progress describes the in-flight probe. It is overwritten on every attempt.
type Progress struct {
	Candidate string
	Attempt   int
	LatencyMs int64
	Color     Color
}

// Snapshot is a read model of the engine handed to observers.
// Slices are copies, callers may retain them.
type Snapshot struct {
	ScanID        string
	State         State
	Progress      Progress
	TotalAttempts int
	Results       []Result
}

// Report summarizes one finished run
type Report struct {
	ScanID string
	// Results is the ranked result list at the end of the run
	Results []Result
	// Candidates is the number of candidates left after filtering
	Candidates int
	// Evaluated is the number of candidates probed
	Evaluated int
	// DeeperAvailable is set when the depth cap dropped candidates
	DeeperAvailable bool
	// Stopped is set when the run ended on Stop or context cancellation
	Stopped bool
	// Superseded is set when a newer Start replaced this run
	Superseded bool
}
