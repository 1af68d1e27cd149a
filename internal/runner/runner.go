package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/cleanip/pkg/candidates"
	"github.com/projectdiscovery/cleanip/pkg/output"
	"github.com/projectdiscovery/cleanip/pkg/probe"
	"github.com/projectdiscovery/cleanip/pkg/scanner"
	"github.com/projectdiscovery/cleanip/pkg/settings"
	"github.com/projectdiscovery/cleanip/pkg/types"
	"github.com/projectdiscovery/gcache"
	"github.com/projectdiscovery/gologger"
	errorutil "github.com/projectdiscovery/utils/errors"
	sliceutil "github.com/projectdiscovery/utils/slice"
)

// historySize bounds the best-latency history kept across deeper rounds
const historySize = 4096

// Runner contains the internal logic of the program
type Runner struct {
	options  *Options
	settings scanner.Settings
	engine   *scanner.Engine
	writer   *output.Writer
	history  gcache.Cache[string, int64]
	in       *bufio.Reader

	stop     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	last     scanner.Progress
	exported map[string]struct{}
	round    int
}

// NewRunner instance
func NewRunner(options *Options) (*Runner, error) {
	return newRunner(options, probe.New(), os.Stdin)
}

func newRunner(options *Options, transport scanner.Transport, in io.Reader) (*Runner, error) {
	if au == nil {
		au = aurora.New(aurora.WithColors(!options.NoColor))
	}

	persisted, err := settings.Load(options.SettingsFile)
	if err != nil {
		return nil, errorutil.NewWithErr(err).Msgf("could not load settings from %s", options.SettingsFile)
	}
	scanSettings := options.ScanSettings(persisted)
	if err := scanSettings.Validate(); err != nil {
		return nil, err
	}
	if options.SaveSettings {
		if err := settings.Save(options.SettingsFile, scanSettings); err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not save settings to %s", options.SettingsFile)
		}
		gologger.Info().Msgf("Saved settings to %s", options.SettingsFile)
	}

	var engineOpts []scanner.Option
	if options.Strict {
		engineOpts = append(engineOpts, scanner.WithAttemptPolicy(scanner.StrictAttemptPolicy))
	}
	engine, err := scanner.New(scanSettings, transport, engineOpts...)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		options:  options,
		settings: scanSettings,
		engine:   engine,
		history:  gcache.New[string, int64](historySize).LRU().Build(),
		in:       bufio.NewReader(in),
		stop:     make(chan struct{}),
		exported: make(map[string]struct{}),
	}

	switch {
	case options.Output != "":
		r.writer, err = output.New(options.Output)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not create output file %s", options.Output)
		}
	case options.JSON:
		r.writer = output.NewFromWriter(os.Stdout)
	}
	return r, nil
}

// Run scans the candidates and searches deeper while allowed
func (r *Runner) Run(ctx context.Context) error {
	addresses, err := r.loadCandidates()
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return errors.New("no candidate addresses to probe")
	}

	target := r.settings.Target("")
	gologger.Info().Msgf("Loaded %s candidate addresses, probing %s port %d", humanize.Comma(int64(len(addresses))), target.Scheme, target.Port)
	if r.settings.ServerName != "" && !r.settings.UseTLS() {
		gologger.Warning().Msgf("Port %d is not an https port, server name %s is ignored", r.settings.Port, r.settings.ServerName)
	}

	unsubscribe := r.engine.Subscribe(r.onSnapshot)
	defer unsubscribe()

	start := time.Now()
	evaluated := 0
	round := 0
	for {
		r.setRound(round)

		var report scanner.Report
		if round == 0 {
			report, err = r.engine.Scan(ctx, addresses)
		} else {
			report, err = r.engine.Rescan(ctx, addresses)
		}
		if err != nil {
			return err
		}
		evaluated += report.Evaluated
		r.record(report)
		r.printResults(report)

		if ctx.Err() != nil || report.Stopped {
			break
		}
		if !report.DeeperAvailable || len(report.Results) >= r.settings.MaxIPCount {
			break
		}
		if !r.searchDeeper(ctx, round) {
			break
		}
		round++
	}

	if round > 0 {
		r.printHistory(round + 1)
	}
	gologger.Info().Msgf("Evaluated %s addresses in %s", humanize.Comma(int64(evaluated)), time.Since(start).Round(time.Millisecond))
	return nil
}

// Stop asks the running scan to finish after the current candidate
// and declines any further deeper-search round.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.engine.Stop()
}

// Close flushes the output writer
func (r *Runner) Close() error {
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	if r.options.Output != "" {
		gologger.Info().Msgf("Wrote %s results to %s", humanize.Comma(int64(r.writer.Written())), r.options.Output)
	}
	return err
}

func (r *Runner) loadCandidates() ([]string, error) {
	var addresses []string

	if len(r.options.Targets) > 0 {
		expanded, err := candidates.Expand(r.options.Targets)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not parse targets")
		}
		addresses = append(addresses, expanded...)
	}
	if r.options.TargetsFile != "" {
		loaded, err := candidates.LoadFile(r.options.TargetsFile)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not load target list %s", r.options.TargetsFile)
		}
		addresses = append(addresses, loaded...)
	}
	if r.options.Stdin {
		parsed, err := candidates.Parse(r.in)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not read targets from stdin")
		}
		addresses = append(addresses, parsed...)
	}
	return sliceutil.Dedupe(addresses), nil
}

func (r *Runner) setRound(round int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.round = round
}

// onSnapshot logs progress and exports newly admitted results
func (r *Runner) onSnapshot(s scanner.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Progress.Candidate != "" && s.Progress != r.last {
		r.last = s.Progress
		gologger.Verbose().Msgf("[%s] %s attempt %d/%d %s", humanize.Comma(int64(s.TotalAttempts)), s.Progress.Candidate, s.Progress.Attempt, scanner.Attempts, colorLatency(s.Progress))
	}

	for _, result := range s.Results {
		key := s.ScanID + "/" + result.Address
		if _, ok := r.exported[key]; ok {
			continue
		}
		r.exported[key] = struct{}{}
		gologger.Verbose().Msgf("Admitted %s (%dms)", result.Address, result.LatencyMs)
		r.export(s.ScanID, result)
	}
}

func colorLatency(p scanner.Progress) string {
	if p.Color == scanner.ColorCold {
		return au.Yellow("measuring").String()
	}
	return au.Green(fmt.Sprintf("~%dms", p.LatencyMs)).String()
}

func (r *Runner) export(scanID string, result scanner.Result) {
	if r.writer == nil {
		return
	}
	target := r.settings.Target(result.Address)
	entry := types.ResultEntry{
		ScanID:     scanID,
		Address:    result.Address,
		LatencyMs:  result.LatencyMs,
		Scheme:     target.Scheme,
		Port:       target.Port,
		ServerName: target.ServerName,
		Round:      r.round,
	}
	entry.SetTimestamp(time.Now())
	if err := r.writer.Write(entry); err != nil {
		gologger.Warning().Msgf("Could not export %s: %s", result.Address, err)
	}
}

// record keeps the best latency seen per address across rounds
func (r *Runner) record(report scanner.Report) {
	for _, result := range report.Results {
		if best, err := r.history.Get(result.Address); err == nil && best <= result.LatencyMs {
			continue
		}
		_ = r.history.Set(result.Address, result.LatencyMs)
	}
}

func (r *Runner) printResults(report scanner.Report) {
	if len(report.Results) == 0 {
		if report.Stopped {
			gologger.Warning().Msgf("Scan stopped after %d addresses, nothing admitted", report.Evaluated)
		} else {
			gologger.Info().Msgf("No address answered within %dms", r.settings.MaxLatency)
		}
		return
	}

	gologger.Info().Msgf("Found %d/%d addresses (scan %s)", len(report.Results), r.settings.MaxIPCount, report.ScanID)
	if r.options.JSON && r.options.Output == "" {
		return
	}
	for _, result := range report.Results {
		gologger.Silent().Msgf("%s\t%s", result.Address, au.Green(fmt.Sprintf("%dms", result.LatencyMs)))
	}
}

func (r *Runner) printHistory(rounds int) {
	best := r.history.GetALL(false)
	if len(best) == 0 {
		return
	}
	results := make([]scanner.Result, 0, len(best))
	for address, latency := range best {
		results = append(results, scanner.Result{Address: address, LatencyMs: latency})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].LatencyMs != results[j].LatencyMs {
			return results[i].LatencyMs < results[j].LatencyMs
		}
		return results[i].Address < results[j].Address
	})

	gologger.Info().Msgf("Best addresses across %d rounds:", rounds)
	for _, result := range results {
		gologger.Info().Msgf("  %s\t%s", result.Address, au.Cyan(fmt.Sprintf("%dms", result.LatencyMs)))
	}
}

// searchDeeper decides whether another round runs after round.
// The prompt gives up when ctx is done or Stop was called.
func (r *Runner) searchDeeper(ctx context.Context, round int) bool {
	if ctx.Err() != nil || r.stopRequested() {
		return false
	}
	if round < r.options.Deeper {
		gologger.Info().Msgf("Searching deeper (round %d/%d)", round+1, r.options.Deeper)
		return true
	}
	// stdin already carried the targets
	if r.options.NoPrompt || r.options.Stdin || r.options.Deeper > 0 {
		return false
	}

	fmt.Fprint(os.Stderr, "search deeper? [y/N] ")
	answers := make(chan string, 1)
	go func() {
		line, err := r.in.ReadString('\n')
		if err != nil && line == "" {
			close(answers)
			return
		}
		answers <- line
	}()

	select {
	case line, ok := <-answers:
		if !ok {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	case <-ctx.Done():
		return false
	case <-r.stop:
		return false
	}
}

func (r *Runner) stopRequested() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}
