package runner

import (
	"errors"
	"os"
	"strconv"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/cleanip/pkg/scanner"
	"github.com/projectdiscovery/cleanip/pkg/settings"
	"github.com/projectdiscovery/cleanip/pkg/version"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"
	envutil "github.com/projectdiscovery/utils/env"
	fileutil "github.com/projectdiscovery/utils/file"
)

var au *aurora.Aurora

var (
	ServerNameEnv = envutil.GetEnvOrDefault("CLEANIP_SNI", "")
	PortEnv       = envutil.GetEnvOrDefault("CLEANIP_PORT", "")
)

// Options contains the configuration options for a scan session.
// Zero scan values fall back to the persisted settings.
type Options struct {
	Targets     goflags.StringSlice
	TargetsFile string
	Stdin       bool

	MaxIPCount int
	MaxLatency int
	IPRegex    string
	ServerName string
	Port       int
	Strict     bool

	Deeper   int
	NoPrompt bool

	Output string
	JSON   bool

	SettingsFile string
	SaveSettings bool

	Verbose bool
	Silent  bool
	NoColor bool
	Version bool
}

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := &Options{}
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`cleanip finds the fastest reachable edge addresses by probing them over HTTP/HTTPS`)

	defaultPort, _ := strconv.Atoi(PortEnv)

	flagSet.CreateGroup("input", "Input",
		flagSet.StringSliceVarP(&options.Targets, "target", "t", nil, "target ips or cidr ranges to probe (comma separated)", goflags.CommaSeparatedStringSliceOptions),
		flagSet.StringVarP(&options.TargetsFile, "list", "l", "", "file containing target ips or cidr ranges, one per line"),
	)

	flagSet.CreateGroup("scan", "Scan",
		flagSet.IntVarP(&options.MaxIPCount, "max-ips", "mi", 0, "stop after this many addresses were admitted (default from settings)"),
		flagSet.IntVarP(&options.MaxLatency, "max-latency", "ml", 0, "maximum acceptable latency in ms (default from settings)"),
		flagSet.StringVarP(&options.IPRegex, "ip-regex", "ir", "", "only probe addresses fully matching this regex"),
		flagSet.StringVar(&options.ServerName, "sni", ServerNameEnv, "tls server name and host header override"),
		flagSet.IntVarP(&options.Port, "port", "p", defaultPort, "target port, https is used for 443,2053,2083,2087,2096,8443 with -sni"),
		flagSet.BoolVar(&options.Strict, "strict", false, "count only completed requests as successful attempts"),
	)

	flagSet.CreateGroup("deeper", "Deeper-Search",
		flagSet.IntVarP(&options.Deeper, "deeper", "d", 0, "number of automatic deeper search rounds"),
		flagSet.BoolVarP(&options.NoPrompt, "no-prompt", "np", false, "never ask to search deeper"),
	)

	flagSet.CreateGroup("output", "Output",
		flagSet.StringVarP(&options.Output, "output", "o", "", "file to write admitted addresses to (jsonl)"),
		flagSet.BoolVarP(&options.JSON, "json", "j", false, "write results as json lines to stdout"),
	)

	flagSet.CreateGroup("settings", "Settings",
		flagSet.StringVar(&options.SettingsFile, "settings", settings.DefaultPath(), "persisted settings file"),
		flagSet.BoolVarP(&options.SaveSettings, "save-settings", "ss", false, "persist the effective scan settings"),
	)

	flagSet.CreateGroup("debug", "Debug",
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "show verbose output"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only results in output"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	// configure aurora for logging
	au = aurora.New(aurora.WithColors(true))

	options.configureOutput()

	showBanner()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version.GetVersion())
		os.Exit(0)
	}

	options.Stdin = fileutil.HasStdin()

	if err := options.validateOptions(); err != nil {
		gologger.Fatal().Msgf("Program exiting: %s\n", err)
	}

	return options
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	// If the user desires verbose output, show verbose output
	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
		au = aurora.New(aurora.WithColors(false))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}

// validateOptions checks the flag combination before any persisted value is merged
func (options *Options) validateOptions() error {
	if len(options.Targets) == 0 && options.TargetsFile == "" && !options.Stdin {
		return errors.New("no input provided, use -target, -list or stdin")
	}
	if options.TargetsFile != "" && !fileutil.FileExists(options.TargetsFile) {
		return errors.New("target list does not exist: " + options.TargetsFile)
	}
	if options.Deeper < 0 {
		return errors.New("deeper search rounds can't be negative")
	}
	if options.MaxIPCount < 0 || options.MaxLatency < 0 || options.Port < 0 {
		return errors.New("scan values can't be negative")
	}
	if _, err := scanner.CompileFilter(options.IPRegex); err != nil {
		return err
	}
	return nil
}

// ScanSettings merges the flags over persisted values
func (options *Options) ScanSettings(persisted scanner.Settings) scanner.Settings {
	s := persisted
	if options.MaxIPCount > 0 {
		s.MaxIPCount = options.MaxIPCount
	}
	if options.MaxLatency > 0 {
		s.MaxLatency = options.MaxLatency
	}
	if options.IPRegex != "" {
		s.Filter = options.IPRegex
	}
	if options.ServerName != "" {
		s.ServerName = options.ServerName
	}
	if options.Port > 0 {
		s.Port = options.Port
	}
	return s
}
