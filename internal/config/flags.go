package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into encoding, scenes, pool, target quality, output
// stages, display, and utility. Negated flags (e.g. --no-color) are applied
// after Parse so Config defaults hold unless set.

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/encoder"
	"github.com/backmassage/condor/internal/scenedetect"
	"github.com/backmassage/condor/internal/tq"
	"github.com/backmassage/condor/internal/worker"
)

// Version is shown in --version and help; override at build time with
// -ldflags "-X github.com/backmassage/condor/internal/config.Version=...".
var Version = "0.1.0-dev"

// ParseFlags parses os.Args into cfg. On --help or --version it prints and exits.
// On error it returns non-nil (e.g. unknown flag, missing positional args).
func ParseFlags(cfg *Config) error {
	n, err := parseArgs(cfg, os.Args[1:], os.Stderr)
	if err != nil {
		return err
	}
	if n.showHelp {
		printUsage(os.Stderr)
		os.Exit(0)
	}
	if n.showVersion {
		fmt.Fprintln(os.Stdout, "condor v"+Version)
		os.Exit(0)
	}
	return nil
}

// parseArgs does the work of ParseFlags without exiting.
func parseArgs(cfg *Config, args []string, usage io.Writer) (*negatedFlags, error) {
	fs := flag.NewFlagSet("condor", flag.ContinueOnError)
	fs.SetOutput(usage)
	fs.Usage = func() { printUsage(usage) }

	var negated negatedFlags

	defineEncodingFlags(fs, cfg)
	defineSceneFlags(fs, cfg)
	definePoolFlags(fs, cfg)
	defineTargetQualityFlags(fs, cfg)
	defineOutputFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &negated)
	defineUtilityFlags(fs, &negated)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	applyNegatedFlags(cfg, &negated)
	if negated.showHelp || negated.showVersion {
		return &negated, nil
	}
	return &negated, parsePositionalArgs(fs, cfg)
}

// negatedFlags holds boolean flags that are applied after Parse.
type negatedFlags struct {
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
}

// defineEncodingFlags registers -e/--encoder, --params, --passes.
func defineEncodingFlags(fs *flag.FlagSet, cfg *Config) {
	ev := &value[encoder.Kind]{p: &cfg.Encoder, parse: encoder.ParseKind}
	fs.Var(ev, "encoder", "Encoder: aom | rav1e | svt-av1 | vpx | x264 | x265")
	fs.Var(ev, "e", "Same as --encoder")
	fs.StringVar(&cfg.EncoderParams, "params", "", "Encoder options, e.g. \"--preset 6 --crf 30\"")
	fs.StringVar(&cfg.EncoderParams, "v-params", "", "Same as --params")
	fs.IntVar(&cfg.Passes, "passes", cfg.Passes, "Encoder passes")
}

// defineSceneFlags registers --sc-method, --sc-speed, --min-scene, --max-scene, --zones.
func defineSceneFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Var(&value[scenedetect.Kind]{p: &cfg.SceneMethod, parse: scenedetect.ParseKind}, "sc-method", "Scene detection: cost | fixed")
	fs.Var(&value[scenedetect.Speed]{p: &cfg.SceneSpeed, parse: scenedetect.ParseSpeed}, "sc-speed", "Scene scoring speed: standard | fast")
	fs.IntVar(&cfg.MinScene, "min-scene", cfg.MinScene, "Minimum scene length in frames")
	fs.IntVar(&cfg.MaxScene, "max-scene", cfg.MaxScene, "Maximum scene length in frames (0: ten seconds)")
	fs.StringVar(&cfg.ZonesFile, "zones", "", "Zones file with per-range encoder overrides")
}

// definePoolFlags registers -w/--workers, --buffer, --max-tries, --max-failures.
func definePoolFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Parallel encoders (0: benchmark or hardware default)")
	fs.IntVar(&cfg.Workers, "w", cfg.Workers, "Same as --workers")
	fs.Var(&value[worker.BufferStrategy]{p: &cfg.Buffer, parse: worker.ParseBuffer}, "buffer", "Decode-ahead: none | workers:N | maximum")
	fs.IntVar(&cfg.MaxTries, "max-tries", cfg.MaxTries, "Attempts per scene")
	fs.IntVar(&cfg.MaxFailures, "max-failures", cfg.MaxFailures, "Failed scenes before aborting (-1: unlimited)")
}

// defineTargetQualityFlags registers the quantizer search flags.
func defineTargetQualityFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.TargetQuality, "target-quality", false, "Search a quantizer per scene")
	fs.Var(&value[tq.Metric]{p: &cfg.Metric, parse: tq.ParseMetric}, "metric", "Metric: vmaf[:features] | xpsnr | ssimulacra2 | butteraugli")
	fs.Var(&rangeValue{&cfg.Target}, "target", "Target score or range, e.g. 95 or 94-96")
	fs.IntVar(&cfg.Probes, "probes", cfg.Probes, "Maximum probes per scene")
	fs.Var(&rangeValue{&cfg.QRange}, "qrange", "Quantizer range, e.g. 10-50")
	fs.Var(&interpValue{&cfg.Interpolators}, "interp", "Interpolators, bootstrap,refine (e.g. natural,pchip)")
	fs.Var(&value[tq.ProbingStrategy]{p: &cfg.Probing, parse: tq.ParseProbing}, "probing", "Frames to measure: whole | skip:N | subset:POS:N | exact:F,...")
	fs.Var(&value[tq.Statistic]{p: &cfg.Statistic, parse: tq.ParseStatistic}, "statistic", "Score reduction: mean | median | harmonic | percentile:N ...")
}

// defineOutputFlags registers --concat, --quality-check, --benchmark, --max-memory, --force.
func defineOutputFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.WorkDir, "work-dir", "", "Work directory (default: .<output>.condor)")
	fs.Var(&value[condor.ConcatMethod]{p: &cfg.Concat, parse: condor.ParseConcatMethod}, "concat", "Concatenation: mkvmerge | ffmpeg")
	fs.BoolVar(&cfg.QualityCheck, "quality-check", false, "Measure every encoded scene")
	fs.BoolVar(&cfg.Benchmark, "benchmark", false, "Benchmark the worker count before encoding")
	fs.Float64Var(&cfg.BenchmarkThreshold, "benchmark-threshold", cfg.BenchmarkThreshold, "Minimum fps gain in percent per added worker")
	fs.Var(&byteSizeValue{&cfg.MaxMemory}, "max-memory", "Memory cap for benchmarking, e.g. 16G")
	fs.BoolVar(&cfg.Force, "force", false, "Start over instead of resuming")
	fs.BoolVar(&cfg.Force, "f", false, "Same as --force")
}

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log, --metrics-addr.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", "", "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", "", "Same as --log")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics, e.g. :9090")
}

// defineUtilityFlags registers --version and --help (exit after printing).
func defineUtilityFlags(fs *flag.FlagSet, n *negatedFlags) {
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets Input and Output from the two positional args when not in CheckOnly mode.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if cfg.CheckOnly {
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("need exactly input and output")
	}
	cfg.Input = args[0]
	cfg.Output = args[1]
	return nil
}

// printUsage writes the help text. Column-aligned for readability.
func printUsage(w io.Writer) {
	const col1 = 32 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "condor v" + Version + " - chunked video encoder"},
		{"", ""},
		{"  condor [OPTIONS] <input> <output>", ""},
		{"", ""},
		{"Encoding", ""},
		{"  -e, --encoder <kind>", "aom | rav1e | svt-av1 | vpx | x264 | x265 (default: svt-av1)"},
		{"  --params <options>", "Encoder options as ffmpeg codec options"},
		{"  --passes <n>", "Encoder passes (default: 1)"},
		{"", ""},
		{"Scenes", ""},
		{"  --sc-method <cost|fixed>", "Scene detection method (default: cost)"},
		{"  --sc-speed <standard|fast>", "Scene scoring speed (default: standard)"},
		{"  --min-scene <frames>", "Minimum scene length (default: 24)"},
		{"  --max-scene <frames>", "Maximum scene length (default: ten seconds)"},
		{"  --zones <path>", "Per-range encoder overrides"},
		{"", ""},
		{"Workers", ""},
		{"  -w, --workers <n>", "Parallel encoders (default: benchmark or hardware)"},
		{"  --buffer <strategy>", "none | workers:N | maximum (default: workers:1)"},
		{"  --max-tries <n>", "Attempts per scene (default: 3)"},
		{"  --max-failures <n>", "Failed scenes before aborting (default: unlimited)"},
		{"", ""},
		{"Target quality", ""},
		{"  --target-quality", "Search a quantizer per scene"},
		{"  --metric <name[:features]>", "vmaf | xpsnr (default: vmaf)"},
		{"  --target <score|lo-hi>", "Target score or range"},
		{"  --probes <n>", "Maximum probes per scene (default: 4)"},
		{"  --qrange <lo-hi>", "Quantizer range (default: encoder range)"},
		{"  --interp <boot,refine>", "Interpolators (default: natural,pchip)"},
		{"  --probing <strategy>", "whole | skip:N | subset:start|middle|end:N[%] | exact:F,..."},
		{"  --statistic <name>", "mean | median | harmonic | percentile:N ..."},
		{"", ""},
		{"Output", ""},
		{"  --work-dir <path>", "Work directory (default: .<output>.condor)"},
		{"  --concat <mkvmerge|ffmpeg>", "Scene concatenation (default: mkvmerge)"},
		{"  --quality-check", "Measure every encoded scene"},
		{"  --benchmark", "Benchmark the worker count first"},
		{"  --benchmark-threshold <pct>", "Minimum fps gain per worker (default: 5)"},
		{"  --max-memory <size>", "Memory cap while benchmarking, e.g. 16G"},
		{"  -f, --force", "Start over instead of resuming"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"  --metrics-addr <addr>", "Serve Prometheus metrics"},
		{"", ""},
		{"Utility", ""},
		{"  -l, --log <path>", "Append logs to file"},
		{"  -c, --check", "System diagnostics (ffmpeg, ffprobe, mkvmerge, encoders)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(w)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(w, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(w, l.desc)
			continue
		}
		padding := max(col1-len(l.flags), 1)
		fmt.Fprintf(w, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapters so enum and structured types work with flag.Var.

// value adapts any type with a parse function. T's String method, when it
// has one, is used for defaults in help output.
type value[T any] struct {
	p     *T
	parse func(string) (T, error)
}

func (v *value[T]) String() string {
	if v.p == nil {
		return ""
	}
	return fmt.Sprint(*v.p)
}

func (v *value[T]) Set(s string) error {
	x, err := v.parse(s)
	if err != nil {
		return err
	}
	*v.p = x
	return nil
}

// rangeValue accepts "a-b", "a,b" or a single number for a range of width zero.
type rangeValue struct{ p *[2]float64 }

func (r *rangeValue) String() string {
	if r.p == nil || *r.p == [2]float64{} {
		return ""
	}
	return fmt.Sprintf("%g-%g", r.p[0], r.p[1])
}

func (r *rangeValue) Set(s string) error {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		lo, hi, ok = strings.Cut(s, ",")
	}
	if !ok {
		hi = lo
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return fmt.Errorf("invalid range %q", s)
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return fmt.Errorf("invalid range %q", s)
	}
	if a > b {
		return fmt.Errorf("invalid range %q (low end above high end)", s)
	}
	*r.p = [2]float64{a, b}
	return nil
}

// interpValue accepts "boot,refine" or a single method for both.
type interpValue struct{ p *[2]tq.Method }

func (v *interpValue) String() string {
	if v.p == nil {
		return ""
	}
	return string(v.p[0]) + "," + string(v.p[1])
}

func (v *interpValue) Set(s string) error {
	first, second, ok := strings.Cut(s, ",")
	if !ok {
		second = first
	}
	a, err := tq.ParseMethod(first)
	if err != nil {
		return err
	}
	b, err := tq.ParseMethod(second)
	if err != nil {
		return err
	}
	*v.p = [2]tq.Method{a, b}
	return nil
}

// byteSizeValue accepts a byte count with an optional K, M, G or T suffix
// (powers of 1024).
type byteSizeValue struct{ p *uint64 }

func (b *byteSizeValue) String() string {
	if b.p == nil || *b.p == 0 {
		return ""
	}
	return strconv.FormatUint(*b.p, 10)
}

func (b *byteSizeValue) Set(s string) error {
	n, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b.p = n
	return nil
}

// ParseByteSize parses sizes such as "512M", "16G" or "1073741824".
func ParseByteSize(s string) (uint64, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	t = strings.TrimSuffix(strings.TrimSuffix(t, "IB"), "B")
	mult := uint64(1)
	if t != "" {
		switch t[len(t)-1] {
		case 'K':
			mult = 1 << 10
		case 'M':
			mult = 1 << 20
		case 'G':
			mult = 1 << 30
		case 'T':
			mult = 1 << 40
		}
		if mult > 1 {
			t = t[:len(t)-1]
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size %q (use e.g. 512M or 16G)", s)
	}
	return uint64(f * float64(mult)), nil
}
