package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ZRPROBE_MAX_BYTES.
const EnvPrefix = "ZRPROBE"

// RegisterFlags defines every configuration flag on fs. Flags whose default
// comes from the selected profile are registered with a zero value; Load
// only honours a flag the user actually set.
func RegisterFlags(fs *pflag.FlagSet) {
	// Target
	fs.StringSliceP("list", "l", nil, "File with one host per line ('-' for stdin)")
	fs.String("cidr", "", "CIDR range to probe (e.g. 10.0.0.0/24)")
	fs.String("ports", "", "Ports for CIDR targets (comma-separated, e.g. 80,8080)")

	// Profile
	fs.StringP("profile", "p", DefaultProfile, "Preset: strict, balanced, throughput")

	// Engine
	fs.IntP("threads", "t", 0, "Concurrent probes (profile default)")
	fs.Duration("timeout", 0, "Per-request timeout (profile default)")
	fs.Duration("connect-timeout", 2*time.Second, "TCP pre-check timeout (max 2s)")
	fs.Int64("max-bytes", 0, "Body bytes sampled per GET (profile default)")
	fs.Int64("ceiling", 0, "Total data ceiling in bytes, 0 = unbounded (profile default)")
	fs.Int("retries", 0, "Extra passes over hosts that timed out or refused")
	fs.Duration("retry-delay", 2*time.Second, "Pause before each retry pass")
	fs.Int("checkpoint-interval", 10, "Save the checkpoint every N completed hosts")
	fs.Int64("small-threshold", 1024, "Body size below which a host is 'small'")
	fs.Int64("full-threshold", 5120, "Body size from which a host is 'full'")

	// HTTP
	fs.String("method", "", "Probe method: head (GET fallback on 405/501) or get (profile default)")
	fs.StringSlice("schemes", []string{"http", "https"}, "Schemes to try, in order")
	fs.Int("follow-redirects", 0, "Redirects to follow, 0 or 1 (profile default)")
	fs.Bool("tcp-check", true, "Check that port 80/443 accepts connections before sending HTTP")
	fs.String("user-agent", "", "Custom User-Agent string (default: mobile browser)")
	fs.StringArrayP("header", "H", nil, "Custom headers (Key: Value)")
	fs.String("proxy", "", "HTTP or SOCKS5 proxy URL")

	// Rate limiting
	fs.Float64("rate", 0, "Maximum probes per second, 0 = unlimited")
	fs.Bool("adaptive-throttle", false, "Auto back-off on 429/503 and error streaks")

	// Checkpoint
	fs.String("checkpoint-file", ".zrprobe_state.json", "Checkpoint file for resuming")
	fs.Bool("fresh", false, "Ignore an existing checkpoint and start over")
	fs.Bool("no-checkpoint", false, "Do not read or write a checkpoint file")

	// Report filters
	fs.StringSlice("include-category", nil, "Only report these categories")
	fs.StringSlice("exclude-category", nil, "Hide these categories")
	fs.VarP(newIntSliceValue(), "include-status", "i", "Only report these status codes (comma-separated)")
	fs.VarP(newIntSliceValue(), "exclude-status", "x", "Hide these status codes (comma-separated)")

	// Output
	fs.StringP("output", "o", "", "Report file path")
	fs.String("format", "text", "Report format: text, json, csv, yaml, sqlite")
	fs.String("accessible-out", "zr_accessible.txt", "File receiving the accessible hosts, one per line ('' to disable)")
	fs.String("sort", "", "Sort report: host, status, size, category")
	fs.BoolP("quiet", "q", false, "Minimal output")
	fs.Bool("no-color", false, "Disable colored output")
	fs.Bool("no-progress", false, "Disable the progress bar")
	fs.String("on-accessible", "", "Shell command run for each accessible host; {host} {category} {status} {size} expand to $ZRPROBE_* variables, JSON on stdin")

	// Logging
	fs.String("log-level", "warn", "Diagnostic log level: debug, info, warn, error")
	fs.String("log-format", "text", "Diagnostic log format: text, json")
	fs.StringP("config", "c", "", "Config file (yaml, json or toml)")
}

// Load resolves the options from, in increasing priority: the selected
// profile's defaults, the config file, ZRPROBE_* environment variables and
// flags set on the command line.
func Load(fs *pflag.FlagSet) (*Options, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	name := strings.ToLower(v.GetString("profile"))
	if name == "" {
		name = DefaultProfile
	}
	p, ok := Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownProfile, name, strings.Join(ProfileNames(), ", "))
	}
	applyProfile(v, name, p)

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	opts.Profile = name
	opts.Method = strings.ToLower(opts.Method)
	for i, s := range opts.Schemes {
		opts.Schemes[i] = strings.ToLower(strings.TrimSpace(s))
	}
	opts.LogLevel = strings.ToLower(opts.LogLevel)

	headers, err := ParseHeaders(opts.HeaderLines)
	if err != nil {
		return nil, err
	}
	opts.Headers = headers

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// applyProfile installs the profile as the lowest-priority layer.
func applyProfile(v *viper.Viper, name string, p Profile) {
	v.SetDefault("profile", name)
	v.SetDefault("threads", p.Threads)
	v.SetDefault("ceiling", p.Ceiling)
	v.SetDefault("max-bytes", p.MaxBytes)
	v.SetDefault("method", p.Method)
	v.SetDefault("follow-redirects", p.FollowRedirects)
	v.SetDefault("timeout", p.Timeout)
	// Keep the pre-check inside the request timeout of short profiles.
	v.SetDefault("connect-timeout", min(2*time.Second, p.Timeout))
}

// intSliceValue implements pflag.Value for comma-separated int slices.
type intSliceValue struct {
	values []int
}

func newIntSliceValue() *intSliceValue {
	return &intSliceValue{}
}

func (v *intSliceValue) String() string {
	if len(v.values) == 0 {
		return ""
	}
	parts := make([]string, len(v.values))
	for i, val := range v.values {
		parts[i] = strconv.Itoa(val)
	}
	return strings.Join(parts, ",")
}

func (v *intSliceValue) Set(s string) error {
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return errors.New("invalid status code " + strconv.Quote(p))
		}
		v.values = append(v.values, n)
	}
	return nil
}

func (v *intSliceValue) Type() string { return "ints" }
