package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Options holds all configuration for a zrprobe scan. It is built once by
// Load and treated as read-only afterwards.
type Options struct {
	// Targets
	Hosts       []string `mapstructure:"-"` // positional arguments
	HostFiles   []string `mapstructure:"list"`
	CIDRTargets string   `mapstructure:"cidr"`
	Ports       string   `mapstructure:"ports"`

	// Profile
	Profile string `mapstructure:"profile" validate:"oneof=strict balanced throughput"`

	// Engine
	Threads            int           `mapstructure:"threads" validate:"min=1,max=1000"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"min=100ms"`
	ConnectTimeout     time.Duration `mapstructure:"connect-timeout" validate:"min=50ms,max=2s"`
	MaxBytes           int64         `mapstructure:"max-bytes" validate:"min=1"`
	Ceiling            int64         `mapstructure:"ceiling" validate:"min=0"`
	Retries            int           `mapstructure:"retries" validate:"min=0,max=10"`
	RetryDelay         time.Duration `mapstructure:"retry-delay" validate:"min=0"`
	CheckpointInterval int           `mapstructure:"checkpoint-interval" validate:"min=1"`
	SmallThreshold     int64         `mapstructure:"small-threshold" validate:"min=1"`
	FullThreshold      int64         `mapstructure:"full-threshold" validate:"gtfield=SmallThreshold"`

	// HTTP
	Method          string            `mapstructure:"method" validate:"oneof=head get"`
	Schemes         []string          `mapstructure:"schemes" validate:"min=1,dive,oneof=http https"`
	FollowRedirects int               `mapstructure:"follow-redirects" validate:"oneof=0 1"`
	TCPCheck        bool              `mapstructure:"tcp-check"`
	UserAgent       string            `mapstructure:"user-agent"`
	HeaderLines     []string          `mapstructure:"header"`
	Headers         map[string]string `mapstructure:"-"`
	Proxy           string            `mapstructure:"proxy" validate:"omitempty,url"`

	// Rate limiting
	Rate             float64 `mapstructure:"rate" validate:"min=0"`
	AdaptiveThrottle bool    `mapstructure:"adaptive-throttle"`

	// Checkpoint
	CheckpointFile string `mapstructure:"checkpoint-file"`
	Fresh          bool   `mapstructure:"fresh"`
	NoCheckpoint   bool   `mapstructure:"no-checkpoint"`

	// Report filters
	IncludeCategories []string `mapstructure:"include-category" validate:"dive,oneof=full medium small empty error_page port_only dead"`
	ExcludeCategories []string `mapstructure:"exclude-category" validate:"dive,oneof=full medium small empty error_page port_only dead"`
	IncludeStatus     []int    `mapstructure:"include-status" validate:"dive,min=100,max=999"`
	ExcludeStatus     []int    `mapstructure:"exclude-status" validate:"dive,min=100,max=999"`

	// Output
	OutputFile    string `mapstructure:"output"`
	OutputFormat  string `mapstructure:"format" validate:"oneof=text json csv yaml sqlite"`
	AccessibleOut string `mapstructure:"accessible-out"`
	SortBy        string `mapstructure:"sort" validate:"omitempty,oneof=host status size category"`
	Quiet         bool   `mapstructure:"quiet"`
	NoColor       bool   `mapstructure:"no-color"`
	NoProgress    bool   `mapstructure:"no-progress"`
	OnAccessible  string `mapstructure:"on-accessible"`

	// Logging
	LogLevel  string `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log-format" validate:"oneof=text json"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report flag names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and the rules that span fields.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(o.IncludeStatus) > 0 && len(o.ExcludeStatus) > 0 {
		return errors.New("--include-status and --exclude-status are mutually exclusive")
	}
	if len(o.IncludeCategories) > 0 && len(o.ExcludeCategories) > 0 {
		return errors.New("--include-category and --exclude-category are mutually exclusive")
	}
	if o.OutputFormat == "sqlite" && o.OutputFile == "" {
		return errors.New("--format sqlite requires --output")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("--%s must be one of: %s (got %v)", name, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "min":
		return fmt.Sprintf("--%s must be at least %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("--%s must be at most %s", name, fe.Param())
	case "gtfield":
		return fmt.Sprintf("--%s must be greater than --small-threshold", name)
	case "url":
		return fmt.Sprintf("--%s must be a URL (got %v)", name, fe.Value())
	default:
		return fmt.Sprintf("--%s failed %q", name, fe.Tag())
	}
}

// ParseHeaders turns "Key: Value" lines into a header map.
func ParseHeaders(lines []string) (map[string]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(lines))
	for _, h := range lines {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid header format %q, expected 'Key: Value'", h)
		}
		headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return headers, nil
}
