package config

import (
	"errors"
	"sort"
	"time"
)

// ErrUnknownProfile is returned for a profile name that is not defined.
var ErrUnknownProfile = errors.New("unknown profile")

// DefaultProfile is used when no profile is selected.
const DefaultProfile = "balanced"

// Profile is a named set of engine defaults. Any of its values can still be
// overridden by the config file, environment or flags.
type Profile struct {
	Threads         int
	Ceiling         int64 // 0 = unbounded
	MaxBytes        int64
	Method          string
	FollowRedirects int
	Timeout         time.Duration
}

// Profiles holds the built-in profiles.
var Profiles = map[string]Profile{
	// One host at a time, tiny budget. For plans that bill every byte
	// outside the zero-rated set.
	"strict": {
		Threads:         1,
		Ceiling:         10 * 1024,
		MaxBytes:        512,
		Method:          "head",
		FollowRedirects: 0,
		Timeout:         3 * time.Second,
	},
	"balanced": {
		Threads:         10,
		Ceiling:         1024 * 1024,
		MaxBytes:        5120,
		Method:          "head",
		FollowRedirects: 1,
		Timeout:         5 * time.Second,
	},
	"throughput": {
		Threads:         30,
		Ceiling:         0,
		MaxBytes:        5120,
		Method:          "get",
		FollowRedirects: 1,
		Timeout:         8 * time.Second,
	},
}

// ProfileNames returns the profile names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for n := range Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
