package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maxvaer/zrprobe/internal/config"
	"github.com/maxvaer/zrprobe/internal/runner"
	"github.com/maxvaer/zrprobe/pkg/version"
)

var opts *config.Options

type flagGroup struct {
	title string
	flags []string
}

var helpGroups = []flagGroup{
	{"TARGET", []string{"list", "cidr", "ports"}},
	{"PROFILE", []string{"profile", "config"}},
	{"ENGINE", []string{"threads", "timeout", "connect-timeout", "max-bytes", "ceiling", "retries", "retry-delay", "small-threshold", "full-threshold"}},
	{"HTTP", []string{"method", "schemes", "follow-redirects", "tcp-check", "header", "user-agent", "proxy"}},
	{"RATE-LIMIT", []string{"rate", "adaptive-throttle"}},
	{"CHECKPOINT", []string{"checkpoint-file", "checkpoint-interval", "fresh", "no-checkpoint"}},
	{"FILTERS", []string{"include-category", "exclude-category", "include-status", "exclude-status"}},
	{"OUTPUT", []string{"output", "format", "accessible-out", "sort", "quiet", "no-color", "no-progress", "on-accessible"}},
	{"DEBUG", []string{"log-level", "log-format"}},
}

var rootCmd = &cobra.Command{
	Use:     "zrprobe [hosts...] [flags]",
	Short:   "Find the hosts a mobile carrier lets through for free",
	Version: version.Version,
	Long: `zrprobe probes a list of hosts with minimal HTTP requests and sorts them by
how much traffic they return: full, medium, small, empty, error_page,
port_only or dead. Every byte is counted against a data ceiling so a scan
can run on a metered connection, and progress is checkpointed so an
interrupted scan resumes where it stopped.`,
	Example: `  zrprobe free.facebook.com wikipedia.org
  zrprobe -l hosts.txt
  zrprobe -l hosts.txt -p strict
  zrprobe -l hosts.txt -p throughput --ceiling 0 -o report.json --format json
  cat hosts.txt | zrprobe -
  zrprobe --cidr 10.20.0.0/24 --ports 80,8080
  zrprobe -l hosts.txt --proxy socks5://127.0.0.1:1080
  zrprobe -l hosts.txt --fresh --retries 2
  zrprobe -l hosts.txt --on-accessible "notify-send {host} {category}"`,
	Args: cobra.ArbitraryArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		loaded.Hosts = args
		if len(loaded.Hosts) == 0 && len(loaded.HostFiles) == 0 && loaded.CIDRTargets == "" {
			_ = cmd.Help()
			fmt.Fprintln(os.Stderr)
			return fmt.Errorf("hosts required: pass them as arguments, with -l, or with --cidr")
		}
		opts = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runner.Run(ctx, opts)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.RegisterFlags(rootCmd.Flags())

	// Custom help: categorized flags like httpx.
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		w := os.Stderr
		fmt.Fprint(w, helpBanner(cmd.Version))
		fmt.Fprintf(w, "%s\n\nUsage:\n  %s\n", cmd.Long, cmd.UseLine())
		fmt.Fprintf(w, "\nExamples:\n%s\n", cmd.Example)
		fmt.Fprintf(w, "\nProfiles:\n")
		for _, name := range config.ProfileNames() {
			fmt.Fprintln(w, formatProfile(name, config.Profiles[name]))
		}
		fmt.Fprintf(w, "\nFlags:\n")
		for _, g := range helpGroups {
			fmt.Fprintf(w, "\n%s:\n", g.title)
			for _, name := range g.flags {
				if f := cmd.Flags().Lookup(name); f != nil {
					fmt.Fprintln(w, formatFlag(f))
				}
			}
		}
		fmt.Fprintf(w, "\nEvery flag can also be set in the config file or as %s_<FLAG> (e.g. %s_MAX_BYTES).\n\n",
			config.EnvPrefix, config.EnvPrefix)
	})
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func formatFlag(f *pflag.Flag) string {
	var left string
	if f.Shorthand != "" {
		left = fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	} else {
		left = fmt.Sprintf("    --%s", f.Name)
	}

	typ := f.Value.Type()
	if typ != "bool" {
		left += " " + typ
	}

	// Pad to fixed column width for aligned descriptions.
	const col = 36
	for len(left) < col {
		left += " "
	}

	right := f.Usage
	// Show default for non-zero values.
	def := f.DefValue
	if def != "" && def != "false" && def != "0" && def != "0s" && def != "[]" {
		right += fmt.Sprintf(" (default %s)", def)
	}

	return "   " + left + right
}

func formatProfile(name string, p config.Profile) string {
	ceiling := "unbounded"
	if p.Ceiling > 0 {
		ceiling = fmt.Sprintf("%d KiB", p.Ceiling/1024)
	}
	if name == config.DefaultProfile {
		name += "*"
	}
	return fmt.Sprintf("   %-12s threads %-3d ceiling %-10s max-bytes %-5d %-4s redirects %d  timeout %s",
		name, p.Threads, ceiling, p.MaxBytes, strings.ToUpper(p.Method), p.FollowRedirects, p.Timeout)
}

func helpBanner(ver string) string {
	if ver != "dev" && ver != "" && !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	return fmt.Sprintf(`
   _____ _ __ ___  _ __ ___ | |__   ___
  |_  / '__| '_ \| '__/ _ \| '_ \ / _ \
   / /| |  | |_) | | | (_) | |_) |  __/
  /___|_|  | .__/|_|  \___/|_.__/ \___|
           |_|                          %s

`, ver)
}
