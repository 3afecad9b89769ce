package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/maxvaer/zrprobe/internal/budget"
	"github.com/maxvaer/zrprobe/internal/checkpoint"
	"github.com/maxvaer/zrprobe/internal/classify"
	"github.com/maxvaer/zrprobe/internal/config"
	"github.com/maxvaer/zrprobe/internal/coordinator"
	"github.com/maxvaer/zrprobe/internal/filter"
	"github.com/maxvaer/zrprobe/internal/hook"
	"github.com/maxvaer/zrprobe/internal/hostlist"
	"github.com/maxvaer/zrprobe/internal/logger"
	"github.com/maxvaer/zrprobe/internal/netutil"
	"github.com/maxvaer/zrprobe/internal/output"
	"github.com/maxvaer/zrprobe/internal/scanner"
	"github.com/maxvaer/zrprobe/pkg/version"
)

// hookWorkers is how many --on-accessible commands may run at once.
const hookWorkers = 2

// Run executes the full scan pipeline: resolve hosts, resume from a
// checkpoint if one matches, probe, then write the report and the
// accessible-hosts export.
func Run(ctx context.Context, opts *config.Options) error {
	log := logger.New(opts.LogLevel, opts.LogFormat, os.Stderr)

	hosts, err := resolveHosts(opts, os.Stdin, log)
	if err != nil {
		return err
	}

	tracker := budget.New(opts.Ceiling)
	prober, err := scanner.NewHTTPProber(probeConfig(opts), tracker)
	if err != nil {
		return fmt.Errorf("creating prober: %w", err)
	}

	store, resume := openCheckpoint(ctx, opts, len(hosts), log)

	out, err := output.New(output.Options{
		Format:  opts.OutputFormat,
		File:    opts.OutputFile,
		SortBy:  opts.SortBy,
		Profile: opts.Profile,
		NoColor: opts.NoColor,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return fmt.Errorf("creating output writer: %w", err)
	}
	defer out.Close()

	if !opts.Quiet {
		printBanner(opts, len(hosts))
	}

	stderrTTY := term.IsTerminal(int(os.Stderr.Fd()))
	progress := output.NewProgress(len(hosts), os.Stderr, !opts.Quiet && !opts.NoProgress && stderrTTY)

	pauser, restoreTerm := startStdinToggle(opts.Quiet, progress.SetPaused)
	defer restoreTerm()

	var hookRunner *hook.Runner
	if opts.OnAccessible != "" {
		hookRunner = hook.NewRunner(opts.OnAccessible, os.Stderr, log)
	}
	hooks := hookRunner.Start(ctx, hookWorkers)

	coord := coordinator.New(coordinator.Config{
		Workers:            opts.Threads,
		Thresholds:         classify.Thresholds{Small: opts.SmallThreshold, Full: opts.FullThreshold},
		Retries:            opts.Retries,
		RetryDelay:         opts.RetryDelay,
		CheckpointInterval: opts.CheckpointInterval,
		Throttler:          scanner.NewThrottler(opts.Rate, opts.AdaptiveThrottle, log),
		Pauser:             pauser,
		OnEvent: func(ev coordinator.Event) {
			progress.Update(ev)
			hooks.Submit(&ev.Record)
		},
	}, prober, tracker, store, log)

	res, err := coord.Run(ctx, hosts, resume)
	progress.Finish()
	hooks.Close()
	if err != nil {
		return err
	}

	if err := writeReport(out, res, buildFilters(opts), output.NewStats(res, opts.Profile)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if opts.AccessibleOut != "" && len(res.Accessible) > 0 {
		if err := output.WriteAccessible(opts.AccessibleOut, res.Accessible); err != nil {
			return err
		}
		if !opts.Quiet {
			fmt.Fprintf(os.Stderr, "[+] %d accessible hosts written to %s\n", len(res.Accessible), opts.AccessibleOut)
		}
	}

	if !opts.Quiet {
		printOutcome(os.Stderr, opts, res)
	}
	return nil
}

// resolveHosts merges positional hosts, -l files and --cidr expansion into
// one normalized, de-duplicated list in input order.
func resolveHosts(opts *config.Options, stdin io.Reader, log *slog.Logger) ([]string, error) {
	var lists [][]string

	var args []string
	for _, h := range opts.Hosts {
		if h == "-" {
			fromStdin, err := hostlist.Parse(stdin)
			if err != nil {
				return nil, fmt.Errorf("reading hosts from stdin: %w", err)
			}
			lists = append(lists, fromStdin)
			continue
		}
		args = append(args, h)
	}
	if len(args) > 0 {
		parsed, err := hostlist.Parse(strings.NewReader(strings.Join(args, "\n")))
		if err != nil {
			return nil, err
		}
		if len(parsed) < len(args) {
			log.Warn("ignored invalid host arguments", slog.Int("count", len(args)-len(parsed)))
		}
		lists = append(lists, parsed)
	}

	for _, path := range opts.HostFiles {
		hosts, err := hostlist.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading host list: %w", err)
		}
		lists = append(lists, hosts)
	}

	if opts.CIDRTargets != "" {
		expanded, err := netutil.ExpandTargets(opts.CIDRTargets, opts.Ports)
		if err != nil {
			return nil, fmt.Errorf("expanding CIDR: %w", err)
		}
		lists = append(lists, expanded)
	}

	hosts, err := hostlist.Merge(lists...)
	if errors.Is(err, hostlist.ErrEmpty) {
		return nil, fmt.Errorf("no hosts to probe (arguments, -l or --cidr): %w", coordinator.ErrNoHosts)
	}
	return hosts, err
}

func probeConfig(opts *config.Options) scanner.ProbeConfig {
	return scanner.ProbeConfig{
		Timeout:         opts.Timeout,
		ConnectTimeout:  opts.ConnectTimeout,
		MaxBytes:        opts.MaxBytes,
		UserAgent:       opts.UserAgent,
		Headers:         opts.Headers,
		Schemes:         opts.Schemes,
		Method:          opts.Method,
		FollowRedirects: opts.FollowRedirects,
		TCPCheck:        opts.TCPCheck,
		Proxy:           opts.Proxy,
	}
}

// openCheckpoint picks the checkpoint store and loads a checkpoint to
// resume from. A checkpoint that cannot be read is reported and ignored.
func openCheckpoint(ctx context.Context, opts *config.Options, total int, log *slog.Logger) (checkpoint.Store, *checkpoint.Checkpoint) {
	if opts.NoCheckpoint {
		return checkpoint.NewMemoryStore(), nil
	}
	store := checkpoint.NewFileStore(opts.CheckpointFile)

	if opts.Fresh {
		if err := store.Clear(ctx); err != nil {
			log.Warn("clearing checkpoint", slog.String("path", store.Path()), slog.Any("error", err))
		}
		return store, nil
	}

	cp, err := store.Load(ctx)
	if err != nil {
		if !opts.Quiet {
			fmt.Fprintf(os.Stderr, "[!] Ignoring checkpoint %s: %v\n", store.Path(), err)
		}
		return store, nil
	}
	if cp == nil {
		return store, nil
	}
	if cp.Total != total {
		if !opts.Quiet {
			fmt.Fprintf(os.Stderr, "[!] Checkpoint %s is for a list of %d hosts, this one has %d; starting over\n",
				store.Path(), cp.Total, total)
		}
		return store, nil
	}
	if !opts.Quiet {
		fmt.Fprintf(os.Stderr, "[+] Resuming: %d/%d hosts already done, %d accessible (use --fresh to start over)\n",
			cp.Cursor, cp.Total, len(cp.AccessibleHosts))
	}
	return store, cp
}

func buildFilters(opts *config.Options) *filter.Filter {
	return filter.New(filter.Options{
		IncludeStatus:     opts.IncludeStatus,
		ExcludeStatus:     opts.ExcludeStatus,
		IncludeCategories: opts.IncludeCategories,
		ExcludeCategories: opts.ExcludeCategories,
	})
}

// writeReport emits one record per host, after retries have settled.
func writeReport(out output.Writer, res *coordinator.Result, filters *filter.Filter, stats output.Stats) error {
	if err := out.WriteHeader(); err != nil {
		return err
	}
	for i := range res.Records {
		if hidden, _ := filters.Apply(&res.Records[i]); hidden {
			continue
		}
		if err := out.WriteRecord(&res.Records[i]); err != nil {
			return err
		}
	}
	return out.WriteFooter(stats)
}

func printOutcome(w io.Writer, opts *config.Options, res *coordinator.Result) {
	switch res.State {
	case coordinator.BudgetExceeded:
		color.New(color.FgYellow).Fprintf(w, "[!] Data ceiling of %d bytes reached after %d/%d hosts\n",
			res.Budget.Ceiling, res.Cursor, res.Total)
		printResumeHint(w, opts)
	case coordinator.Interrupted:
		fmt.Fprintf(w, "[*] Interrupted after %d/%d hosts\n", res.Cursor, res.Total)
		printResumeHint(w, opts)
	case coordinator.Completed:
		color.New(color.FgGreen).Fprintf(w, "[+] Scan complete: %d/%d hosts accessible\n", len(res.Accessible), res.Total)
	}
}

func printResumeHint(w io.Writer, opts *config.Options) {
	if opts.NoCheckpoint {
		return
	}
	fmt.Fprintf(w, "[*] Progress saved to %s; run the same command again to resume\n", opts.CheckpointFile)
}

func printBanner(opts *config.Options, hostCount int) {
	title := color.New(color.FgHiCyan, color.Bold)
	dim := color.New(color.Faint)
	val := color.New(color.FgHiWhite)
	if opts.NoColor {
		for _, c := range []*color.Color{title, dim, val} {
			c.DisableColor()
		}
	}

	w := os.Stderr
	fmt.Fprintln(w)
	title.Fprintf(w, "  zrprobe ")
	dim.Fprintf(w, "v%s\n", version.Version)
	fmt.Fprintf(w, "  Zero-rated host prober\n")
	dim.Fprintf(w, "  ──────────────────────────────────────\n")
	field := func(name, format string, a ...any) {
		dim.Fprintf(w, "  %-13s", name+":")
		val.Fprintf(w, format+"\n", a...)
	}
	field("Hosts", "%d", hostCount)
	field("Profile", "%s", opts.Profile)
	field("Threads", "%d", opts.Threads)
	if opts.Ceiling > 0 {
		field("Ceiling", "%d bytes", opts.Ceiling)
	} else {
		field("Ceiling", "unbounded")
	}
	field("Method", "%s (max %d body bytes)", strings.ToUpper(opts.Method), opts.MaxBytes)
	field("Schemes", "%s", strings.Join(opts.Schemes, ", "))
	if opts.Proxy != "" {
		field("Proxy", "%s", opts.Proxy)
	}
	if opts.Rate > 0 {
		field("Rate", "%.1f probes/s", opts.Rate)
	}
	dim.Fprintf(w, "  ──────────────────────────────────────\n\n")
}
