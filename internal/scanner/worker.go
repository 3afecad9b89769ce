package scanner

import (
	"context"
	"sync"
)

// Prober checks a single host. Implementations must not block beyond their
// own timeout and report every failure through ProbeResult.Outcome.
type Prober interface {
	Probe(ctx context.Context, host string) ProbeResult
}

// WorkerConfig holds options for the worker pool.
type WorkerConfig struct {
	Threads   int
	Throttler *Throttler  // nil = no pacing
	Pauser    *Pauser     // nil = no pause support
	Allow     func() bool // dispatch gate checked before every probe; nil allows all
}

// RunWorkerPool fans jobs out across workers and returns a channel of
// completions. Each job is consumed by exactly one worker. Once ctx is
// cancelled or Allow returns false, remaining jobs are drained without
// being probed; probes already running finish and are still delivered.
// The channel is closed when every worker has exited.
func RunWorkerPool(ctx context.Context, prober Prober, jobs []Job, cfg WorkerConfig) <-chan Completion {
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	jobsCh := make(chan Job, threads*2)
	resultsCh := make(chan Completion, threads*2)

	allowed := func() bool {
		if ctx.Err() != nil {
			return false
		}
		return cfg.Allow == nil || cfg.Allow()
	}

	var wg sync.WaitGroup

	// Producer: feed jobs until the gate closes.
	go func() {
		defer close(jobsCh)
		for _, job := range jobs {
			if !allowed() {
				return
			}
			select {
			case jobsCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsCh {
				if cfg.Pauser != nil {
					if err := cfg.Pauser.Wait(ctx); err != nil {
						continue
					}
				}
				if err := cfg.Throttler.Wait(ctx); err != nil {
					continue
				}
				if !allowed() {
					continue
				}

				res := prober.Probe(ctx, job.Host)
				res.Attempt = job.Attempt
				cfg.Throttler.Record(res)
				resultsCh <- Completion{Job: job, Result: res}
			}
		}()
	}

	// Closer: when all workers finish, close the results channel.
	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	return resultsCh
}
