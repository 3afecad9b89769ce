package scanner

// Job is a single unit of work for the worker pool.
type Job struct {
	Index   int    // position of the host in the work list
	Host    string // normalized host or host:port
	Attempt int    // 1 for the first pass, incremented by retry passes
}

// Completion pairs a job with the result of probing it.
type Completion struct {
	Job    Job
	Result ProbeResult
}
