package guard

import "sync"

// JobFlags serializes ticks of the same scheduled job. A tick that finds
// its flag taken is skipped outright, never queued. Distinct jobs run
// concurrently.
type JobFlags struct {
	mu      sync.Mutex
	running map[string]bool
}

// NewJobFlags creates an empty flag set.
func NewJobFlags() *JobFlags {
	return &JobFlags{running: make(map[string]bool)}
}

// TryAcquire claims the job's flag. It returns false when a previous tick
// of the same job is still running.
func (f *JobFlags) TryAcquire(job string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running[job] {
		return false
	}
	f.running[job] = true
	return true
}

// Release frees the job's flag at the end of a tick.
func (f *JobFlags) Release(job string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, job)
}

// Running reports whether a tick of the job is currently in flight.
func (f *JobFlags) Running(job string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[job]
}
