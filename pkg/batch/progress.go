package batch

import "sync"

// Progress counts completed chunks. It is the only state shared between
// workers and exists for observability only.
type Progress struct {
	mu        sync.Mutex
	completed int
	total     int
}

// newProgress returns a counter for total chunks.
func newProgress(total int) *Progress {
	return &Progress{total: total}
}

// complete marks one chunk done and returns the new count.
func (p *Progress) complete() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	return p.completed
}

// Completed returns the number of chunks finished so far.
func (p *Progress) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Total returns the number of chunks in the run.
func (p *Progress) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
