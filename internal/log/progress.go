package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Progress reports completion of a long-running file set at a bounded rate.
// Safe for concurrent Step calls from parse workers.
type Progress struct {
	mu         sync.Mutex
	name       string
	total      int
	done       int
	failed     int
	started    time.Time
	lastReport time.Time
	interval   time.Duration
}

// NewProgress creates a tracker for total units of work under the given name.
func NewProgress(name string, total int) *Progress {
	return &Progress{
		name:     name,
		total:    total,
		started:  time.Now(),
		interval: 2 * time.Second,
	}
}

// Step records one completed unit and logs a progress line when the report
// interval has elapsed or the set is finished.
func (p *Progress) Step(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if !ok {
		p.failed++
	}
	finished := p.done >= p.total
	if !finished && time.Since(p.lastReport) < p.interval {
		return
	}
	p.lastReport = time.Now()

	evt := log.Info().
		Str("stage", p.name).
		Int("done", p.done).
		Int("total", p.total).
		Int("failed", p.failed)
	if finished {
		evt.Dur("elapsed", time.Since(p.started)).Msg("stage complete")
		return
	}
	evt.Msg("progress")
}
