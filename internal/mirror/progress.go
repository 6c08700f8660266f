package mirror

import (
	"log/slog"
	"sync"
)

// ProgressFunc receives sync progress as a percentage in [0, 100].
type ProgressFunc func(percent float64)

// progressTracker counts file operations and reports each step. The callback
// runs on a single dispatcher goroutine that only ever sees the newest value,
// so a slow callback skips steps instead of queueing them and never sees
// progress go backwards.
type progressTracker struct {
	mu       sync.Mutex
	total    int
	current  int
	record   func(float64)
	callback ProgressFunc
	logger   *slog.Logger

	latest  float64
	pending bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newProgressTracker(total int, callback ProgressFunc, record func(float64), logger *slog.Logger) *progressTracker {
	p := &progressTracker{
		total:    total,
		callback: callback,
		record:   record,
		logger:   logger,
	}
	if callback != nil {
		p.wake = make(chan struct{}, 1)
		p.done = make(chan struct{})
		go p.dispatch()
	}
	return p
}

// Increment records one finished file operation.
func (p *progressTracker) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.current++
	percent := p.percentLocked()
	if p.record != nil {
		p.record(percent)
	}
	if p.wake == nil {
		return
	}
	p.latest, p.pending = percent, true
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Close stops the dispatcher once it has delivered the last value.
func (p *progressTracker) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.wake != nil {
		close(p.wake)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}

func (p *progressTracker) percentLocked() float64 {
	if p.total <= 0 {
		return 100
	}
	return float64(p.current) / float64(p.total) * 100
}

func (p *progressTracker) dispatch() {
	defer close(p.done)
	for range p.wake {
		p.mu.Lock()
		percent, ok := p.latest, p.pending
		p.pending = false
		p.mu.Unlock()
		if ok {
			p.deliver(percent)
		}
	}
}

// deliver runs the callback. The listener may be gone, so a panic is
// recovered and logged.
func (p *progressTracker) deliver(percent float64) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("progress callback panicked", "panic", r)
		}
	}()
	p.callback(percent)
}

// progressBoard holds the latest progress of every mirror being synced.
type progressBoard struct {
	mu     sync.RWMutex
	values map[string]float64
}

func newProgressBoard() *progressBoard {
	return &progressBoard{values: make(map[string]float64)}
}

func (b *progressBoard) set(id string, percent float64) {
	b.mu.Lock()
	b.values[id] = percent
	b.mu.Unlock()
}

func (b *progressBoard) clear(id string) {
	b.mu.Lock()
	delete(b.values, id)
	b.mu.Unlock()
}

func (b *progressBoard) get(id string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[id]
	return v, ok
}

func (b *progressBoard) snapshot() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float64, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}
