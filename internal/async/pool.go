package async

import (
	"errors"
	"sync"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool bounds the number of tasks running at once. Submit never blocks the
// caller: a task waits for a free slot on its own goroutine.
type Pool struct {
	slots  chan struct{}
	size   int
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a worker pool
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}

	return &Pool{
		slots: make(chan struct{}, size),
		size:  size,
	}
}

// Submit schedules task on the pool
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.slots <- struct{}{}
		defer func() { <-p.slots }()

		task()
	}()

	return nil
}

// Close rejects new tasks and waits for submitted ones to finish
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":   p.size,
		"in_use": len(p.slots),
		"closed": p.closed,
	}
}
