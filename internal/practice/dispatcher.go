package practice

import (
	"context"
	"sync"

	"github.com/bandcoach/bandcoach/internal/transport"
)

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, ev transport.Event)

// Dispatcher runs events for the same conversation strictly in arrival
// order, one at a time, while different conversations run in parallel.
// A worker goroutine exists only while its conversation has queued work.
type Dispatcher struct {
	handle HandlerFunc

	mu     sync.Mutex
	queues map[Key][]queued
	closed bool
	wg     sync.WaitGroup
}

type queued struct {
	ctx context.Context
	ev  transport.Event
}

// NewDispatcher creates a dispatcher that feeds events to handle.
func NewDispatcher(handle HandlerFunc) *Dispatcher {
	return &Dispatcher{handle: handle, queues: make(map[Key][]queued)}
}

// Submit enqueues ev. It returns false after Close.
func (d *Dispatcher) Submit(ctx context.Context, ev transport.Event) bool {
	k := Key{UserID: ev.User.ID, ChatID: ev.ChatID}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	q, running := d.queues[k]
	d.queues[k] = append(q, queued{ctx: ctx, ev: ev})
	if !running {
		d.wg.Add(1)
		go d.drain(k)
	}
	return true
}

func (d *Dispatcher) drain(k Key) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[k]
		if len(q) == 0 {
			delete(d.queues, k)
			d.mu.Unlock()
			return
		}
		next := q[0]
		d.queues[k] = q[1:]
		d.mu.Unlock()

		d.handle(next.ctx, next.ev)
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until every queued event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
