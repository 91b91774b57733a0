package mqtt

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/safety"
)

// Async decouples the control loop from broker latency: events are queued
// without blocking and published by a single goroutine. When the queue is
// full the event is dropped and counted.
type Async struct {
	next  Publisher
	queue chan func() error

	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAsync starts the publishing goroutine. Close drains the queue and
// closes next.
func NewAsync(next Publisher, size int) *Async {
	a := &Async{next: next, queue: make(chan func() error, size)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for fn := range a.queue {
		if err := fn(); err != nil {
			log.Printf("mqtt: publish error: %v", err)
		}
	}
}

func (a *Async) enqueue(fn func() error) error {
	select {
	case a.queue <- fn:
	default:
		if a.dropped.Add(1) == 1 {
			log.Printf("mqtt: publish queue full, dropping events")
		}
	}
	return nil
}

// PublishTransition queues a lamp transition.
func (a *Async) PublishTransition(t lamp.Transition) error {
	return a.enqueue(func() error { return a.next.PublishTransition(t) })
}

// PublishSafety queues an interlock commit.
func (a *Async) PublishSafety(c safety.Commit) error {
	return a.enqueue(func() error { return a.next.PublishSafety(c) })
}

// PublishSystem queues a system event.
func (a *Async) PublishSystem(event SystemEvent) error {
	return a.enqueue(func() error { return a.next.PublishSystem(event) })
}

// Dropped returns the number of events discarded because the queue was full.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// IsConnected forwards to next when it reports connection status.
func (a *Async) IsConnected() bool {
	if cs, ok := a.next.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Close publishes everything queued, then closes next.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.queue) })
	a.wg.Wait()
	return a.next.Close()
}
