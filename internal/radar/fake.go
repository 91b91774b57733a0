package radar

import (
	"io"
	"sync"
)

// FakePort is a test double for Port. Reads are served from chunks queued
// with Inject; writes and configuration calls are recorded.
type FakePort struct {
	mu     sync.Mutex
	input  chan []byte
	closed chan struct{}
	once   sync.Once

	written [][]byte
	bauds   []int
	flushes int

	// WriteError, if set, will be returned by Write.
	WriteError error
}

// NewFakePort creates a FakePort with room for queued input.
func NewFakePort() *FakePort {
	return &FakePort{
		input:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// Inject queues p to be returned by a later Read.
func (p *FakePort) Inject(b []byte) {
	c := make([]byte, len(b))
	copy(c, b)
	p.input <- c
}

// Read blocks until input is injected or the port is closed.
func (p *FakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.input:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

// Write records b.
func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteError != nil {
		return 0, p.WriteError
	}
	c := make([]byte, len(b))
	copy(c, b)
	p.written = append(p.written, c)
	return len(b), nil
}

// SetBaudRate records baud.
func (p *FakePort) SetBaudRate(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bauds = append(p.bauds, baud)
	return nil
}

// ResetInputBuffer counts the flush.
func (p *FakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

// Close unblocks pending reads.
func (p *FakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Written returns every frame written, in order.
func (p *FakePort) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

// BaudRates returns every rate set, in order.
func (p *FakePort) BaudRates() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.bauds))
	copy(out, p.bauds)
	return out
}

// Flushes returns the number of ResetInputBuffer calls.
func (p *FakePort) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}
