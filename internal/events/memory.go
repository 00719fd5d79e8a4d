package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryPublisher keeps published messages in memory. It backs tests
// and single-node deployments where decisions only need to reach the
// local log.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	closed   atomic.Bool
}

// Message is a published payload with its subject.
type Message struct {
	Subject string
	Data    []byte
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(_ context.Context, subject string, data []byte) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	p.mu.Lock()
	p.messages = append(p.messages, Message{Subject: subject, Data: buf})
	p.mu.Unlock()
	return nil
}

// Messages returns a snapshot of everything published so far.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close implements Publisher.
func (p *MemoryPublisher) Close() error {
	p.closed.Store(true)
	return nil
}
