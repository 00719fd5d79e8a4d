package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_PublishesThrough(t *testing.T) {
	pub := NewMemoryPublisher()
	rec := NewRecorder(pub, DefaultRecorderConfig(), nil)

	rec.Record(Decision{Endpoint: "/v1/check", Scope: "user", Key: "user:u1", Allowed: true, Limit: 5, Remaining: 4})

	require.Eventually(t, func() bool {
		return len(pub.Messages()) == 1
	}, time.Second, 10*time.Millisecond)

	msg := pub.Messages()[0]
	assert.Equal(t, SubjectDecision, msg.Subject)

	var dec Decision
	require.NoError(t, json.Unmarshal(msg.Data, &dec))
	assert.Equal(t, "user:u1", dec.Key)
	assert.True(t, dec.Allowed)

	require.NoError(t, rec.Close())
}

func TestRecorder_CloseDrainsBuffer(t *testing.T) {
	pub := NewMemoryPublisher()
	rec := NewRecorder(pub, RecorderConfig{Buffer: 64}, nil)

	for i := 0; i < 10; i++ {
		rec.Record(Decision{Endpoint: "/v1/check", Scope: "ip", Key: "ip:1.2.3.4"})
	}
	require.NoError(t, rec.Close())

	assert.Len(t, pub.Messages(), 10)
}

// blockingPublisher parks every Publish until released.
type blockingPublisher struct {
	release chan struct{}
	once    sync.Once
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{release: make(chan struct{})}
}

func (p *blockingPublisher) Publish(ctx context.Context, _ string, _ []byte) error {
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *blockingPublisher) Close() error {
	p.once.Do(func() { close(p.release) })
	return nil
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	pub := newBlockingPublisher()
	rec := NewRecorder(pub, RecorderConfig{Buffer: 2, PublishTimeout: 50 * time.Millisecond}, nil)
	defer func() { _ = rec.Close() }()

	// The loop pulls at most one event into a stuck publish; everything
	// past the buffer must be dropped, never block the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			rec.Record(Decision{Endpoint: "/v1/check"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow publisher")
	}

	assert.Positive(t, rec.Dropped())
}

func TestMemoryPublisher_ClosedRejectsPublish(t *testing.T) {
	pub := NewMemoryPublisher()
	require.NoError(t, pub.Publish(context.Background(), SubjectDecision, []byte("{}")))
	require.NoError(t, pub.Close())

	err := pub.Publish(context.Background(), SubjectDecision, []byte("{}"))
	assert.ErrorIs(t, err, ErrPublisherClosed)
	assert.Len(t, pub.Messages(), 1)
}

func TestNopPublisher(t *testing.T) {
	var pub NopPublisher
	assert.NoError(t, pub.Publish(context.Background(), SubjectDecision, []byte("{}")))
	assert.NoError(t, pub.Close())
}
