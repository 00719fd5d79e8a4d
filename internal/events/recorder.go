package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder sits between the request path and a Publisher. Record is
// non-blocking: events go into a bounded channel and a background
// goroutine marshals and publishes them. When the channel is full the
// event is dropped and counted; a slow sink must never add latency to
// a request or hold a store lock.
type Recorder struct {
	pub    Publisher
	logger *slog.Logger

	ch       chan Decision
	dropped  atomic.Uint64
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	publishTimeout time.Duration
}

// RecorderConfig holds tuning knobs for the Recorder.
type RecorderConfig struct {
	// Buffer is the channel capacity (default 4096).
	Buffer int `yaml:"buffer"`

	// PublishTimeout bounds each publish call (default 2s).
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// DefaultRecorderConfig returns production defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Buffer:         4096,
		PublishTimeout: 2 * time.Second,
	}
}

// NewRecorder starts a recorder on top of the publisher. Call Close
// to drain and stop it.
func NewRecorder(pub Publisher, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		pub:            pub,
		logger:         logger.With("component", "events"),
		ch:             make(chan Decision, cfg.Buffer),
		stopCh:         make(chan struct{}),
		publishTimeout: cfg.PublishTimeout,
	}

	r.wg.Add(1)
	go r.loop()

	return r
}

// Record enqueues a decision event. Never blocks; drops when full.
func (r *Recorder) Record(dec Decision) {
	select {
	case r.ch <- dec:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the buffer
// was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) loop() {
	defer r.wg.Done()

	for {
		select {
		case dec := <-r.ch:
			r.publish(dec)
		case <-r.stopCh:
			// Drain what is already buffered, then exit.
			for {
				select {
				case dec := <-r.ch:
					r.publish(dec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) publish(dec Decision) {
	data, err := json.Marshal(dec)
	if err != nil {
		r.logger.Warn("Failed to encode decision event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
	defer cancel()

	if err := r.pub.Publish(ctx, SubjectDecision, data); err != nil {
		r.logger.Warn("Failed to publish decision event",
			"subject", SubjectDecision,
			"error", err,
		)
	}
}

// Close drains buffered events and closes the underlying publisher.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	return r.pub.Close()
}
