package logging

import (
	"io"
	"sync"
	"time"
)

// AsyncWriter decouples log writes from the caller: Write puts the
// entry on a bounded channel and returns; a background goroutine
// batches entries to the underlying writer. A slow or stalled sink
// therefore cannot add latency to the request path. When the channel
// is full the entry is dropped rather than blocking.
type AsyncWriter struct {
	writer io.Writer

	ch       chan []byte
	flushT   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
	batchCap int
}

// AsyncWriterConfig holds the buffering parameters.
type AsyncWriterConfig struct {
	// BufferSize is the channel capacity (default 8192).
	BufferSize int
	// BatchSize is how many entries accumulate before a write
	// (default 64).
	BatchSize int
	// FlushInterval bounds how long a partial batch waits
	// (default 100ms).
	FlushInterval time.Duration
}

// DefaultAsyncWriterConfig returns production defaults.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		BufferSize:    8192,
		BatchSize:     64,
		FlushInterval: 100 * time.Millisecond,
	}
}

// NewAsyncWriter wraps w with default configuration.
func NewAsyncWriter(w io.Writer) *AsyncWriter {
	return NewAsyncWriterWithConfig(w, DefaultAsyncWriterConfig())
}

// NewAsyncWriterWithConfig wraps w with explicit configuration.
func NewAsyncWriterWithConfig(w io.Writer, cfg AsyncWriterConfig) *AsyncWriter {
	def := DefaultAsyncWriterConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}

	aw := &AsyncWriter{
		writer:   w,
		ch:       make(chan []byte, cfg.BufferSize),
		flushT:   time.NewTicker(cfg.FlushInterval),
		stopCh:   make(chan struct{}),
		batchCap: cfg.BatchSize,
	}

	aw.wg.Add(1)
	go aw.writeLoop()

	return aw
}

// Write implements io.Writer. Never blocks: a full buffer drops the
// entry.
func (aw *AsyncWriter) Write(p []byte) (int, error) {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	aw.mu.Unlock()

	// The caller may reuse the slice.
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case aw.ch <- buf:
	default:
		// Dropping a log line beats stalling the request path.
	}
	return len(p), nil
}

func (aw *AsyncWriter) writeLoop() {
	defer aw.wg.Done()

	batch := make([][]byte, 0, aw.batchCap)

	flush := func() {
		for _, data := range batch {
			_, _ = aw.writer.Write(data)
		}
		batch = batch[:0]
	}

	for {
		select {
		case data := <-aw.ch:
			batch = append(batch, data)
			if len(batch) >= aw.batchCap {
				flush()
			}
		case <-aw.flushT.C:
			if len(batch) > 0 {
				flush()
			}
		case <-aw.stopCh:
			for {
				select {
				case data := <-aw.ch:
					batch = append(batch, data)
					if len(batch) >= aw.batchCap {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close drains buffered entries and closes the underlying writer if
// it is an io.Closer.
func (aw *AsyncWriter) Close() error {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return nil
	}
	aw.closed = true
	aw.mu.Unlock()

	aw.flushT.Stop()
	close(aw.stopCh)
	aw.wg.Wait()

	if closer, ok := aw.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
