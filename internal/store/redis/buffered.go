package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"signal-systemv1/internal/model"
)

// pendingPublish is a publish that was buffered while the circuit was open.
type pendingPublish struct {
	Kind  string // "signal", "entry"
	Event string // entry event name, empty for signals
	Data  []byte // JSON-encoded payload
}

// BufferedPublisher wraps a Publisher with a circuit breaker. While the
// circuit is open, publishes are buffered locally and replayed in order
// when the circuit closes again. Implements model.Publisher.
type BufferedPublisher struct {
	pub *Publisher
	cb  *CircuitBreaker

	mu     sync.Mutex
	buffer []pendingPublish
	maxBuf int // oldest entries are dropped beyond this

	// Callbacks (optional)
	OnBuffer func()          // called when a publish is buffered (for metrics)
	OnFlush  func(count int) // called after replaying buffered publishes
}

// NewBufferedPublisher wraps pub with cb. A closing circuit triggers an
// asynchronous replay of everything buffered while it was open.
func NewBufferedPublisher(pub *Publisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		pub:    pub,
		cb:     cb,
		buffer: make([]pendingPublish, 0, 256),
		maxBuf: maxBufferSize,
	}

	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}

	return bp
}

// PublishSignal publishes through the circuit breaker, buffering when open.
func (bp *BufferedPublisher) PublishSignal(ctx context.Context, s model.Signal) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.PublishSignal(ctx, s)
	})
	if err == ErrCircuitOpen {
		bp.bufferPublish("signal", "", s)
		return nil // buffered, not lost
	}
	return err
}

// PublishEntry publishes through the circuit breaker, buffering when open.
func (bp *BufferedPublisher) PublishEntry(ctx context.Context, e model.Entry, event string) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.PublishEntry(ctx, e, event)
	})
	if err == ErrCircuitOpen {
		bp.bufferPublish("entry", event, e)
		return nil
	}
	return err
}

func (bp *BufferedPublisher) bufferPublish(kind, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-publisher] marshal error: %v", err)
		return
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		// Buffer full, drop oldest
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, pendingPublish{Kind: kind, Event: event, Data: data})

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays all buffered publishes through the underlying publisher.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]pendingPublish, 0, 256)
	bp.mu.Unlock()

	ctx := context.Background()
	flushed := 0
	for _, pp := range toFlush {
		switch pp.Kind {
		case "signal":
			var s model.Signal
			if json.Unmarshal(pp.Data, &s) == nil {
				if err := bp.pub.PublishSignal(ctx, s); err != nil {
					log.Printf("[buffered-publisher] replay signal: %v", err)
				}
			}
		case "entry":
			var e model.Entry
			if json.Unmarshal(pp.Data, &e) == nil {
				if err := bp.pub.PublishEntry(ctx, e, pp.Event); err != nil {
					log.Printf("[buffered-publisher] replay entry: %v", err)
				}
			}
		}
		flushed++
	}

	log.Printf("[buffered-publisher] flushed %d buffered publishes", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered publishes awaiting replay.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Close closes the underlying publisher.
func (bp *BufferedPublisher) Close() error {
	return bp.pub.Close()
}
