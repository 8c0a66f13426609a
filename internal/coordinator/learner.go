package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/oprina-ai/memcore/internal/metrics"
	"github.com/oprina-ai/memcore/internal/pattern"
	"github.com/oprina-ai/memcore/pkg/types"
)

const (
	defaultLearnBuffer = 256
	defaultLearnRate   = 50 // events per second
)

// Learner forwards learning events to the pattern engine off the request
// path. Events are dropped, never blocked on: a full buffer or a saturated
// rate limiter discards the event with a debug log.
type Learner struct {
	engine  *pattern.Engine
	logger  *slog.Logger
	events  chan types.LearningEvent
	limiter *rate.Limiter

	wg        sync.WaitGroup
	closeOnce sync.Once

	// mu orders Enqueue sends against Close: senders hold the read lock,
	// Close takes the write lock before closing the channel.
	mu     sync.RWMutex
	closed bool
}

// NewLearner starts the forwarding worker. bufferSize and eventsPerSec fall
// back to defaults when non-positive.
func NewLearner(engine *pattern.Engine, logger *slog.Logger, bufferSize int, eventsPerSec float64) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = defaultLearnBuffer
	}
	if eventsPerSec <= 0 {
		eventsPerSec = defaultLearnRate
	}

	l := &Learner{
		engine:  engine,
		logger:  logger,
		events:  make(chan types.LearningEvent, bufferSize),
		limiter: rate.NewLimiter(rate.Limit(eventsPerSec), bufferSize),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Enqueue submits an event for asynchronous learning. It never blocks;
// the return value reports whether the event was accepted.
func (l *Learner) Enqueue(ev types.LearningEvent) bool {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		metrics.LearningEvents.WithLabelValues(ev.EventType, "dropped").Inc()
		return false
	}

	select {
	case l.events <- ev:
		metrics.LearningQueueDepth.Set(float64(len(l.events)))
		return true
	default:
		metrics.LearningEvents.WithLabelValues(ev.EventType, "dropped").Inc()
		l.logger.Debug("learning event dropped, buffer full",
			"user_id", ev.UserID, "event_type", ev.EventType)
		return false
	}
}

func (l *Learner) run() {
	defer l.wg.Done()
	for ev := range l.events {
		metrics.LearningQueueDepth.Set(float64(len(l.events)))

		if !l.limiter.Allow() {
			metrics.LearningEvents.WithLabelValues(ev.EventType, "dropped").Inc()
			l.logger.Debug("learning event dropped, rate limited",
				"user_id", ev.UserID, "event_type", ev.EventType)
			continue
		}

		// Detached from the request context: the caller has already moved on.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		learned := l.engine.LearnFromEvent(ctx, ev.UserID, ev.EventType, ev.EventData, ev.Context)
		cancel()

		if learned {
			metrics.LearningEvents.WithLabelValues(ev.EventType, "learned").Inc()
		} else {
			metrics.LearningEvents.WithLabelValues(ev.EventType, "skipped").Inc()
		}
	}
}

// Close drains the buffer and stops the worker.
func (l *Learner) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.events)
	})
	l.wg.Wait()
}
