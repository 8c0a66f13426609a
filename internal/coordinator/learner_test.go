package coordinator

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/oprina-ai/memcore/internal/pattern"
	"github.com/oprina-ai/memcore/pkg/types"
)

func newTestLearner(bufferSize int) *Learner {
	logger := slog.New(slog.DiscardHandler)
	return NewLearner(pattern.NewEngine(pattern.NewMemoryStore(), logger), logger, bufferSize, 1000)
}

func learnEvent() types.LearningEvent {
	return types.LearningEvent{
		UserID:    "u1",
		EventType: types.EventVoiceCommand,
		EventData: map[string]any{"command": "read my email"},
	}
}

func TestLearnerEnqueueAfterCloseRejected(t *testing.T) {
	l := newTestLearner(4)
	l.Close()

	if l.Enqueue(learnEvent()) {
		t.Fatal("event accepted after Close")
	}
}

func TestLearnerCloseConcurrentWithEnqueue(t *testing.T) {
	l := newTestLearner(8)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 200; j++ {
				l.Enqueue(learnEvent())
			}
		}()
	}

	close(start)
	l.Close()
	wg.Wait()

	// Close is idempotent.
	l.Close()
}