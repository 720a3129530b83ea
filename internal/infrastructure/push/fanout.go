package push

import (
	"sync"

	"github.com/felixgeelhaar/boardsync/pkg/domain/events"
)

// fanout copies every received envelope to its subscribers. A subscriber
// whose buffer is full misses the envelope.
type fanout struct {
	mu   sync.RWMutex
	subs map[chan events.Envelope]struct{}
}

func newFanout() *fanout {
	return &fanout{subs: make(map[chan events.Envelope]struct{})}
}

func (f *fanout) subscribe(buffer int) (<-chan events.Envelope, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan events.Envelope, buffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *fanout) publish(env events.Envelope) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- env:
		default:
		}
	}
}
