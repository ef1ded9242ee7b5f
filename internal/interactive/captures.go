package interactive

import "sync"

// Captures records clipboard texts in write order. It is safe for a producer
// goroutine (the binding listener) and a consumer to use concurrently, and it
// never drops a text however many arrive before the consumer reads.
type Captures struct {
	mu     sync.Mutex
	texts  []string
	signal chan struct{}
}

// NewCaptures returns an empty record.
func NewCaptures() *Captures {
	return &Captures{signal: make(chan struct{}, 1)}
}

// Add appends text and wakes a waiting consumer.
func (c *Captures) Add(text string) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
		// A wakeup is already pending.
	}
}

// Captured returns a copy of the texts recorded so far.
func (c *Captures) Captured() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

// Len returns the number of recorded texts.
func (c *Captures) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

// Updated is signalled after Add. Several adds may share one signal, so
// readers re-check Captured after every wakeup.
func (c *Captures) Updated() <-chan struct{} {
	return c.signal
}

// Reset forgets every recorded text and any pending wakeup.
func (c *Captures) Reset() {
	c.mu.Lock()
	c.texts = nil
	c.mu.Unlock()

	select {
	case <-c.signal:
	default:
	}
}
