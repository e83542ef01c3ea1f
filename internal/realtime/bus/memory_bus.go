package bus

import (
	"context"
	"sync"
)

// MemoryBus delivers events to forwarders in the same process, synchronously
// and in publish order.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[int]func(BranchEvent)
	next     int
	closed   bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: map[int]func(BranchEvent){}}
}

func (b *MemoryBus) Publish(ctx context.Context, evt BranchEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := make([]func(BranchEvent), 0, len(b.handlers))
	for i := 0; i < b.next; i++ {
		if h, ok := b.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(ctx context.Context, onEvt func(evt BranchEvent)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	if !b.closed {
		b.handlers[id] = onEvt
	}
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = map[int]func(BranchEvent){}
	return nil
}
