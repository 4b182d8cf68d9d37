package call

import "sync"

// inbox - неблокирующая очередь событий в цикл звонка. Колбэки pion никогда не ждут цикл.
type inbox struct {
	mu     sync.Mutex
	queue  []loopEvent
	closed bool
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

// push возвращает false, если цикл уже завершён
func (b *inbox) push(ev loopEvent) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}

	return true
}

func (b *inbox) drain() []loopEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queue
	b.queue = nil

	return queue
}

// close запрещает новые события и отдаёт необработанные
func (b *inbox) close() []loopEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	queue := b.queue
	b.queue = nil

	return queue
}
