package events

import "sync"

// Bus is a process-wide fan-out point: any package can Subscribe and any
// package can Publish, with no compile-time dependency between them.
// Grounded on blrec's `event/event_center.py` (EventCenter singleton).
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(any)
}

var (
	eventBus     *Bus
	eventBusOnce sync.Once

	exceptionBus     *ExceptionBus
	exceptionBusOnce sync.Once
)

// Events returns the process-wide event bus singleton.
func Events() *Bus {
	eventBusOnce.Do(func() { eventBus = &Bus{} })
	return eventBus
}

// Subscribe registers fn to receive every future Publish call, returning an
// unsubscribe func, matching blrec's `events.subscribe(...).dispose()`
// pattern (SwitchableMixin._do_disable disposes the subscription fn holds).
func (b *Bus) Subscribe(fn func(any)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(any))
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish fans event out to every subscriber, recovering panics.
func (b *Bus) Publish(event any) {
	b.mu.Lock()
	subs := make([]func(any), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() { recover() }()
			fn(event)
		}()
	}
}

// ExceptionBus is the process-wide sink for exceptions swallowed inside
// Emitter.Emit (and anywhere else a goroutine wants to surface a failure
// without crashing its caller).
type ExceptionBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(any)
}

// Exceptions returns the process-wide exception bus singleton.
func Exceptions() *ExceptionBus {
	exceptionBusOnce.Do(func() { exceptionBus = &ExceptionBus{} })
	return exceptionBus
}

// Subscribe registers fn to receive every future Submit call, returning an
// unsubscribe func.
func (b *ExceptionBus) Subscribe(fn func(any)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(any))
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Submit fans exc out to every subscriber.
func (b *ExceptionBus) Submit(exc any) {
	b.mu.Lock()
	subs := make([]func(any), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() { recover() }()
			fn(exc)
		}()
	}
}
