package events

import (
	"sync"
)

// Listener receives events synchronously on the emitter's goroutine.
type Listener func(Event)

// Dispatcher fans events out to registered listeners. A panicking listener is
// recovered and does not stop delivery to the others.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
	order     []int

	// OnPanic, if set, is called with the recovered value.
	OnPanic func(event Event, recovered interface{})
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[int]Listener)}
}

// Subscribe registers l and returns a function that removes it.
func (d *Dispatcher) Subscribe(l Listener) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = l
	d.order = append(d.order, id)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.listeners, id)
			for i, v := range d.order {
				if v == id {
					d.order = append(d.order[:i], d.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit delivers e to every listener in subscription order.
func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	snapshot := make([]Listener, 0, len(d.order))
	for _, id := range d.order {
		snapshot = append(snapshot, d.listeners[id])
	}
	d.mu.RUnlock()

	for _, l := range snapshot {
		d.deliver(l, e)
	}
}

func (d *Dispatcher) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil && d.OnPanic != nil {
			d.OnPanic(e, r)
		}
	}()
	l(e)
}

// Forward subscribes every event of src onto d.
func (d *Dispatcher) Forward(src *Dispatcher) (unsubscribe func()) {
	return src.Subscribe(d.Emit)
}
