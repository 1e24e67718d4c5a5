package link

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type observer struct {
	fn func(Event)
}

// observers is a copy-on-write observer list: delivery reads a snapshot
// without locking, so observers may subscribe or cancel from inside a
// callback.
//
// Events are posted while the owner still holds its state lock and delivered
// by flush after it is released. Only one goroutine delivers at a time, so
// observers see events in the order the state changed.
type observers struct {
	v  atomic.Value // []*observer
	mu sync.Mutex

	// outMu is taken after the owner's state lock, never before
	outMu       sync.Mutex
	pending     events
	dispatching bool

	log *logrus.Entry
}

func (o *observers) load() []*observer {
	list, _ := o.v.Load().([]*observer)
	return list
}

func (o *observers) add(fn func(Event)) (cancel func()) {
	obs := &observer{fn: fn}

	o.mu.Lock()
	old := o.load()
	list := make([]*observer, 0, len(old)+1)
	list = append(list, old...)
	list = append(list, obs)
	o.v.Store(list)
	o.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			o.remove(obs)
		})
	}
}

func (o *observers) remove(obs *observer) {
	o.mu.Lock()
	defer o.mu.Unlock()

	old := o.load()
	list := make([]*observer, 0, len(old))

	for _, v := range old {
		if v != obs {
			list = append(list, v)
		}
	}

	o.v.Store(list)
}

// post queues ev for delivery.
func (o *observers) post(ev events) {
	if len(ev) == 0 {
		return
	}

	o.outMu.Lock()
	o.pending = append(o.pending, ev...)
	o.outMu.Unlock()
}

// flush delivers every posted event. It must not be called with any
// component lock held. A flush running inside an observer, or while another
// goroutine is delivering, leaves the events to that delivery.
func (o *observers) flush() {
	o.outMu.Lock()

	if o.dispatching {
		o.outMu.Unlock()
		return
	}

	o.dispatching = true

	for len(o.pending) > 0 {
		batch := o.pending
		o.pending = nil
		o.outMu.Unlock()

		list := o.load()
		for _, e := range batch {
			for _, obs := range list {
				o.call(obs, e)
			}
		}

		o.outMu.Lock()
	}

	o.dispatching = false
	o.outMu.Unlock()
}

func (o *observers) emit(ev events) {
	o.post(ev)
	o.flush()
}

// call keeps a panicking observer from stopping the I/O loop that emitted.
func (o *observers) call(obs *observer, e Event) {
	defer func() {
		if v := recover(); v != nil && o.log != nil {
			o.log.WithField("event", e.Kind.String()).Errorf("observer panicked: %v", v)
		}
	}()

	obs.fn(e)
}
