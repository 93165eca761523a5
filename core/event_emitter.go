package session

import "sync"

// observers fans state snapshots out to subscribers in subscription order.
type observers struct {
	mu     sync.Mutex
	nextID int
	ids    []int
	funcs  map[int]func(State)
}

func (o *observers) add(callback func(State)) (remove func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.funcs == nil {
		o.funcs = map[int]func(State){}
	}
	id := o.nextID
	o.nextID++
	o.ids = append(o.ids, id)
	o.funcs[id] = callback

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.funcs, id)
			for i, candidate := range o.ids {
				if candidate == id {
					o.ids = append(o.ids[:i], o.ids[i+1:]...)
					break
				}
			}
		})
	}
}

func (o *observers) emit(state State) {
	o.mu.Lock()
	callbacks := make([]func(State), 0, len(o.ids))
	for _, id := range o.ids {
		callbacks = append(callbacks, o.funcs[id])
	}
	o.mu.Unlock()

	for i, callback := range callbacks {
		snapshot := state
		if i > 0 {
			snapshot = state.clone()
		}
		callback(snapshot)
	}
}
