package uiloop

// Listeners is a subscription list for change notifications. It is owned by
// the loop like the state it reports on, so it takes no locks.
type Listeners[E any] struct {
	next int
	fns  map[int]func(E)
	ids  []int
}

// Add registers fn and returns a function that removes it.
func (l *Listeners[E]) Add(fn func(E)) (remove func()) {
	if l.fns == nil {
		l.fns = make(map[int]func(E))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.ids = append(l.ids, id)
	return func() {
		delete(l.fns, id)
		for i, v := range l.ids {
			if v == id {
				l.ids = append(l.ids[:i], l.ids[i+1:]...)
				break
			}
		}
	}
}

// Emit calls every listener in registration order.
func (l *Listeners[E]) Emit(e E) {
	ids := append([]int(nil), l.ids...)
	for _, id := range ids {
		if fn, ok := l.fns[id]; ok {
			fn(e)
		}
	}
}

// Len returns the number of registered listeners.
func (l *Listeners[E]) Len() int {
	return len(l.ids)
}
