// Package pubsub is a small typed publish/subscribe channel used between
// components that share an event loop.
package pubsub

// Topic fans a value out to every subscriber in subscription order. It is not
// safe for concurrent use; callers publish and subscribe from the loop.
type Topic[T any] struct {
	next int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.next++
	id := t.next
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})
	return func() {
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers v to the subscribers registered at the time of the call.
func (t *Topic[T]) Publish(v T) {
	subs := t.subs
	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	return len(t.subs)
}
