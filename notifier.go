package squid

import "sync"

// notifier delivers state values to a callback in the order they were
// queued. A callback that triggers another state change from inside itself
// does not recurse: the nested value is queued and delivered once the
// current callback returns.
type notifier[S any] struct {
	fn func(S)

	mu       sync.Mutex
	queue    []S
	draining bool
}

func newNotifier[S any](fn func(S)) *notifier[S] {
	return &notifier[S]{fn: fn}
}

// push queues s. Callers hold the lock that ordered the state change, so
// queue order is application order.
func (n *notifier[S]) push(s S) {
	if n.fn == nil {
		return
	}
	n.mu.Lock()
	n.queue = append(n.queue, s)
	n.mu.Unlock()
}

// flush delivers queued values unless another goroutine (or an outer call
// on this one) is already delivering them.
func (n *notifier[S]) flush() {
	if n.fn == nil {
		return
	}
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return
	}
	n.draining = true
	defer func() {
		if r := recover(); r != nil {
			n.mu.Lock()
			n.draining = false
			n.mu.Unlock()
			panic(r)
		}
	}()
	for len(n.queue) > 0 {
		s := n.queue[0]
		var zero S
		n.queue[0] = zero
		n.queue = n.queue[1:]
		n.mu.Unlock()
		n.fn(s)
		n.mu.Lock()
	}
	n.draining = false
	n.mu.Unlock()
}
