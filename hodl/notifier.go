package hodl

import "sync"

// resolutionNotifier wakes pending evaluations when the decision record they
// are waiting on is written by this process. Writes made by other processes
// are picked up by polling.
type resolutionNotifier struct {
	mtx         sync.Mutex
	nextID      uint64
	subscribers map[string]map[uint64]chan struct{}
}

func newResolutionNotifier() *resolutionNotifier {
	return &resolutionNotifier{
		subscribers: make(map[string]map[uint64]chan struct{}),
	}
}

// subscribe returns a channel that receives a value after every notify for
// the key, and a function that removes the subscription. Wake-ups are
// coalesced: a subscriber that has not drained its channel misses nothing
// but receives only one value.
func (n *resolutionNotifier) subscribe(key string) (<-chan struct{}, func()) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	id := n.nextID
	n.nextID++

	c := make(chan struct{}, 1)
	subs, ok := n.subscribers[key]
	if !ok {
		subs = make(map[uint64]chan struct{})
		n.subscribers[key] = subs
	}
	subs[id] = c

	cancel := func() {
		n.mtx.Lock()
		defer n.mtx.Unlock()

		subs := n.subscribers[key]
		delete(subs, id)
		if len(subs) == 0 {
			delete(n.subscribers, key)
		}
	}

	return c, cancel
}

// notify wakes every subscriber of key without blocking.
func (n *resolutionNotifier) notify(key string) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	subs := n.subscribers[key]
	for _, c := range subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
	return len(subs)
}
