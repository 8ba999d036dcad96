package timers

import (
	"sync"
	"time"
)

// Handle identifies one registered timer. The zero Handle is never issued, so
// callers can use it as "no timer armed".
type Handle uint64

// Registry creates cancelable timeouts and intervals tied to the lifetime of
// an owning component. Callbacks only run while their entry is still
// registered and the registry has not been closed, so a callback can never
// observe state belonging to a component whose teardown has begun.
type Registry struct {
	mu     sync.Mutex
	next   Handle
	closed bool
	after  map[Handle]*time.Timer
	every  map[Handle]chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		after: make(map[Handle]*time.Timer),
		every: make(map[Handle]chan struct{}),
	}
}

// After arms a one-shot timer. The callback fires at most once, and only if
// neither Stop nor Close ran first. Returns 0 if the registry is closed.
func (r *Registry) After(d time.Duration, fn func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}

	r.next++
	handle := r.next
	r.after[handle] = time.AfterFunc(d, func() {
		r.mu.Lock()
		_, live := r.after[handle]
		if live {
			delete(r.after, handle)
		}
		r.mu.Unlock()
		if live {
			fn()
		}
	})
	return handle
}

// Every arms a repeating timer that fires until stopped. Returns 0 if the
// registry is closed.
func (r *Registry) Every(d time.Duration, fn func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}

	r.next++
	handle := r.next
	done := make(chan struct{})
	r.every[handle] = done

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.mu.Lock()
				_, live := r.every[handle]
				r.mu.Unlock()
				if !live {
					return
				}
				fn()
			}
		}
	}()
	return handle
}

// Stop cancels one entry. Stopping an unknown, already-fired, or
// already-stopped handle is a no-op.
func (r *Registry) Stop(handle Handle) {
	if handle == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if timer, ok := r.after[handle]; ok {
		timer.Stop()
		delete(r.after, handle)
	}
	if done, ok := r.every[handle]; ok {
		close(done)
		delete(r.every, handle)
	}
}

// Close cancels every outstanding entry and rejects new registrations. Safe
// to call after timers already fired; callbacks that have not yet acquired
// the registry lock will observe the teardown and skip.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	for handle, timer := range r.after {
		timer.Stop()
		delete(r.after, handle)
	}
	for handle, done := range r.every {
		close(done)
		delete(r.every, handle)
	}
}

// Active returns the number of outstanding entries.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.after) + len(r.every)
}
