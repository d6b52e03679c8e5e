package micframe

import "sync"

// frameRing is the bounded single-producer/single-consumer queue between the
// capture goroutine and Read. Push never blocks: when the ring is full the
// oldest frame is evicted (drop-oldest) and the drop counter incremented, so
// a slow consumer costs data rather than capture timing. Pop blocks until a
// frame arrives or the ring is closed.
//
// Whether overflow should drop the oldest or the newest frame, or be a hard
// error, is a policy choice; drop-oldest with a queryable counter keeps the
// delivered stream as fresh as possible and is what this package commits to.
type frameRing struct {
	mu   sync.Mutex
	cond *sync.Cond

	frames  [][]int16
	head    int
	size    int
	dropped uint64
	closed  bool
}

func newFrameRing(capacity int) *frameRing {
	r := &frameRing{frames: make([][]int16, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// push adds a frame, evicting the oldest one if the ring is full. Pushes
// after close are discarded.
func (r *frameRing) push(frame []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.size == len(r.frames) {
		r.head = (r.head + 1) % len(r.frames)
		r.size--
		r.dropped++
	}
	r.frames[(r.head+r.size)%len(r.frames)] = frame
	r.size++
	r.cond.Signal()
}

// pop removes and returns the oldest frame, blocking until one is available.
// It returns ok=false once the ring is closed and drained of nothing: a
// close discards buffered frames, because they belong to a capture session
// that has ended.
func (r *frameRing) pop() ([]int16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.size == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return nil, false
	}

	frame := r.frames[r.head]
	r.frames[r.head] = nil
	r.head = (r.head + 1) % len(r.frames)
	r.size--
	return frame, true
}

// close rejects further pushes and wakes every blocked pop.
func (r *frameRing) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
}

func (r *frameRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *frameRing) overflows() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
