package traversal

import (
	"sync"
)

// Entry is one unit of frontier work.
type Entry struct {
	NodeID string
	Depth  int
}

// Frontier is the FIFO work queue shared by the workers.
//
// The visited set is checked and marked under the same lock as the
// dequeue, so a node is handed out at most once no matter how many times
// it was pushed.
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   []Entry
	visited map[string]bool

	// inFlight counts handed-out entries per depth.
	inFlight map[int]int
	active   int

	stopped bool
}

// NewFrontier returns an empty frontier.
func NewFrontier() *Frontier {
	f := &Frontier{
		visited:  make(map[string]bool),
		inFlight: make(map[int]int),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues an entry unless the node was already handed out or the
// frontier is stopped. It reports whether the entry was queued.
func (f *Frontier) Push(e Entry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped || f.visited[e.NodeID] {
		return false
	}
	f.queue = append(f.queue, e)
	f.cond.Broadcast()
	return true
}

// Next blocks until an entry can be handed out. It returns false once the
// frontier is stopped, or when the queue is empty and nothing is in
// flight, since no more work can appear.
//
// Every entry returned must be released with Done.
func (f *Frontier) Next() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.stopped {
			return Entry{}, false
		}

		// Drop entries for nodes another worker already took.
		for len(f.queue) > 0 && f.visited[f.queue[0].NodeID] {
			f.queue = f.queue[1:]
		}

		if len(f.queue) > 0 {
			head := f.queue[0]
			if !f.shallowerInFlight(head.Depth) {
				f.queue = f.queue[1:]
				f.visited[head.NodeID] = true
				f.inFlight[head.Depth]++
				f.active++
				return head, true
			}
		} else if f.active == 0 {
			// Drained. Wake the other waiters so they exit too.
			f.cond.Broadcast()
			return Entry{}, false
		}

		f.cond.Wait()
	}
}

// Done releases an entry returned by Next.
func (f *Frontier) Done(e Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight[e.Depth]--
	if f.inFlight[e.Depth] <= 0 {
		delete(f.inFlight, e.Depth)
	}
	f.active--
	f.cond.Broadcast()
}

// Stop makes every current and future Next call return false. Entries
// already handed out stay valid and must still be released.
func (f *Frontier) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.cond.Broadcast()
}

// Pending returns the number of distinct queued nodes that were never
// handed out.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]bool, len(f.queue))
	for _, e := range f.queue {
		if !f.visited[e.NodeID] {
			seen[e.NodeID] = true
		}
	}
	return len(seen)
}

// Visited reports whether a node was already handed out.
func (f *Frontier) Visited(nodeID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[nodeID]
}

// InFlight returns the number of handed-out entries not yet released.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Frontier) shallowerInFlight(depth int) bool {
	for d, n := range f.inFlight {
		if d < depth && n > 0 {
			return true
		}
	}
	return false
}
