package pipeline

import (
	"sync"

	"codecast/internal/content"
	"codecast/internal/fingerprint"
)

// flight is one in-progress generation shared by every caller that asked
// for the same fingerprint while it ran.
type flight struct {
	done chan struct{}
	expl *content.Explanation
	err  error
}

// flightGroup deduplicates concurrent generation per fingerprint. The
// first caller becomes the leader and runs the pipeline; the rest block on
// the flight and share its outcome. Completed flights are removed, so a
// failed or cancelled generation can be retried immediately.
type flightGroup struct {
	mu      sync.Mutex
	flights map[fingerprint.Fingerprint]*flight
}

// join returns the flight for fp and whether the caller is its leader.
func (g *flightGroup) join(fp fingerprint.Fingerprint) (*flight, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.flights == nil {
		g.flights = make(map[fingerprint.Fingerprint]*flight)
	}
	if f, ok := g.flights[fp]; ok {
		return f, false
	}
	f := &flight{done: make(chan struct{})}
	g.flights[fp] = f
	return f, true
}

// complete publishes the outcome and releases the waiters. Only the
// leader calls this, exactly once.
func (g *flightGroup) complete(fp fingerprint.Fingerprint, f *flight, expl *content.Explanation, err error) {
	g.mu.Lock()
	delete(g.flights, fp)
	g.mu.Unlock()

	f.expl = expl
	f.err = err
	close(f.done)
}
