package track

import "sync"

// registry maps live observer ids to their observers.
//
// Scheduled work never holds an observer directly: it carries the id
// and looks it up again at each liveness checkpoint. Removing the id
// is what makes in-flight cycles for that observer inert, independent
// of who still references the struct.
type registry struct {
	mu        sync.Mutex
	observers map[string]*observer
}

func newRegistry() *registry {
	return &registry{observers: make(map[string]*observer)}
}

func (r *registry) add(o *observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[o.id] = o
}

func (r *registry) lookup(id string) (*observer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.observers[id]
	return o, ok
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, id)
}

// all returns the live observers in no particular order.
func (r *registry) all() []*observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*observer, 0, len(r.observers))
	for _, o := range r.observers {
		out = append(out, o)
	}
	return out
}
