package practice

import "sync"

// Registry holds the conversation states of running flows. Readers get
// copies, so a flow can mutate its state freely and only Put it back once
// the step has been committed.
type Registry struct {
	mu     sync.Mutex
	states map[Key]*State
	locks  map[Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		states: make(map[Key]*State),
		locks:  make(map[Key]*keyLock),
	}
}

// Get returns a copy of the state for k.
func (r *Registry) Get(k Key) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[k]
	if !ok {
		return nil, false
	}
	return st.clone(), true
}

// Put stores a copy of st under its key.
func (r *Registry) Put(st *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[st.Key] = st.clone()
}

// Delete drops the state for k.
func (r *Registry) Delete(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, k)
}

// Len returns the number of running flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Lock serializes work on one conversation. The returned func releases it.
func (r *Registry) Lock(k Key) func() {
	r.mu.Lock()
	l, ok := r.locks[k]
	if !ok {
		l = &keyLock{}
		r.locks[k] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, k)
		}
		r.mu.Unlock()
	}
}
