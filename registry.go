package vtpatch

import "sync"

// Originals holds the slot values a factory vtable had before it was
// patched, indexed by delegating replacement.
type Originals [numOriginals]uintptr

// registry maps patched factory vtables to their original methods. Lookups
// happen on every delegated call; stores happen once per vtable.
type registry struct {
	mu      sync.RWMutex
	entries map[vtable]Originals
}

func (r *registry) store(vt vtable, o Originals) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[vtable]Originals)
	}
	if _, ok := r.entries[vt]; ok {
		return
	}
	r.entries[vt] = o
}

func (r *registry) lookup(vt vtable) (Originals, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.entries[vt]
	return o, ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// patchEntry guards one vtable. applied is set once the patch is fully in
// place.
type patchEntry struct {
	once    sync.Once
	applied bool
}

// patchedSet records every vtable a patch has been attempted on. Claiming a
// vtable is atomic; the patch itself runs under the vtable's own once so
// unrelated vtables never wait on each other's planning.
type patchedSet struct {
	mu      sync.Mutex
	entries map[vtable]*patchEntry
}

// claim returns the entry guarding vt and whether this call inserted it.
func (s *patchedSet) claim(vt vtable) (*patchEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.entries = make(map[vtable]*patchEntry)
	}
	if entry, ok := s.entries[vt]; ok {
		return entry, false
	}
	entry := new(patchEntry)
	s.entries[vt] = entry
	return entry, true
}

func (s *patchedSet) markApplied(vt vtable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[vt]; ok {
		entry.applied = true
	}
}

// contains reports whether the patch on vt has been fully applied.
func (s *patchedSet) contains(vt vtable) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[vt]
	return ok && entry.applied
}

// len counts fully applied vtables.
func (s *patchedSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entry := range s.entries {
		if entry.applied {
			n++
		}
	}
	return n
}
