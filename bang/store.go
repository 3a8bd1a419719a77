package bang

import "sync/atomic"

// Store publishes a Table process-wide. Reload swaps the whole snapshot; a
// concurrent Resolve always observes either the old table or the new one,
// never a partially updated mapping.
type Store struct {
	table atomic.Pointer[Table]
}

// NewStore returns a Store holding the given initial table. A nil table is
// treated as empty.
func NewStore(t Table) *Store {
	s := &Store{}
	if t == nil {
		t = Table{}
	}
	s.table.Store(&t)
	return s
}

// Current returns the table snapshot visible to this call.
func (s *Store) Current() Table {
	return *s.table.Load()
}

// Reload replaces the published table wholesale.
func (s *Store) Reload(t Table) {
	if t == nil {
		t = Table{}
	}
	s.table.Store(&t)
}

// Resolve resolves against the current snapshot.
func (s *Store) Resolve(query string) string {
	return s.Current().Resolve(query)
}

// Suggest suggests against the current snapshot.
func (s *Store) Suggest(prefix string) []string {
	return s.Current().Suggest(prefix)
}
