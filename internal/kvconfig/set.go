package kvconfig

import "maps"

// Entry is a single key with its value and the comment attached above it.
type Entry struct {
	Key     string
	Value   string
	Comment string
}

// Set is an ordered collection of entries with unique keys. Order is the order in
// which keys were first seen.
type Set struct {
	entries []Entry
	index   map[string]int
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// SetFromMap builds a Set from plain values. Iteration order of a map is random,
// so callers that care about order should use Put directly.
func SetFromMap(values map[string]string) *Set {
	s := NewSet()
	for k, v := range values {
		s.Put(k, v)
	}
	return s
}

// Put sets key to value. A new key is appended; an existing key keeps its position
// and comment.
func (s *Set) Put(key, value string) {
	if i, ok := s.index[key]; ok {
		s.entries[i].Value = value
		return
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{Key: key, Value: value})
}

func (s *Set) setComment(key, comment string) {
	if i, ok := s.index[key]; ok {
		s.entries[i].Comment = comment
	}
}

// Get returns the value for key.
func (s *Set) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	i, ok := s.index[key]
	if !ok {
		return "", false
	}
	return s.entries[i].Value, true
}

// GetOr returns the value for key, or fallback when the key is absent.
func (s *Set) GetOr(key, fallback string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return fallback
}

// Entry returns the full entry for key.
func (s *Set) Entry(key string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.index[key]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Has reports whether key is present.
func (s *Set) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Len returns the number of keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Keys returns the keys in order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in order.
func (s *Set) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Values returns key→value.
func (s *Set) Values() map[string]string {
	out := make(map[string]string, s.Len())
	if s == nil {
		return out
	}
	for _, e := range s.entries {
		out[e.Key] = e.Value
	}
	return out
}

// Comments returns key→comment for keys that carry one.
func (s *Set) Comments() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for _, e := range s.entries {
		if e.Comment != "" {
			out[e.Key] = e.Comment
		}
	}
	return out
}

// MergeDefaults adds every key of defaults that s lacks. Present keys are never
// overwritten, and default comments are not carried over.
func (s *Set) MergeDefaults(defaults *Set) {
	if defaults == nil {
		return
	}
	for _, e := range defaults.entries {
		if _, ok := s.index[e.Key]; ok {
			continue
		}
		s.Put(e.Key, e.Value)
	}
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := NewSet()
	if s == nil {
		return out
	}
	out.entries = append(out.entries, s.entries...)
	out.index = maps.Clone(s.index)
	return out
}

// Update is one proposed key→value change.
type Update struct {
	Key   string
	Value string
}

// Updates is an ordered list of proposed changes. New keys are appended to the
// file in this order.
type Updates []Update

// Lookup returns the last proposed value for key.
func (u Updates) Lookup(key string) (string, bool) {
	for i := len(u) - 1; i >= 0; i-- {
		if u[i].Key == key {
			return u[i].Value, true
		}
	}
	return "", false
}

// Keys returns the distinct keys in first-seen order.
func (u Updates) Keys() []string {
	seen := make(map[string]struct{}, len(u))
	keys := make([]string, 0, len(u))
	for _, up := range u {
		if _, ok := seen[up.Key]; ok {
			continue
		}
		seen[up.Key] = struct{}{}
		keys = append(keys, up.Key)
	}
	return keys
}

// UpdatesFromSet turns every entry of s into an update, in order.
func UpdatesFromSet(s *Set) Updates {
	out := make(Updates, 0, s.Len())
	for _, e := range s.Entries() {
		out = append(out, Update{Key: e.Key, Value: e.Value})
	}
	return out
}
