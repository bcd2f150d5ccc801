package kvconfig

import "slices"

// Change records the effect of a write on one key.
type Change struct {
	Key     string `json:"key"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Existed bool   `json:"existed"`
}

// ChangeSet lists keys whose value differs between two sets, in key order of the
// newer set followed by removed keys.
type ChangeSet []Change

// Diff compares two value sets.
func Diff(before, after *Set) ChangeSet {
	var out ChangeSet
	for _, e := range after.Entries() {
		old, existed := before.Get(e.Key)
		if existed && old == e.Value {
			continue
		}
		out = append(out, Change{Key: e.Key, Old: old, New: e.Value, Existed: existed})
	}
	for _, e := range before.Entries() {
		if after.Has(e.Key) {
			continue
		}
		out = append(out, Change{Key: e.Key, Old: e.Value, Existed: true})
	}
	return out
}

// Keys returns the changed keys.
func (c ChangeSet) Keys() []string {
	keys := make([]string, len(c))
	for i, ch := range c {
		keys[i] = ch.Key
	}
	return keys
}

// Touches reports whether any of keys changed.
func (c ChangeSet) Touches(keys ...string) bool {
	for _, ch := range c {
		if slices.Contains(keys, ch.Key) {
			return true
		}
	}
	return false
}
