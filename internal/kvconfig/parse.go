package kvconfig

import "strings"

const (
	commentMarker = "#"
	separator     = "="
)

// Parse reads KEY=VALUE text into a Set.
//
// Comment lines accumulate into a pending comment which is attached to the next
// key and cleared. A blank line, or any line that is neither a comment nor an
// assignment, drops the pending comment. A repeated key keeps its first position
// and takes the later value.
func Parse(text string) *Set {
	set := NewSet()
	var pending []string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, commentMarker):
			pending = append(pending, strings.TrimSpace(trimmed[len(commentMarker):]))

		case isAssignment(trimmed):
			key, raw, _ := strings.Cut(trimmed, separator)
			key = strings.TrimSpace(key)
			set.Put(key, cleanValue(raw))
			if len(pending) > 0 {
				set.setComment(key, strings.Join(pending, " "))
			}
			pending = nil

		default:
			pending = nil
		}
	}

	return set
}

// ParseValues parses text like Parse but ignores comments. Used for defaults.
func ParseValues(text string) *Set {
	set := NewSet()
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !isAssignment(trimmed) {
			continue
		}
		key, raw, _ := strings.Cut(trimmed, separator)
		set.Put(strings.TrimSpace(key), cleanValue(raw))
	}
	return set
}

// isAssignment reports whether a trimmed line assigns a non-empty key.
func isAssignment(trimmed string) bool {
	if strings.HasPrefix(trimmed, commentMarker) {
		return false
	}
	key, _, found := strings.Cut(trimmed, separator)
	return found && strings.TrimSpace(key) != ""
}

// lineKey returns the key assigned by a raw file line.
func lineKey(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !isAssignment(trimmed) {
		return "", false
	}
	key, _, _ := strings.Cut(trimmed, separator)
	return strings.TrimSpace(key), true
}

// cleanValue applies the value rules: cut at an inline comment, trim, then strip
// one pair of matching quotes.
func cleanValue(raw string) string {
	if i := strings.Index(raw, commentMarker); i >= 0 {
		raw = raw[:i]
	}
	v := strings.TrimSpace(raw)
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if first == last && (first == '"' || first == '\'') {
			v = v[1 : len(v)-1]
		}
	}
	return v
}
