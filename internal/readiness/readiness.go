// Package readiness decides whether the appliance has enough configuration to
// stream.
package readiness

import (
	"strings"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

const (
	DefaultKey         = "RTMP_URL"
	DefaultPlaceholder = "__RTMP_URL__"
)

// Values is the read side of a config set.
type Values interface {
	Get(key string) (string, bool)
}

// Gate checks that the endpoint key holds a real value.
type Gate struct {
	Key         string
	Placeholder string
}

// NewGate returns a Gate, substituting defaults for empty arguments.
func NewGate(key, placeholder string) Gate {
	if key == "" {
		key = DefaultKey
	}
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return Gate{Key: key, Placeholder: placeholder}
}

// IsReady reports whether the endpoint is present, non-blank and not the
// unresolved placeholder.
func (g Gate) IsReady(values Values) bool {
	if values == nil {
		return false
	}
	v, ok := values.Get(g.key())
	if !ok {
		return false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if p := g.Placeholder; p != "" && strings.Contains(v, p) {
		return false
	}
	return true
}

// Check returns a NotReady error when IsReady is false.
func (g Gate) Check(values Values) error {
	if g.IsReady(values) {
		return nil
	}
	return errors.NotReadyError("stream endpoint is not configured").
		WithContext("key", g.key()).
		Build()
}

func (g Gate) key() string {
	if g.Key == "" {
		return DefaultKey
	}
	return g.Key
}
