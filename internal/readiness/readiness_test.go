package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
)

func TestIsReady(t *testing.T) {
	gate := NewGate("", "")

	cases := []struct {
		name   string
		values map[string]string
		want   bool
	}{
		{"empty set", map[string]string{}, false},
		{"blank endpoint", map[string]string{"RTMP_URL": " "}, false},
		{"placeholder", map[string]string{"RTMP_URL": "__RTMP_URL__"}, false},
		{"placeholder inside value", map[string]string{"RTMP_URL": "rtmp://__RTMP_URL__/x"}, false},
		{"configured", map[string]string{"RTMP_URL": "rtmp://host/app"}, true},
		{"other key only", map[string]string{"OVERLAY_TEXT": "x"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, gate.IsReady(kvconfig.SetFromMap(tc.values)))
		})
	}
}

func TestIsReadyNil(t *testing.T) {
	assert.False(t, NewGate("", "").IsReady(nil))
}

func TestCustomKey(t *testing.T) {
	gate := NewGate("ENDPOINT", "__PLACEHOLDER__")
	assert.False(t, gate.IsReady(kvconfig.SetFromMap(map[string]string{"ENDPOINT": "__PLACEHOLDER__"})))
	assert.True(t, gate.IsReady(kvconfig.SetFromMap(map[string]string{"ENDPOINT": "rtmp://host/app"})))
}

func TestCheck(t *testing.T) {
	gate := NewGate("", "")
	err := gate.Check(kvconfig.NewSet())
	require.Error(t, err)
	assert.True(t, errors.IsNotReady(err))

	assert.NoError(t, gate.Check(kvconfig.SetFromMap(map[string]string{"RTMP_URL": "rtmp://h/a"})))
}
