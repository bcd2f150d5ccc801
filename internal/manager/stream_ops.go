package manager

import (
	"context"

	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/stream"
)

// StartStream starts the pipeline once the endpoint is configured.
func (m *Manager) StartStream(ctx context.Context) (string, error) {
	return m.streamAction(ctx, eventstore.ActionStart, func(ctx context.Context, c *stream.Controller) error {
		return c.Start(ctx)
	})
}

// StopStream stops the pipeline.
func (m *Manager) StopStream(ctx context.Context) (string, error) {
	return m.streamAction(ctx, eventstore.ActionStop, func(ctx context.Context, c *stream.Controller) error {
		return c.Stop(ctx)
	})
}

// RestartStream restarts the pipeline, clearing a pending restart.
func (m *Manager) RestartStream(ctx context.Context) (string, error) {
	return m.streamAction(ctx, eventstore.ActionRestart, func(ctx context.Context, c *stream.Controller) error {
		return c.Restart(ctx)
	})
}

// SetAutostart enables or disables the stream at boot.
func (m *Manager) SetAutostart(ctx context.Context, enable bool) (string, error) {
	action := eventstore.ActionNoAutostart
	if enable {
		action = eventstore.ActionAutostart
	}
	return m.streamAction(ctx, action, func(ctx context.Context, c *stream.Controller) error {
		return c.SetAutostart(ctx, enable)
	})
}

// StreamStatus reports the pipeline state.
func (m *Manager) StreamStatus(ctx context.Context) (stream.Status, error) {
	if m.stream == nil {
		return stream.Status{}, notConfigured("stream controller")
	}
	st, err := m.stream.Status(ctx)
	if err == nil {
		m.metrics.SetStreamActive(st.Active)
	}
	return st, err
}

func (m *Manager) streamAction(ctx context.Context, action string, fn func(context.Context, *stream.Controller) error) (string, error) {
	if m.stream == nil {
		return "", notConfigured("stream controller")
	}
	return m.mutate(ctx, "stream."+action, func(ctx context.Context, opID string) error {
		if err := fn(ctx, m.stream); err != nil {
			return err
		}
		if e, err := eventstore.NewStreamControl(opID, action, m.stream.Units().Stream); err == nil {
			m.record(ctx, e)
		}
		return nil
	})
}
