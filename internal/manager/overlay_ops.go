package manager

import (
	"context"
	"os"
	"strings"

	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

// ScanningStable is reported when the scanner has not written a state.
const ScanningStable = "stable"

// overlayFileMode lets the encoder and the scanner scripts, which run under
// other users, rewrite the file too.
const overlayFileMode os.FileMode = 0o666

type overlayPaths struct {
	text     string
	scanning string
}

// DynamicOverlay is the live overlay text and the frequency scanner state.
type DynamicOverlay struct {
	Text     string `json:"text"`
	Scanning string `json:"scanning"`
}

// DynamicOverlay reads the live overlay. Missing files read as an empty text
// and a stable scanner.
func (m *Manager) DynamicOverlay() (DynamicOverlay, error) {
	if m.overlay.text == "" {
		return DynamicOverlay{}, notConfigured("dynamic overlay")
	}
	text, err := m.readTrimmed(m.overlay.text)
	if err != nil {
		return DynamicOverlay{}, err
	}
	out := DynamicOverlay{Text: text, Scanning: ScanningStable}
	if m.overlay.scanning != "" {
		state, err := m.readTrimmed(m.overlay.scanning)
		if err != nil {
			return DynamicOverlay{}, err
		}
		if state != "" {
			out.Scanning = state
		}
	}
	return out, nil
}

// SetDynamicOverlay replaces the live overlay text. The stream keeps running;
// the encoder picks the new text up on its next reload of the file.
func (m *Manager) SetDynamicOverlay(ctx context.Context, text string) (string, error) {
	if m.overlay.text == "" {
		return "", notConfigured("dynamic overlay")
	}
	return m.mutate(ctx, "overlay.set", func(ctx context.Context, opID string) error {
		p := m.overlay.text
		if err := m.fs.WriteFile(p, []byte(text), overlayFileMode); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to write overlay text").
				WithContext("path", p).
				Build()
		}
		if err := m.fs.Chmod(p, overlayFileMode); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to set overlay permissions").
				WithContext("path", p).
				Build()
		}
		if e, err := eventstore.NewOverlayUpdated(opID, text); err == nil {
			m.record(ctx, e)
		}
		return nil
	})
}

func (m *Manager) readTrimmed(p string) (string, error) {
	data, err := m.fs.ReadFile(p)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to read overlay file").
			WithContext("path", p).
			Build()
	}
	return strings.TrimSpace(string(data)), nil
}
