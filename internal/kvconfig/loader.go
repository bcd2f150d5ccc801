package kvconfig

import (
	"os"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
)

// Loader reads the persisted config layered over the defaults file.
type Loader struct {
	FS           *storage.FS
	Path         string
	DefaultsPath string
}

// Load returns the persisted entries with comments, falling back to the defaults
// file when the config does not exist, and fills missing keys from defaults.
// When neither file exists the result is empty.
func (l *Loader) Load() (*Set, error) {
	defaults, err := l.readOptional(l.DefaultsPath)
	if err != nil {
		return nil, err
	}

	text, err := l.readOptional(l.Path)
	if err != nil {
		return nil, err
	}
	if text == nil {
		text = defaults
	}

	set := NewSet()
	if text != nil {
		set = Parse(*text)
	}
	if defaults != nil {
		set.MergeDefaults(ParseValues(*defaults))
	}
	return set, nil
}

// Defaults returns the values of the defaults file only.
func (l *Loader) Defaults() (*Set, error) {
	text, err := l.readOptional(l.DefaultsPath)
	if err != nil || text == nil {
		return NewSet(), err
	}
	return ParseValues(*text), nil
}

// Raw returns the persisted file as is.
func (l *Loader) Raw() (string, error) {
	text, err := l.readOptional(l.Path)
	if err != nil {
		return "", err
	}
	if text == nil {
		return "", errors.NotFoundError("config file not found").
			WithContext("path", l.Path).
			Build()
	}
	return *text, nil
}

func (l *Loader) readOptional(path string) (*string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := l.FS.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read config").
			WithContext("path", path).
			Build()
	}
	s := string(data)
	return &s, nil
}
