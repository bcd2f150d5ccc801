package kvconfig

import (
	"context"
	"os"
	"strings"
	"unicode"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
)

// Reassigner hands a freshly written file to the primary operating identity.
type Reassigner interface {
	Reassign(ctx context.Context, path string) error
}

// Writer applies updates to the persisted config file while keeping every line
// it does not touch.
type Writer struct {
	FS           *storage.FS
	Path         string
	DefaultsPath string
	Owner        Reassigner
}

// Apply rewrites assignment lines for keys in updates, appends keys that were not
// present, and replaces the file in one step. When the file does not exist yet it
// is first created from the defaults file.
func (w *Writer) Apply(ctx context.Context, updates Updates) (ChangeSet, error) {
	original, err := w.bootstrap(ctx)
	if err != nil {
		return nil, err
	}

	before := ParseValues(original)
	rendered := rewrite(original, updates)

	if err := w.FS.WriteFile(w.Path, []byte(rendered), storage.DefaultFileMode); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to write config").
			WithContext("path", w.Path).
			Build()
	}
	if err := w.reassign(ctx); err != nil {
		return nil, err
	}

	return Diff(before, ParseValues(rendered)), nil
}

// WriteRaw replaces the config file with content as given.
func (w *Writer) WriteRaw(ctx context.Context, content string) error {
	if err := w.FS.WriteFile(w.Path, []byte(content), storage.DefaultFileMode); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config").
			WithContext("path", w.Path).
			Build()
	}
	return w.reassign(ctx)
}

// bootstrap returns the current file content, materializing it from defaults on
// first use.
func (w *Writer) bootstrap(ctx context.Context) (string, error) {
	data, err := w.FS.ReadFile(w.Path)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to read config").
			WithContext("path", w.Path).
			Build()
	}

	defaults, err := w.FS.ReadFile(w.DefaultsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFoundError("config file and defaults file are both missing").
				WithContext("path", w.Path).
				WithContext("defaults_path", w.DefaultsPath).
				Build()
		}
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to read defaults").
			WithContext("path", w.DefaultsPath).
			Build()
	}

	if err := w.FS.WriteFile(w.Path, defaults, storage.DefaultFileMode); err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to create config from defaults").
			WithContext("path", w.Path).
			Build()
	}
	if err := w.reassign(ctx); err != nil {
		return "", err
	}
	return string(defaults), nil
}

func (w *Writer) reassign(ctx context.Context) error {
	if w.Owner == nil {
		return nil
	}
	if err := w.Owner.Reassign(ctx, w.Path); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to set config ownership").
			WithContext("path", w.Path).
			Build()
	}
	return nil
}

// rewrite produces the new file text. Untouched lines are copied byte for byte.
func rewrite(original string, updates Updates) string {
	var b strings.Builder
	consumed := make(map[string]bool, len(updates))

	if original != "" {
		for _, line := range strings.SplitAfter(original, "\n") {
			if line == "" {
				continue
			}
			key, ok := lineKey(line)
			if !ok {
				b.WriteString(line)
				continue
			}
			value, wanted := updates.Lookup(key)
			if !wanted {
				b.WriteString(line)
				continue
			}
			b.WriteString(FormatLine(key, value))
			if strings.HasSuffix(line, "\n") {
				b.WriteString("\n")
			}
			consumed[key] = true
		}
	}

	for _, key := range updates.Keys() {
		if consumed[key] {
			continue
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
		value, _ := updates.Lookup(key)
		b.WriteString(FormatLine(key, value))
		b.WriteString("\n")
	}

	return b.String()
}

// FormatLine renders one assignment without a trailing newline.
func FormatLine(key, value string) string {
	return key + separator + quote(value)
}

// quote wraps value in double quotes when it is empty, contains whitespace or
// starts or ends with a quote character. The parser strips exactly one pair, so
// the value reads back unchanged.
func quote(value string) string {
	if value == "" || strings.IndexFunc(value, unicode.IsSpace) >= 0 || edgeQuoted(value) {
		return `"` + value + `"`
	}
	return value
}

func edgeQuoted(value string) bool {
	first, last := value[0], value[len(value)-1]
	return first == '"' || first == '\'' || last == '"' || last == '\''
}
