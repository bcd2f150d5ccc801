package config

import (
	"fmt"
	"strings"
)

// normalize canonicalizes enumerations and trims values before defaults run.
// It returns human-readable warnings for values it had to discard.
func normalize(cfg *Config) []string {
	var warnings []string

	if raw := string(cfg.Logging.Level); raw != "" {
		lvl := NormalizeLogLevel(raw)
		if lvl == "" {
			warnings = append(warnings, fmt.Sprintf("unknown logging.level %q, using default", raw))
		}
		cfg.Logging.Level = lvl
	}
	if raw := string(cfg.Logging.Format); raw != "" {
		f := NormalizeLogFormat(raw)
		if f == "" {
			warnings = append(warnings, fmt.Sprintf("unknown logging.format %q, using default", raw))
		}
		cfg.Logging.Format = f
	}

	cfg.Artifact.Mode = strings.TrimSpace(cfg.Artifact.Mode)
	cfg.Readiness.Key = strings.TrimSpace(cfg.Readiness.Key)

	seen := make(map[string]struct{}, len(cfg.Stream.CriticalKeys))
	keys := cfg.Stream.CriticalKeys[:0]
	for _, k := range cfg.Stream.CriticalKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate stream.critical_keys entry %q", k))
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	cfg.Stream.CriticalKeys = keys

	return warnings
}
