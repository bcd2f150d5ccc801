package config

import (
	stderrors "errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; the first one found wins.
var envFiles = []string{".env", ".env.local"}

// loadEnvFile loads KEY=VALUE pairs from the first present env file.
// godotenv.Load never overrides variables already set in the process environment.
func loadEnvFile() error {
	var lastErr error
	for _, name := range envFiles {
		err := godotenv.Load(name)
		if err == nil {
			slog.Debug("loaded environment file", "path", name)
			return nil
		}
		if !stderrors.Is(err, fs.ErrNotExist) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
