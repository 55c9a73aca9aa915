package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Get retrieves a secret value, supporting both direct env vars and file-based secrets.
// KEY_FILE (Docker secrets, e.g. /run/secrets/redis_password) wins over KEY.
func Get(envKey string) (string, error) {
	if filePath := os.Getenv(envKey + "_FILE"); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read secret file %s: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(envKey), nil
}

// Reader reads several optional secrets and keeps the first failure, so a
// config loader can fill a struct literal and check once.
type Reader struct {
	err error
}

// Get returns the secret for envKey, or "" when it is unset or unreadable
func (r *Reader) Get(envKey string) string {
	value, err := Get(envKey)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%s: %w", envKey, err)
		}
		return ""
	}
	return value
}

// Err returns the first error encountered
func (r *Reader) Err() error {
	return r.err
}
