package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads the .env file for the given mode. It tries ".env.<mode>"
// first and falls back to ".env".
func LoadEnv(mode string) error {
	candidates := []string{fmt.Sprintf(".env.%s", mode), ".env"}
	var lastErr error
	for _, file := range candidates {
		if _, err := os.Stat(file); err != nil {
			lastErr = err
			continue
		}
		return godotenv.Load(file)
	}
	return lastErr
}

// GetEnv returns the raw value of an environment variable.
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetStringOrDefault returns the value of an environment variable or the
// default when unset or empty.
func GetStringOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetIntOrDefault returns an environment variable parsed as int.
func GetIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// GetBoolOrDefault returns an environment variable parsed as bool.
func GetBoolOrDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// GetDurationOrDefault returns an environment variable parsed as a duration
// string such as "30s" or "5m".
func GetDurationOrDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}
