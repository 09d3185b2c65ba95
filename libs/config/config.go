package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	mu sync.RWMutex
	v  = newViper()
)

func newViper() *viper.Viper {
	vp := viper.New()
	vp.AutomaticEnv()
	return vp
}

// LoadFile merges a config file (yaml, json, toml or .env) underneath the environment.
// Environment variables keep precedence over file values.
func LoadFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func lookup(key string) string {
	mu.RLock()
	defer mu.RUnlock()
	return strings.TrimSpace(v.GetString(key))
}

func String(key, fallback string) string {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	return val
}

func RequiredString(key string) (string, error) {
	val := lookup(key)
	if val == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return val, nil
}

func Port(key, fallback string) (string, error) {
	val := String(key, fallback)
	p, err := strconv.Atoi(val)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, val)
	}
	return val, nil
}

// Int returns the integer value for key, or fallback when unset or malformed.
func Int(key string, fallback int) int {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func Float(key string, fallback float64) float64 {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func Bool(key string, fallback bool) bool {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

// Duration accepts Go duration strings ("90s", "5h"). Bare integers are read as seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// List splits a comma separated value, dropping empty entries.
func List(key string) []string {
	var out []string
	for _, part := range strings.Split(lookup(key), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
