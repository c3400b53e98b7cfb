package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// envReader reads typed settings from the environment. Blank values count as
// unset. Malformed values keep the default and are collected so New can
// reject the whole configuration instead of silently running on defaults.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (r *envReader) invalid(key, value, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: want %s", key, value, want))
}

func (r *envReader) str(key, def string) string {
	if value, ok := r.lookup(key); ok {
		return value
	}
	return def
}

// keyword reads a lower-cased value that must be one of allowed.
func (r *envReader) keyword(key, def string, allowed ...string) string {
	value, ok := r.lookup(key)
	if !ok {
		return def
	}
	value = strings.ToLower(value)
	if len(allowed) > 0 && !slices.Contains(allowed, value) {
		r.invalid(key, value, "one of "+strings.Join(allowed, ", "))
		return def
	}
	return value
}

func (r *envReader) integer(key string, def int) int {
	value, ok := r.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		r.invalid(key, value, "an integer")
		return def
	}
	return v
}

func (r *envReader) ratio(key string, def float64) float64 {
	value, ok := r.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 || v > 1 {
		r.invalid(key, value, "a number between 0 and 1")
		return def
	}
	return v
}

func (r *envReader) flag(key string, def bool) bool {
	value, ok := r.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		r.invalid(key, value, "a boolean")
		return def
	}
	return v
}

// duration accepts Go durations ("90s", "5m") and bare whole seconds ("30").
func (r *envReader) duration(key string, def time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok {
		return def
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid(key, value, "a duration such as 30s or a number of seconds")
		return def
	}
	return d
}

// list splits a comma separated value and drops empty items.
func (r *envReader) list(key string, def []string) []string {
	value, ok := r.lookup(key)
	if !ok {
		return def
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	if len(items) == 0 {
		return def
	}
	return items
}

// route reads an HTTP path and makes it absolute.
func (r *envReader) route(key, def string) string {
	value := r.str(key, def)
	if !strings.HasPrefix(value, "/") {
		value = "/" + value
	}
	return value
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
