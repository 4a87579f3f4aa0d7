package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env reads typed values from the process environment. Unset or empty
// variables yield the default; malformed values are collected and reported
// together by err.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func newEnv() *env { return &env{lookup: os.LookupEnv} }

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) fail(key, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", key, v, kind))
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) lower(key, def string) string { return strings.ToLower(e.str(key, def)) }

func (e *env) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, "integer")
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, "number")
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(key, v, "boolean")
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, "duration")
		return def
	}
	return d
}

// list splits a comma separated variable, dropping blank items.
func (e *env) list(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cron returns a cron spec where "off" (any case) means disabled.
func (e *env) cron(key, def string) string {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	if strings.EqualFold(v, "off") {
		return ""
	}
	return v
}

func (e *env) err() error { return errors.Join(e.errs...) }

// basePath returns p with a leading slash and no trailing slash; blank is "/".
func basePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
