package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	DefaultTrue  = []string{"1", "yes", "true", "on"}  // DefaultTrue are the values considered "true" by [Env.Bool], and can be changed.
	DefaultFalse = []string{"0", "no", "false", "off"} // DefaultFalse are the values considered "false" by [Env.Bool], and can be changed.
)

// Env reads environment variables that share a prefix.
// Keys are compared case-insensitive, so Env{Prefix: "REST_"}.Val("listen", "") reads REST_LISTEN.
type Env struct {
	Prefix string
}

func (e Env) lookup(key string) (string, bool) {
	want := strings.ToLower(e.Prefix + key)
	for _, kv := range os.Environ() {
		name, val, found := strings.Cut(kv, "=")
		if !found || strings.ToLower(name) != want {
			continue
		}
		val = strings.TrimSpace(val)
		return val, len(val) > 0
	}
	return "", false
}

// Set reports whether the variable is set to a non-blank value.
func (e Env) Set(key string) bool {
	_, ok := e.lookup(key)
	return ok
}

// Val returns the variable's value, or defaultVal if it's unset or blank.
func (e Env) Val(key string, defaultVal string) string {
	if val, ok := e.lookup(key); ok {
		return val
	}
	return defaultVal
}

// Bool interprets a variable using [DefaultTrue] and [DefaultFalse].
// The defaultVal is returned if the variable isn't set or isn't recognized.
func (e Env) Bool(key string, defaultVal bool) bool {
	val, ok := e.lookup(key)
	if !ok {
		return defaultVal
	}
	for _, t := range DefaultTrue {
		if strings.EqualFold(val, t) {
			return true
		}
	}
	for _, f := range DefaultFalse {
		if strings.EqualFold(val, f) {
			return false
		}
	}
	return defaultVal
}

// Int returns defaultVal if the variable isn't found or isn't a valid integer.
func (e Env) Int(key string, defaultVal int) int {
	val, ok := e.lookup(key)
	if !ok {
		return defaultVal
	}
	ival, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return ival
}

// Duration returns defaultVal if the variable isn't found or isn't a valid [time.Duration].
func (e Env) Duration(key string, defaultVal time.Duration) time.Duration {
	val, ok := e.lookup(key)
	if !ok {
		return defaultVal
	}
	dval, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return dval
}
