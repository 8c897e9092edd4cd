package stream

import (
	"errors"
	"fmt"
)

var (
	ErrMissingContext      = errors.New("missing context value")
	ErrUnexpectedTypeValue = errors.New("unexpected context value type")
)

// ContextValue extracts a typed value from the event's context.
// An error is returned if the key is absent, nil, or holds a different type.
func ContextValue[T any](evt Event, key string) (T, error) {
	var mt T
	raw, ok := evt.Context[key]
	if !ok || raw == nil {
		return mt, fmt.Errorf("%w: '%s' in event '%s'", ErrMissingContext, key, evt.Name)
	}
	val, ok := raw.(T)
	if !ok {
		return mt, fmt.Errorf("%w: '%s' expected %T, but got %T", ErrUnexpectedTypeValue, key, mt, raw)
	}
	return val, nil
}

// ContextValueOr is like [ContextValue], but returns defaultVal instead of an error.
func ContextValueOr[T any](evt Event, key string, defaultVal T) T {
	val, err := ContextValue[T](evt, key)
	if err != nil {
		return defaultVal
	}
	return val
}
