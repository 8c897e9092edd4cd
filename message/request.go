// Package message holds the request and response values exchanged with the dispatcher.
package message

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
)

// Methods accepted by [NewRequest].
var Methods = []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

// Request is an inbound request. It cannot be changed once it's constructed.
type Request struct {
	method   string
	path     string
	query    map[string]string
	body     []byte
	metadata map[string]string
}

// RequestOption customizes a [Request] during construction.
type RequestOption func(r *Request) error

// NewRequest creates a [Request] for the given method and target.
// The target is a path with an optional query string, such as "/install?jwt=abc".
// When a query parameter is repeated, the first value is kept.
func NewRequest(method, target string, opts ...RequestOption) (*Request, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !slices.Contains(Methods, method) {
		return nil, fmt.Errorf("%w: unsupported method '%s'", ErrInvalidRequest, method)
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !strings.HasPrefix(u.Path, "/") {
		return nil, fmt.Errorf("%w: path '%s' must start with '/'", ErrInvalidRequest, u.Path)
	}
	r := &Request{
		method:   method,
		path:     u.Path,
		query:    map[string]string{},
		metadata: map[string]string{},
	}
	for key, vals := range u.Query() {
		if len(vals) > 0 {
			r.query[key] = vals[0]
		}
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	return r, nil
}

// MustRequest is like [NewRequest], but panics on error. It's intended for tests and static requests.
func MustRequest(method, target string, opts ...RequestOption) *Request {
	r, err := NewRequest(method, target, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// WithBody sets the request body. The slice is copied.
func WithBody(body []byte) RequestOption {
	return func(r *Request) error {
		r.body = slices.Clone(body)
		return nil
	}
}

// WithStringBody sets the request body from a string.
func WithStringBody(body string) RequestOption {
	return WithBody([]byte(body))
}

// WithQuery sets a query parameter, overriding any value parsed from the target.
func WithQuery(key, value string) RequestOption {
	return func(r *Request) error {
		if len(key) == 0 {
			return errors.New("empty query parameter name")
		}
		r.query[key] = value
		return nil
	}
}

// WithMetadata sets a metadata entry, such as identity or claims.
func WithMetadata(key, value string) RequestOption {
	return func(r *Request) error {
		if len(key) == 0 {
			return errors.New("empty metadata key")
		}
		r.metadata[key] = value
		return nil
	}
}

func (r *Request) Method() string {
	return r.method
}

func (r *Request) Path() string {
	return r.path
}

// Query returns a single query parameter value, and whether it was present.
func (r *Request) Query(key string) (string, bool) {
	val, ok := r.query[key]
	return val, ok
}

// QueryParams returns a copy of all query parameters.
func (r *Request) QueryParams() map[string]string {
	return maps.Clone(r.query)
}

// Body returns a copy of the request body.
func (r *Request) Body() []byte {
	return slices.Clone(r.body)
}

// Metadata returns a single metadata value, and whether it was present.
func (r *Request) Metadata(key string) (string, bool) {
	val, ok := r.metadata[key]
	return val, ok
}

// AllMetadata returns a copy of all metadata.
func (r *Request) AllMetadata() map[string]string {
	return maps.Clone(r.metadata)
}

// Target reassembles the path and query string.
func (r *Request) Target() string {
	if len(r.query) == 0 {
		return r.path
	}
	q := url.Values{}
	for key, val := range r.query {
		q.Set(key, val)
	}
	return r.path + "?" + q.Encode()
}

func (r *Request) String() string {
	return r.method + " " + r.path
}
