package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/saylorsolutions/rest/message"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Call builds a request against a running server. Errors from building are deferred until [Call.Do].
type Call struct {
	mux     sync.RWMutex
	err     error
	method  string
	u       *url.URL
	body    []byte
	headers http.Header
	client  *http.Client
}

// NewCall creates a [Call] for the method and URL.
func NewCall(method, u string) *Call {
	parsed, err := url.Parse(u)
	if err != nil {
		return &Call{err: err}
	}
	return &Call{
		method:  method,
		u:       parsed,
		headers: http.Header{},
		client:  http.DefaultClient,
	}
}

func (c *Call) Client(client *http.Client) *Call {
	c.mux.Lock()
	defer c.mux.Unlock()
	if client == nil {
		c.err = errors.New("nil client")
		return c
	}
	c.client = client
	return c
}

func (c *Call) Header(name, value string) *Call {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.err != nil {
		return c
	}
	c.headers.Set(name, value)
	return c
}

func (c *Call) Query(param, value string) *Call {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.err != nil {
		return c
	}
	q := c.u.Query()
	q.Set(param, value)
	c.u.RawQuery = q.Encode()
	return c
}

func (c *Call) BearerAuth(token string) *Call {
	return c.Header("Authorization", "Bearer "+token)
}

func (c *Call) JSONBody(body any) *Call {
	data, err := json.Marshal(body)
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.err != nil {
		return c
	}
	if err != nil {
		c.err = err
		return c
	}
	c.headers.Set(message.HeaderContentType, message.ContentTypeJSON)
	c.body = data
	return c
}

// Do sends the request and reads the whole response body.
// A non-nil error is only returned if the request couldn't be completed, the status is not checked.
func (c *Call) Do(ctx context.Context) (int, []byte, error) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	if c.err != nil {
		return 0, nil, c.err
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.u.String(), bytes.NewReader(c.body))
	if err != nil {
		return 0, nil, err
	}
	req.Header = c.headers.Clone()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// Expect sends the request and returns an error wrapping [ErrUnexpectedStatus] if the status isn't one of the given codes.
func (c *Call) Expect(ctx context.Context, statuses ...int) ([]byte, error) {
	status, body, err := c.Do(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range statuses {
		if s == status {
			return body, nil
		}
	}
	return body, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, status, bytes.TrimSpace(body))
}

// DecodeJSON sends the request and decodes a JSON response into T when the status is one of the given codes.
func DecodeJSON[T any](ctx context.Context, c *Call, statuses ...int) (*T, error) {
	body, err := c.Expect(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	var val T
	if err := json.Unmarshal(body, &val); err != nil {
		return nil, err
	}
	return &val, nil
}
