// Package httpx adapts the dispatcher to net/http.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/saylorsolutions/rest/dispatch"
	"github.com/saylorsolutions/rest/message"
	"github.com/saylorsolutions/rest/registry"
)

const (
	HeaderRequestID = "X-Request-Id"
	MetaRequestID   = "request-id"
	MetaRemoteAddr  = "remote-addr"
)

// MaxBodySize limits how much of a request body is read.
var MaxBodySize int64 = 10 << 20

// Processor is the part of [dispatch.Service] used by [Handler].
type Processor interface {
	Process(req *message.Request, resp *message.Response) (*message.Response, error)
}

var _ Processor = (*dispatch.Service)(nil)

// ErrorResponse is the JSON body written when processing fails.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// StatusFor maps a processing error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrInstall):
		// Checked first, since install failures wrap the cause.
		return http.StatusServiceUnavailable
	case errors.Is(err, message.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrUnbound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorPolicy handles an error returned from a [Processor].
// The default is [WriteJSONError].
type ErrorPolicy func(w http.ResponseWriter, r *http.Request, requestID string, err error)

// WriteJSONError writes the status from [StatusFor] with an [ErrorResponse] body.
// Server errors don't expose the error text to the client.
func WriteJSONError(w http.ResponseWriter, _ *http.Request, requestID string, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status >= 500 {
		msg = http.StatusText(status)
	}
	w.Header().Set(message.HeaderContentType, message.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg, RequestID: requestID})
}

// Handler creates a [http.Handler] that converts each request to a [message.Request] for the [Processor].
// Headers are passed along as metadata with canonical names, and a request ID is generated if the client didn't send one.
func Handler(p Processor, policy ErrorPolicy) http.Handler {
	if p == nil {
		panic("nil processor")
	}
	if policy == nil {
		policy = WriteJSONError
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			_ = r.Body.Close()
		}()
		requestID := r.Header.Get(HeaderRequestID)
		if len(requestID) == 0 {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		req, err := ToRequest(r, requestID)
		if err != nil {
			policy(w, r, requestID, err)
			return
		}
		resp, err := p.Process(req, message.NewResponse())
		if err != nil {
			policy(w, r, requestID, err)
			return
		}
		WriteResponse(w, resp)
	})
}

// ToRequest converts a [*http.Request] into a [*message.Request].
func ToRequest(r *http.Request, requestID string) (*message.Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", message.ErrInvalidRequest, err)
	}
	if int64(len(body)) > MaxBodySize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", message.ErrInvalidRequest, MaxBodySize)
	}
	opts := []message.RequestOption{
		message.WithBody(body),
		message.WithMetadata(MetaRequestID, requestID),
	}
	if len(r.RemoteAddr) > 0 {
		opts = append(opts, message.WithMetadata(MetaRemoteAddr, r.RemoteAddr))
	}
	for name := range r.Header {
		opts = append(opts, message.WithMetadata(http.CanonicalHeaderKey(name), r.Header.Get(name)))
	}
	return message.NewRequest(r.Method, r.URL.RequestURI(), opts...)
}

// WriteResponse copies a [*message.Response] to the [http.ResponseWriter].
func WriteResponse(w http.ResponseWriter, resp *message.Response) {
	for name, val := range resp.Headers() {
		w.Header().Set(name, val)
	}
	w.WriteHeader(resp.Status())
	_, _ = w.Write(resp.Body())
}
