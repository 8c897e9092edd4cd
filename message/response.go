package message

import (
	"bytes"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
)

const (
	HeaderContentType = "Content-Type"
	ContentTypeJSON   = "application/json"
)

// Response is the outbound response shell. Handlers fill it in place.
// A Response is not safe for concurrent mutation.
type Response struct {
	status  int
	headers map[string]string
	body    bytes.Buffer
}

// NewResponse creates an empty [Response] with status 200.
func NewResponse() *Response {
	return &Response{
		status:  http.StatusOK,
		headers: map[string]string{},
	}
}

// ValidStatus reports whether code is within the range of HTTP status codes.
func ValidStatus(code int) bool {
	return code >= 100 && code <= 599
}

func (r *Response) Status() int {
	return r.status
}

// WithStatus sets the status code. Validation happens when the dispatcher finishes a request.
func (r *Response) WithStatus(code int) *Response {
	r.status = code
	return r
}

// SetHeader sets a header, normalizing the name to its canonical form.
func (r *Response) SetHeader(name, value string) *Response {
	r.headers[http.CanonicalHeaderKey(name)] = value
	return r
}

// Header returns a single header value.
func (r *Response) Header(name string) string {
	return r.headers[http.CanonicalHeaderKey(name)]
}

// Headers returns a copy of all headers.
func (r *Response) Headers() map[string]string {
	return maps.Clone(r.headers)
}

// Write appends to the body, which makes a [Response] an [io.Writer].
func (r *Response) Write(data []byte) (int, error) {
	return r.body.Write(data)
}

// WriteString appends a string to the body.
func (r *Response) WriteString(s string) *Response {
	r.body.WriteString(s)
	return r
}

// JSON replaces the body with the JSON encoding of val and sets the content type.
func (r *Response) JSON(val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	r.body.Reset()
	r.body.Write(data)
	r.SetHeader(HeaderContentType, ContentTypeJSON)
	return nil
}

// Body returns a copy of the body.
func (r *Response) Body() []byte {
	return slices.Clone(r.body.Bytes())
}

// Reset clears status, headers, and body to their initial state.
func (r *Response) Reset() {
	r.status = http.StatusOK
	r.headers = map[string]string{}
	r.body.Reset()
}
