package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsHandler(t *testing.T, policy CORSPolicy) (http.Handler, *bool) {
	t.Helper()
	var reached bool
	mw, err := CORSMiddleware(policy)
	require.NoError(t, err)
	return Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}), mw), &reached
}

func TestCORSMiddleware(t *testing.T) {
	policy := CORSPolicy{
		Origins: []string{"https://app.example.com", "http://localhost:3000"},
		Methods: []string{"get", "post", "GET"},
		Headers: []string{"content-type", "x-request-id"},
	}
	tests := map[string]struct {
		method      string
		origin      string
		preflight   bool
		allowOrigin string
		reached     bool
	}{
		"Same origin": {
			method:  http.MethodGet,
			reached: true,
		},
		"Allowed origin": {
			method:      http.MethodGet,
			origin:      "http://localhost:3000",
			allowOrigin: "http://localhost:3000",
			reached:     true,
		},
		"Untrusted origin": {
			method:  http.MethodGet,
			origin:  "https://evil.example.com",
			reached: true,
		},
		"Null origin": {
			method:  http.MethodGet,
			origin:  CORSNullOrigin,
			reached: true,
		},
		"Preflight": {
			method:      http.MethodOptions,
			origin:      "https://app.example.com",
			preflight:   true,
			allowOrigin: "https://app.example.com",
		},
		"Plain options request": {
			method:      http.MethodOptions,
			origin:      "https://app.example.com",
			allowOrigin: "https://app.example.com",
			reached:     true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h, reached := corsHandler(t, policy)
			r := httptest.NewRequest(tc.method, "/", nil)
			if len(tc.origin) > 0 {
				r.Header.Set(HeaderCORSOrigin, tc.origin)
			}
			if tc.preflight {
				r.Header.Set(HeaderCORSRequestMethod, http.MethodPost)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tc.reached, *reached)
			assert.Equal(t, tc.allowOrigin, w.Header().Get(HeaderCORSAllowOrigin))
			if tc.preflight {
				assert.Equal(t, http.StatusNoContent, w.Code)
				assert.Equal(t, "GET,POST", w.Header().Get(HeaderCORSAllowMethods))
				assert.Equal(t, "Content-Type,X-Request-Id", w.Header().Get(HeaderCORSAllowHeaders))
				assert.Equal(t, "86400", w.Header().Get(HeaderCORSMaxAge))
			} else {
				assert.Empty(t, w.Header().Get(HeaderCORSAllowMethods))
			}
		})
	}
}

func TestCORSMiddleware_AnyOrigin(t *testing.T) {
	h, _ := corsHandler(t, CORSPolicy{Origins: []string{"*"}, Methods: []string{"GET"}})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderCORSOrigin, "https://anywhere.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, CORSAnyOrigin, w.Header().Get(HeaderCORSAllowOrigin))

	h, _ = corsHandler(t, CORSPolicy{Origins: []string{"*"}, Methods: []string{"GET"}, AllowCredentials: true})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "https://anywhere.example.com", w.Header().Get(HeaderCORSAllowOrigin), "Credentials require echoing the origin")
	assert.Equal(t, "true", w.Header().Get(HeaderCORSAllowCreds))
}

func TestCORSMiddleware_InvalidPolicy(t *testing.T) {
	tests := map[string]CORSPolicy{
		"No origins":       {Methods: []string{"GET"}},
		"No methods":       {Origins: []string{"*"}},
		"Bad origin":       {Origins: []string{"app.example.com"}, Methods: []string{"GET"}},
		"Negative max age": {Origins: []string{"*"}, Methods: []string{"GET"}, MaxAge: -1},
	}
	for name, policy := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := CORSMiddleware(policy)
			assert.ErrorIs(t, err, ErrCORSPolicy)
		})
	}
}
