package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStatus struct {
	Name string `json:"name"`
}

func TestCall(t *testing.T) {
	var (
		gotQuery, gotAuth, gotType string
		gotBody                    testStatus
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("jwt")
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		_ = json.NewEncoder(w).Encode(testStatus{Name: "ready"})
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	ctx := context.Background()

	t.Run("Query and auth", func(t *testing.T) {
		status, body, err := NewCall(http.MethodGet, srv.URL+"/status").
			Query("jwt", "a b").
			BearerAuth("token").
			Do(ctx)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"name":"ready"}`, string(body))
		assert.Equal(t, "a b", gotQuery)
		assert.Equal(t, "Bearer token", gotAuth)
	})
	t.Run("JSON body", func(t *testing.T) {
		val, err := DecodeJSON[testStatus](ctx, NewCall(http.MethodPost, srv.URL+"/status").JSONBody(testStatus{Name: "bob"}), http.StatusOK)
		require.NoError(t, err)
		assert.Equal(t, "ready", val.Name)
		assert.Equal(t, "bob", gotBody.Name)
		assert.Equal(t, "application/json", gotType)
	})
	t.Run("Unexpected status", func(t *testing.T) {
		_, err := NewCall(http.MethodGet, srv.URL+"/gone").Expect(ctx, http.StatusOK, http.StatusNoContent)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
		assert.ErrorContains(t, err, "410")
	})
	t.Run("Deferred build error", func(t *testing.T) {
		_, _, err := NewCall(http.MethodGet, "://bad").Query("a", "b").Do(ctx)
		assert.Error(t, err)
		_, _, err = NewCall(http.MethodPost, srv.URL).JSONBody(make(chan int)).Do(ctx)
		assert.Error(t, err)
	})
}
