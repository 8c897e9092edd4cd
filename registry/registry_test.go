package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_Get_Unbound(t *testing.T) {
	c := New()
	assert.False(t, c.Has("missing"))
	_, err := c.Get("missing")
	assert.ErrorIs(t, err, ErrUnbound)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "missing", resErr.Key)
}

func TestContainer_Provide_Singleton(t *testing.T) {
	var (
		c     = New()
		built atomic.Int32
		wg    sync.WaitGroup
	)
	c.Provide("svc", func(r Registry) (any, error) {
		built.Add(1)
		return new(int), nil
	})
	assert.True(t, c.Has("svc"))

	results := make([]any, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := c.Get("svc")
			assert.NoError(t, err)
			results[i] = val
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), built.Load(), "Factory should run once")
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestContainer_Provide_Dependencies(t *testing.T) {
	c := New()
	c.Set("name", "world")
	c.Provide("greeting", func(r Registry) (any, error) {
		name, err := Resolve[string](r, "name")
		if err != nil {
			return nil, err
		}
		return "hello " + name, nil
	})
	greeting, err := Resolve[string](c, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello world", greeting)
}

func TestContainer_Provide_Failure(t *testing.T) {
	var (
		c     = New()
		calls int
	)
	c.Provide("flaky", func(r Registry) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("not yet")
		}
		return 5, nil
	})
	_, err := c.Get("flaky")
	assert.ErrorIs(t, err, ErrFactory)

	val, err := Resolve[int](c, "flaky")
	assert.NoError(t, err, "Failures should not be cached")
	assert.Equal(t, 5, val)
}

func TestResolve_WrongType(t *testing.T) {
	c := New()
	c.Set("num", 5)
	_, err := Resolve[string](c, "num")
	assert.ErrorIs(t, err, ErrWrongType)
	var resErr *ResolutionError
	assert.ErrorAs(t, err, &resErr)
}

func TestRouteKey(t *testing.T) {
	assert.Equal(t, "route:POST /install", RouteKey("post", "/install"))
}

func TestWellKnown(t *testing.T) {
	c := New()
	_, ok, err := DBOptions(c)
	assert.False(t, ok)
	assert.NoError(t, err)
	_, ok, err = CacheConnectionURL(c)
	assert.False(t, ok)
	assert.NoError(t, err)

	c.Set(KeyDBOptions, map[string]DBOption{"default": {URL: "mysql://db"}})
	c.Set(KeyCacheConnectionURL, "memcached://cache")
	opts, ok, err := DBOptions(c)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mysql://db", opts["default"].URL)
	u, ok, err := CacheConnectionURL(c)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "memcached://cache", u)

	c.Set(KeyCacheConnectionURL, 42)
	_, ok, err = CacheConnectionURL(c)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestContainer_Keys(t *testing.T) {
	c := New()
	c.Set("b", 1)
	c.Set("a", 2)
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}
