package registry

import "maps"

// DBOption is the option bag for one named database connection.
type DBOption struct {
	URL     string
	Options map[string]string
}

// DBOptions resolves the per-connection database options.
// The boolean result is false if nothing is bound to [KeyDBOptions].
func DBOptions(r Registry) (map[string]DBOption, bool, error) {
	if !r.Has(KeyDBOptions) {
		return nil, false, nil
	}
	opts, err := Resolve[map[string]DBOption](r, KeyDBOptions)
	if err != nil {
		return nil, true, err
	}
	return maps.Clone(opts), true, nil
}

// CacheConnectionURL resolves the cache connection URL.
// The boolean result is false if nothing is bound to [KeyCacheConnectionURL].
func CacheConnectionURL(r Registry) (string, bool, error) {
	if !r.Has(KeyCacheConnectionURL) {
		return "", false, nil
	}
	u, err := Resolve[string](r, KeyCacheConnectionURL)
	if err != nil {
		return "", true, err
	}
	return u, true, nil
}
