package cache

// ScopedKeyer prefixes every key built by an inner Keyer. Settings use it
// for cache_namespace, so projects sharing a redis or mongo backend never
// read each other's entries.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer wraps inner, or the default layout when inner is nil.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// HTTPKey returns the prefixed key for a raw HTTP response.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

// InfoKey returns the prefixed key for the version list of gem on sourceID.
func (k *ScopedKeyer) InfoKey(sourceID, gem string) string {
	return k.prefix + k.inner.InfoKey(sourceID, gem)
}
