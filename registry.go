package rtmpstream

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

// application holds the NetStreams published under one app name.
type application struct {
	name string

	mu      sync.RWMutex
	streams map[string]*NetStream
}

func newApplication(name string) *application {
	return &application{name: name, streams: make(map[string]*NetStream)}
}

func (a *application) get(stream string) (*NetStream, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.streams[stream]
	return s, ok
}

func (a *application) put(stream string, ns *NetStream) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.streams[stream] = ns
}

func (a *application) delete(stream string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.streams, stream)
}

// Registry maps application names to their live streams. Lookups
// match the longest registered prefix of the requested app name (so
// "live/room1" falls back to an app registered as "live" if
// "live/room1" itself was never explicitly registered), and the most
// recently resolved names are cached for O(1) repeat lookups.
type Registry struct {
	mu     sync.RWMutex
	apps   map[string]*application
	cache  *lru.Cache
}

// NewRegistry creates a Registry whose resolved-name cache holds up to
// cacheSize entries.
func NewRegistry(cacheSize int) *Registry {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &Registry{
		apps:  make(map[string]*application),
		cache: lru.New(cacheSize),
	}
}

// register creates (if absent) the application with the given name
// and returns it.
func (r *Registry) register(name string) *application {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.apps[name]; ok {
		return a
	}
	a := newApplication(name)
	r.apps[name] = a
	// A cached prefix match for name, or for a name under it, would now
	// hide this registration.
	r.cache = lru.New(r.cache.MaxEntries)
	return a
}

// resolve finds the application matching name by longest registered
// prefix. A connect command's app name is matched exactly first;
// failing that, successively shorter "/"-delimited prefixes are
// tried, so a registration for "live" also serves "live/room1".
func (r *Registry) resolve(name string) (*application, bool) {
	// Get reorders the LRU list, so it needs the write lock.
	r.mu.Lock()
	if v, ok := r.cache.Get(name); ok {
		r.mu.Unlock()
		return v.(*application), true
	}
	r.mu.Unlock()

	candidate := name
	for {
		r.mu.RLock()
		a, ok := r.apps[candidate]
		r.mu.RUnlock()
		if ok {
			r.mu.Lock()
			r.cache.Add(name, a)
			r.mu.Unlock()
			return a, true
		}

		idx := strings.LastIndexByte(candidate, '/')
		if idx < 0 {
			return nil, false
		}
		candidate = candidate[:idx]
	}
}

// applicationFor returns the application for name, registering it on
// first use. Unlike resolve, it never falls back to a shorter prefix:
// every distinct app name that ever connects gets its own
// application, and prefix matching only kicks in for names that were
// never directly registered.
func (r *Registry) applicationFor(name string) *application {
	if a, ok := r.resolve(name); ok && a.name == name {
		return a
	}
	return r.register(name)
}
