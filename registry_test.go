package rtmpstream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExactMatch(t *testing.T) {
	r := NewRegistry(16)
	a := r.applicationFor("live")
	got, ok := r.resolve("live")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRegistryLongestPrefixMatch(t *testing.T) {
	r := NewRegistry(16)
	a := r.applicationFor("live")

	got, ok := r.resolve("live/room1")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRegistryUnknownAppNotFound(t *testing.T) {
	r := NewRegistry(16)
	r.applicationFor("live")
	_, ok := r.resolve("vod/movie1")
	assert.False(t, ok)
}

func TestRegistryConcurrentResolveIsStable(t *testing.T) {
	r := NewRegistry(16)
	want := r.applicationFor("live")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok := r.resolve("live/sub/path")
			assert.True(t, ok)
			assert.Same(t, want, got)
		}()
	}
	wg.Wait()
}

func TestApplicationPutGetDelete(t *testing.T) {
	a := newApplication("live")
	ns := &NetStream{Name: "stream1"}
	a.put("stream1", ns)

	got, ok := a.get("stream1")
	require.True(t, ok)
	assert.Same(t, ns, got)

	a.delete("stream1")
	_, ok = a.get("stream1")
	assert.False(t, ok)
}
