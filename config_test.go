package rtmpstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaultsFillsZeroValues(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, defaultListenAddr, c.ListenAddr)
	assert.Equal(t, defaultHandshakeTimeout, c.HandshakeTimeout)
	assert.Equal(t, defaultIdleTimeout, c.IdleTimeout)
	assert.Equal(t, uint32(defaultChunkSize), c.ChunkSize)
	assert.Equal(t, uint32(defaultWindowAckSize), c.WindowAckSize)
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{
		ListenAddr:       ":9999",
		HandshakeTimeout: 2 * time.Second,
	}.withDefaults()
	assert.Equal(t, ":9999", c.ListenAddr)
	assert.Equal(t, 2*time.Second, c.HandshakeTimeout)
	// Unset fields still get defaults.
	assert.Equal(t, defaultIdleTimeout, c.IdleTimeout)
}
