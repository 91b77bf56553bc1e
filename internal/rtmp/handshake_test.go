package rtmp

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rwPair lets a test feed a pre-built inbound byte stream while
// capturing whatever the code under test writes, without needing a
// real socket.
type rwPair struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (p *rwPair) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *rwPair) Write(b []byte) (int, error) { return p.out.Write(b) }

// buildDigestC1 constructs a C1 block using scheme 1 whose embedded
// digest validates against fpKey, as a real client would produce.
func buildDigestC1(t *testing.T) []byte {
	t.Helper()
	c1 := make([]byte, handshakeSize)
	_, err := rand.Read(c1[8:])
	require.NoError(t, err)

	offset := digestOffset(1, c1)
	sig := digestOf(fpKey()[:30], c1, offset)
	copy(c1[offset:offset+digestSize], sig)
	return c1
}

func TestHandshakeDigestScheme(t *testing.T) {
	c1 := buildDigestC1(t)

	var stream bytes.Buffer
	stream.WriteByte(handshakeVersion)
	stream.Write(c1)
	stream.Write(make([]byte, handshakeSize)) // C2, content unchecked here

	pair := &rwPair{in: bytes.NewReader(stream.Bytes())}
	digest, err := Handshake(pair)
	require.NoError(t, err)
	require.NotNil(t, digest)

	offset := digestOffset(1, c1)
	assert.Equal(t, c1[offset:offset+digestSize], digest)

	// Server response: S0 (1) + S1 (1536) + S2 (1536).
	assert.Equal(t, 1+handshakeSize+handshakeSize, pair.out.Len())
	assert.Equal(t, byte(handshakeVersion), pair.out.Bytes()[0])
}

func TestHandshakeSimpleSchemeFallback(t *testing.T) {
	c1 := make([]byte, handshakeSize)
	_, err := rand.Read(c1[8:]) // no valid digest embedded anywhere

	var stream bytes.Buffer
	stream.WriteByte(handshakeVersion)
	stream.Write(c1)
	stream.Write(c1) // C2 echoes S1, irrelevant to server here

	pair := &rwPair{in: bytes.NewReader(stream.Bytes())}
	digest, err2 := Handshake(pair)
	require.NoError(t, err)
	require.NoError(t, err2)
	assert.Nil(t, digest)
	assert.Equal(t, 1+handshakeSize+handshakeSize, pair.out.Len())
}

func TestHandshakeRejectsBadVersion(t *testing.T) {
	stream := append([]byte{0x06}, make([]byte, handshakeSize*2)...)
	pair := &rwPair{in: bytes.NewReader(stream)}
	_, err := Handshake(pair)
	assert.Error(t, err)
}

func TestDigestOffsetBothSchemes(t *testing.T) {
	c1 := buildDigestC1(t)
	assert.True(t, validateC1Digest(c1, 1))

	// Scheme 0: the digest sits in the second half of the block.
	c0 := make([]byte, handshakeSize)
	_, err := rand.Read(c0[8:])
	require.NoError(t, err)
	offset := digestOffset(0, c0)
	copy(c0[offset:offset+digestSize], digestOf(fpKey()[:30], c0, offset))
	assert.True(t, validateC1Digest(c0, 0))
}
