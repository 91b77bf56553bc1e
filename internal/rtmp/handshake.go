package rtmp

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
)

// ErrBadDigest describes a C1 block whose digest validates under
// neither scheme. Handshake does not return it: such a C1 is answered
// with the simple handshake.
var ErrBadDigest = errors.New("rtmp: handshake digest mismatch")

const (
	handshakeVersion = 0x03
	handshakeSize    = 1536
	digestSize       = 32
)

// fpKeyText and fmsKeyText are the well-known "Genuine Adobe Flash
// Player/Media Server 001" constants used to key the digest
// handshake's HMAC-SHA256 steps, published widely across RTMP server
// implementations.
var (
	fpKeyText  = []byte("Genuine Adobe Flash Player 001")
	fmsKeyText = []byte("Genuine Adobe Flash Media Server 001")

	keyTail = []byte{
		0xf0, 0xee, 0xc2, 0x4a, 0x80, 0x68, 0xbe, 0xe8, 0x2e, 0x00, 0xd0, 0xd1, 0x02, 0x9e, 0x7e, 0x57,
		0x6e, 0xec, 0x5d, 0x2d, 0x29, 0x80, 0x6f, 0xab, 0x93, 0xb8, 0xe6, 0x36, 0xcf, 0xeb, 0x31, 0xae,
	}
)

func fpKey() []byte  { return append(append([]byte{}, fpKeyText...), keyTail...) }
func fmsKey() []byte { return append(append([]byte{}, fmsKeyText...), keyTail...) }

// digestOffset computes where, in a 1536-byte C1/S1 block, the
// 32-byte digest sits under the given scheme.
func digestOffset(scheme int, block []byte) int {
	if scheme == 1 {
		sum := int(block[8]) + int(block[9]) + int(block[10]) + int(block[11])
		return sum%728 + 12
	}
	sum := int(block[772]) + int(block[773]) + int(block[774]) + int(block[775])
	return sum%728 + 776
}

// digestOf computes HMAC-SHA256(key, block-with-the-digest-slot-removed).
func digestOf(key, block []byte, offset int) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(block[:offset])
	mac.Write(block[offset+digestSize:])
	return mac.Sum(nil)
}

// Handshake performs the server side of the three-way RTMP handshake
// (C0/C1/C2 <-> S0/S1/S2) over rw, supporting both the plain "simple"
// scheme and the HMAC-SHA256 "digest" scheme used by modern
// publishers (OBS, ffmpeg). clientDigest, if the digest scheme was
// used, is returned so callers that care can log/verify it further;
// it is nil for a simple handshake.
func Handshake(rw io.ReadWriter) (clientDigest []byte, err error) {
	var c0 [1]byte
	if _, err := io.ReadFull(rw, c0[:]); err != nil {
		return nil, errors.Wrap(err, "rtmp: read C0")
	}
	if c0[0] != handshakeVersion {
		return nil, errors.Wrapf(ErrParse, "unsupported handshake version %#x", c0[0])
	}

	c1 := make([]byte, handshakeSize)
	if _, err := io.ReadFull(rw, c1); err != nil {
		return nil, errors.Wrap(err, "rtmp: read C1")
	}

	scheme, digest, ok := detectDigestScheme(c1)

	var s1, s2 []byte
	if ok {
		s1, s2, err = buildDigestResponse(c1, scheme, digest)
		clientDigest = digest
	} else {
		// Simple scheme: S1 is our own random block, S2 echoes C1 back
		// verbatim (the standard fallback every RTMP server implements
		// for clients that don't speak the digest scheme).
		s1 = make([]byte, handshakeSize)
		if _, err := rand.Read(s1[8:]); err != nil {
			return nil, errors.Wrap(err, "rtmp: generate S1")
		}
		s2 = append([]byte(nil), c1...)
	}
	if err != nil {
		return nil, err
	}

	if _, err := rw.Write([]byte{handshakeVersion}); err != nil {
		return nil, errors.Wrap(err, "rtmp: write S0")
	}
	if _, err := rw.Write(s1); err != nil {
		return nil, errors.Wrap(err, "rtmp: write S1")
	}
	if _, err := rw.Write(s2); err != nil {
		return nil, errors.Wrap(err, "rtmp: write S2")
	}

	c2 := make([]byte, handshakeSize)
	if _, err := io.ReadFull(rw, c2); err != nil {
		return nil, errors.Wrap(err, "rtmp: read C2")
	}

	return clientDigest, nil
}

// detectDigestScheme tries scheme 1 first (what recent publishers
// emit), then scheme 0, returning the client's embedded digest on a
// match.
func detectDigestScheme(c1 []byte) (scheme int, digest []byte, ok bool) {
	for _, s := range []int{1, 0} {
		offset := digestOffset(s, c1)
		if offset+digestSize > len(c1) {
			continue
		}
		want := c1[offset : offset+digestSize]
		got := digestOf(fpKey()[:30], c1, offset)
		if hmac.Equal(want, got) {
			return s, append([]byte(nil), want...), true
		}
	}
	return 0, nil, false
}

// buildDigestResponse computes S1 (with the server's own digest
// embedded at the scheme's offset) and S2 (whose trailing 32 bytes
// are a signature keyed by a hash derived from the client's digest).
func buildDigestResponse(c1 []byte, scheme int, clientDigest []byte) (s1, s2 []byte, err error) {
	s1 = make([]byte, handshakeSize)
	if _, err := rand.Read(s1[8:]); err != nil {
		return nil, nil, errors.Wrap(err, "rtmp: generate S1")
	}

	offset := digestOffset(scheme, s1)
	sig := digestOf(fmsKey()[:36], s1, offset)
	copy(s1[offset:offset+digestSize], sig)

	s2 = make([]byte, handshakeSize)
	if _, err := rand.Read(s2); err != nil {
		return nil, nil, errors.Wrap(err, "rtmp: generate S2")
	}
	tempKey := hmacSum(fmsKey(), clientDigest)
	sigPos := handshakeSize - digestSize
	mac := hmac.New(sha256.New, tempKey)
	mac.Write(s2[:sigPos])
	copy(s2[sigPos:], mac.Sum(nil))

	return s1, s2, nil
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// validateC1Digest is exposed for tests: it re-derives the digest for
// a known scheme and compares against the embedded value.
func validateC1Digest(c1 []byte, scheme int) bool {
	offset := digestOffset(scheme, c1)
	want := c1[offset : offset+digestSize]
	got := digestOf(fpKey()[:30], c1, offset)
	return bytes.Equal(want, got)
}
