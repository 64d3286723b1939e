package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed() Seed {
	var s Seed
	for i := range s {
		s[i] = byte(i*17 + 1)
	}
	return s
}

// TestComputeKey_RoundTripsThroughComputeSeed covers the algebraic half of
// T10: deriving a key from (ieee, seed, shift) and recovering the seed from
// (ieee, key, shift) are exact inverses.
func TestComputeKey_RoundTripsThroughComputeSeed(t *testing.T) {
	seed := testSeed()
	ieee := [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	for shift := uint8(0); shift <= 15; shift++ {
		key := ComputeKey(ieee, seed, shift)
		recovered := ComputeSeed(ieee, key, shift)
		assert.Equal(t, seed, recovered, "shift %d", shift)
	}
}

// TestFindKeyShift_RecoversPerDeviceShift covers T10: given a key derived
// from an unknown rotation of a known seed, FindKeyShift recovers exactly
// that rotation and no other.
func TestFindKeyShift_RecoversPerDeviceShift(t *testing.T) {
	seed := testSeed()
	ieee := [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22}

	for want := uint8(0); want <= 15; want++ {
		key := ComputeKey(ieee, seed, want)
		got, ok := FindKeyShift(ieee, key, seed)
		assert.True(t, ok, "shift %d", want)
		assert.Equal(t, want, got, "shift %d", want)
	}
}

// TestFindKeyShift_NoRotationMatchesUnrelatedKey confirms a key that isn't
// any rotation of the seed for ieee is correctly reported as not found.
func TestFindKeyShift_NoRotationMatchesUnrelatedKey(t *testing.T) {
	seed := testSeed()
	ieee := [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	var unrelated [16]byte
	for i := range unrelated {
		unrelated[i] = byte(0xF0 + i)
	}

	_, ok := FindKeyShift(ieee, unrelated, seed)
	assert.False(t, ok)
}

// TestBestSeed_RecoversSharedSeedFromDeviceKeys is S6: given two devices'
// (ieee, key) pairs, each a distinct rotation of one shared seed, bestSeed
// finds a seed (itself some rotation of the original — rotation is exactly
// the ambiguity FindKeyShift absorbs per device) against which every pair
// is expressible as a rotation, and the recovered per-device shifts
// reproduce the original keys exactly.
func TestBestSeed_RecoversSharedSeedFromDeviceKeys(t *testing.T) {
	seed := testSeed()
	ieee1 := [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	ieee2 := [8]byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18}
	key1 := ComputeKey(ieee1, seed, 3)
	key2 := ComputeKey(ieee2, seed, 9)

	pairs := []ieeeKeyPair{
		{ieee: ieee1, key: key1},
		{ieee: ieee2, key: key2},
	}

	got, count := bestSeed(pairs, nil)
	assert.Equal(t, 2, count)

	shift1, ok := FindKeyShift(ieee1, key1, got)
	require.True(t, ok)
	assert.Equal(t, key1, ComputeKey(ieee1, got, shift1))

	shift2, ok := FindKeyShift(ieee2, key2, got)
	require.True(t, ok)
	assert.Equal(t, key2, ComputeKey(ieee2, got, shift2))
}

// TestBestSeed_PreferredSeedWinsTies confirms a caller-supplied preferred
// seed that matches just as many pairs as the computed best is chosen over
// it, per §4.6's tie-breaking rule.
func TestBestSeed_PreferredSeedWinsTies(t *testing.T) {
	seed := testSeed()
	ieee := [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	key := ComputeKey(ieee, seed, 5)

	pairs := []ieeeKeyPair{{ieee: ieee, key: key}}

	preferred := seed
	got, count := bestSeed(pairs, &preferred)
	assert.Equal(t, seed, got)
	assert.Equal(t, 1, count)
}
