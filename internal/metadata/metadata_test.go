package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b4ae-io/b4ae-core/internal/config"
)

func TestPadUnpadRoundTripSmall(t *testing.T) {
	data := []byte("hello, bob")
	padded, err := Pad(data, 64)
	require.NoError(t, err)
	require.Equal(t, 0, (len(padded)-1)%64)

	got, err := Unpad(padded)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPadUnpadRoundTripOversizeForcesLengthSuffix(t *testing.T) {
	data := make([]byte, 10)
	padded, err := Pad(data, 1000) // pad-needed (990) exceeds the PKCS#7 byte range
	require.NoError(t, err)
	require.Equal(t, modeLengthSuffix, padded[0])
	got, err := Unpad(padded)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestUnpadRejectsTamperedPadByte(t *testing.T) {
	data := []byte("data")
	padded, err := Pad(data, 16)
	require.NoError(t, err)
	padded[len(padded)-1] ^= 0xFF

	_, err = Unpad(padded)
	require.Error(t, err)
}

func TestMACRoundTripAndTamperDetection(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	data := []byte("plaintext")
	padded, err := Pad(data, 32)
	require.NoError(t, err)
	tagged := MAC(key, padded)

	got, err := VerifyMAC(key, tagged)
	require.NoError(t, err)
	require.Equal(t, padded, got)

	tagged[0] ^= 0xFF
	_, err = VerifyMAC(key, tagged)
	require.Error(t, err)
}

func TestProtectorRoundTripWithMAC(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProtectionLevel = config.ProtectionStandard
	cfg.PaddingBlockSize = 64
	var key [32]byte
	copy(key[:], []byte("a-metadata-key-of-32-bytes-long!"))

	p := NewProtector(cfg, &key)
	plaintext := []byte("Hello, Bob!")

	wire, err := p.Protect(plaintext)
	require.NoError(t, err)

	got, err := p.Unprotect(wire)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)

	wire[0] ^= 0xFF
	_, err = p.Unprotect(wire)
	require.Error(t, err)
}

func TestProtectorNoneLevelPassesThrough(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProtectionLevel = config.ProtectionNone
	p := NewProtector(cfg, nil)

	plaintext := []byte("unchanged")
	wire, err := p.Protect(plaintext)
	require.NoError(t, err)
	require.Equal(t, plaintext, wire)
}

func TestDummyMessageMarkerRoundTrip(t *testing.T) {
	dummy, err := GenerateDummy(32)
	require.NoError(t, err)
	require.True(t, IsDummy(dummy))

	real := []byte("real content")
	require.False(t, IsDummy(real))
}

func TestDelayRespectsDeterministicBoundWhenMinEqualsMax(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TimingStrategy = config.TimingUniform
	cfg.MinDelayMS = 50
	cfg.MaxDelayMS = 50

	d := Delay(cfg)
	require.Equal(t, int64(50), d.Milliseconds())
}

func TestDelayNoneStrategyIsZero(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TimingStrategy = config.TimingNone
	require.Equal(t, int64(0), Delay(cfg).Milliseconds())
}
