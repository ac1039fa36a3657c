// Package metadata implements the protection pipeline applied to
// record plaintexts before AEAD sealing: padding, timing obfuscation,
// and dummy/cover traffic generation, selected by configured
// ProtectionLevel (§4.4). It is grounded on the pack's PadToBlockSize /
// UnpadFromBlockSize length-suffix idiom (other_examples nochat.io
// pqc.go) and the teacher's per-component constant-time verification
// style (internal/security/argon2.go).
package metadata

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// Padding mode markers. PKCS#7's one-byte length field cannot encode a
// pad longer than 255 bytes, so a pad that would exceed that (which
// can happen only with a block size above 255) takes the length-suffix
// form instead; a leading mode byte makes Unpad unambiguous, since the
// same block size can produce either form depending on the data length.
const (
	modePKCS7        byte = 0x00
	modeLengthSuffix byte = 0x01
)

// Pad pads data to blockSize using PKCS#7 when the resulting pad fits
// in one byte, or a zero-padded form with a trailing 2-byte big-endian
// length otherwise.
func Pad(data []byte, blockSize int) ([]byte, error) {
	if blockSize <= 0 || blockSize > 1<<16 {
		return nil, b4aeerr.New("metadata.Pad", b4aeerr.KindInvalidInput, b4aeerr.ErrInvalidLength)
	}

	padLen := blockSize - (len(data) % blockSize)
	if padLen == 0 {
		padLen = blockSize
	}

	if padLen <= 255 {
		out := make([]byte, 0, 1+len(data)+padLen)
		out = append(out, modePKCS7)
		out = append(out, data...)
		for i := 0; i < padLen; i++ {
			out = append(out, byte(padLen))
		}
		return out, nil
	}

	// Length-suffix form: zero-pad to a multiple of blockSize that
	// leaves room for the 2-byte length, then append the length.
	total := len(data) + 2
	if rem := total % blockSize; rem != 0 {
		total += blockSize - rem
	}
	zeroPadLen := total - len(data) - 2

	out := make([]byte, 0, 1+total)
	out = append(out, modeLengthSuffix)
	out = append(out, data...)
	for i := 0; i < zeroPadLen; i++ {
		out = append(out, 0)
	}
	out = append(out, byte(len(data)>>8), byte(len(data)))
	return out, nil
}

// Unpad reverses Pad, validating every pad byte in constant time
// before returning the original data, per §4.1's constant-time
// discipline extended to padding removal.
func Unpad(padded []byte) ([]byte, error) {
	if len(padded) < 1 {
		return nil, b4aeerr.New("metadata.Unpad", b4aeerr.KindInvalidInput, b4aeerr.ErrMalformedInput)
	}
	mode := padded[0]
	body := padded[1:]

	switch mode {
	case modePKCS7:
		return unpadPKCS7(body)
	case modeLengthSuffix:
		return unpadLengthSuffix(body)
	default:
		return nil, b4aeerr.New("metadata.Unpad", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
}

func unpadPKCS7(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, b4aeerr.New("metadata.unpadPKCS7", b4aeerr.KindInvalidInput, b4aeerr.ErrMalformedInput)
	}
	padLen := int(body[len(body)-1])
	if padLen == 0 || padLen > len(body) {
		return nil, b4aeerr.New("metadata.unpadPKCS7", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}

	// Validate every pad byte equals padLen, in constant time: the
	// loop always walks the full tail regardless of where a mismatch
	// first occurs.
	mismatch := 0
	for i := len(body) - padLen; i < len(body); i++ {
		mismatch |= int(body[i]) ^ padLen
	}
	if mismatch != 0 {
		return nil, b4aeerr.New("metadata.unpadPKCS7", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	return append([]byte{}, body[:len(body)-padLen]...), nil
}

func unpadLengthSuffix(body []byte) ([]byte, error) {
	if len(body) < 2 {
		return nil, b4aeerr.New("metadata.unpadLengthSuffix", b4aeerr.KindInvalidInput, b4aeerr.ErrMalformedInput)
	}
	origLen := int(body[len(body)-2])<<8 | int(body[len(body)-1])
	if origLen > len(body)-2 {
		return nil, b4aeerr.New("metadata.unpadLengthSuffix", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	return append([]byte{}, body[:origLen]...), nil
}

// MAC appends a 32-byte SHA3-256 MAC over (metadataKey || paddedBytes)
// when a metadata key is provisioned.
func MAC(metadataKey [32]byte, padded []byte) []byte {
	tag := crypto.Sum3_256(metadataKey[:], padded)
	return append(append([]byte{}, padded...), tag[:]...)
}

// VerifyMAC checks and strips the trailing MAC in constant time.
func VerifyMAC(metadataKey [32]byte, tagged []byte) ([]byte, error) {
	if len(tagged) < 32 {
		return nil, b4aeerr.New("metadata.VerifyMAC", b4aeerr.KindInvalidInput, b4aeerr.ErrMalformedInput)
	}
	padded := tagged[:len(tagged)-32]
	gotTag := tagged[len(tagged)-32:]
	wantTag := crypto.Sum3_256(metadataKey[:], padded)
	if !crypto.ConstantTimeCompare(gotTag, wantTag[:]) {
		return nil, b4aeerr.New("metadata.VerifyMAC", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrAuthenticationFailed)
	}
	return padded, nil
}
