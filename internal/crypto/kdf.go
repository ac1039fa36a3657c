package crypto

import (
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// HashAlgorithm selects the hash function HKDF is instantiated over.
// v1 uses SHA3-256 for the transcript hash and HKDF; v2 moves to
// SHA-512 throughout per the specification's transcript-hash rule.
type HashAlgorithm int

const (
	HashSHA3_256 HashAlgorithm = iota
	HashSHA512
)

func newHash(alg HashAlgorithm) func() hash.Hash {
	switch alg {
	case HashSHA3_256:
		return sha3.New256
	case HashSHA512:
		return sha512.New
	default:
		panic("crypto: unknown hash algorithm")
	}
}

// Info strings are distinct per derivation purpose. Reusing one across
// purposes is a spec violation -- §4.1 contract.
const (
	InfoSessionKey   = "B4AE-session-key"
	InfoRootChainKey = "B4AE-root-chain"
	InfoMetadataKey  = "B4AE-metadata"
	InfoAuthKey      = "B4AE-auth"
	InfoSessionID    = "B4AE-session-id"

	InfoSendChainInitiator = "i\xe2\x86\x92r" // "i→r"
	InfoRecvChainInitiator = "r\xe2\x86\x92i" // "r→i"

	InfoMsgKeyPrefix   = "msg-k"
	InfoChainKeyPrefix = "chain-k"
	InfoRotationPrefix = "rotation"

	InfoV2SessionID  = "B4AE-v2-session-id"
	InfoV2SessionKey = "B4AE-v2-session-key"
	InfoV2ModeBind   = "B4AE-v2-mode-binding"

	InfoV2RootChainKey = "B4AE-v2-root-chain"
	InfoV2MetadataKey  = "B4AE-v2-metadata"
	InfoV2AuthKey      = "B4AE-v2-auth"

	InfoV2SendChainInitiator = "v2-i\xe2\x86\x92r" // "v2-i→r"
	InfoV2RecvChainInitiator = "v2-r\xe2\x86\x92i" // "v2-r→i"
)

// HKDFExtract performs the HKDF-Extract step: a pseudorandom key of
// the hash's output length is produced from salt and ikm. A nil salt
// is treated as a zero-filled block of the hash's output length, per
// RFC 5869.
func HKDFExtract(alg HashAlgorithm, salt, ikm []byte) []byte {
	hf := newHash(alg)
	return hkdf.Extract(hf, ikm, salt)
}

// HKDFExpand derives outLen bytes from a pseudorandom key prk and an
// info string, per RFC 5869 HKDF-Expand.
func HKDFExpand(alg HashAlgorithm, prk []byte, info string, outLen int) ([]byte, error) {
	hf := newHash(alg)
	r := hkdf.Expand(hf, prk, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("crypto: hkdf expand: %w", err)
	}
	return out, nil
}

// DeriveKey is the one-shot extract-then-expand convenience used
// throughout the handshake and session layers: DeriveKey(secret, salt,
// info, n) = HKDF-Expand(HKDF-Extract(salt, secret), info, n).
func DeriveKey(alg HashAlgorithm, secret, salt []byte, info string, outLen int) ([]byte, error) {
	prk := HKDFExtract(alg, salt, secret)
	defer Zero(prk)
	return HKDFExpand(alg, prk, info, outLen)
}

// DeriveKey32 is DeriveKey specialized to the common 32-byte output.
func DeriveKey32(alg HashAlgorithm, secret, salt []byte, info string) ([32]byte, error) {
	var out [32]byte
	b, err := DeriveKey(alg, secret, salt, info, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	Zero(b)
	return out, nil
}

// TranscriptHash computes the running hash over an append-only
// transcript of canonical handshake message bytes using the given
// hash algorithm. v1 domain-prefixes with a fixed string; v2
// domain-prefixes with the 32-byte protocol ID instead (§3, §4.6).
func TranscriptHash(alg HashAlgorithm, domainPrefix []byte, messages [][]byte) []byte {
	h := newHash(alg)()
	h.Write(domainPrefix)
	for _, m := range messages {
		h.Write(m)
	}
	return h.Sum(nil)
}

// Sum3_256 computes SHA3-256 over data. Used for the v2 protocol ID
// and mode-binding hashes, and for the metadata padding MAC.
func Sum3_256(data ...[]byte) [32]byte {
	h := sha3.New256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
