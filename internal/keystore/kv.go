package keystore

import (
	"sync"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// KVBackend is the capability interface of the specification's design
// notes: write/read/delete over an opaque id, with the per-entry
// encryption the caller configures below. Grounded on the teacher's
// map+mutex registry idiom (internal/websocket/hub.go).
type KVBackend interface {
	Write(id string, value []byte) error
	Read(id string) ([]byte, bool, error)
	Delete(id string) bool
}

// MemoryKV is the default in-memory KVBackend, with values optionally
// sealed under a StorageKey with the entry id bound as AAD so one
// entry's ciphertext cannot be relabeled as another's.
type MemoryKV struct {
	mu    sync.RWMutex
	data  map[string][]byte
	stk   *StorageKey
}

// NewMemoryKV constructs a KV store. Pass a non-nil stk to encrypt
// values at rest; pass nil to store plaintext (e.g. for non-secret
// bookkeeping).
func NewMemoryKV(stk *StorageKey) *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte), stk: stk}
}

func (kv *MemoryKV) Write(id string, value []byte) error {
	stored := value
	if kv.stk != nil {
		nonce, err := crypto.RandomBytes(crypto.AEADNonceSize)
		if err != nil {
			return b4aeerr.New("keystore.MemoryKV.Write", b4aeerr.KindCryptoError, err)
		}
		key := kv.stk.Bytes()
		ct, err := crypto.SealAESGCM(key[:], nonce, value, []byte(id))
		if err != nil {
			return b4aeerr.New("keystore.MemoryKV.Write", b4aeerr.KindCryptoError, err)
		}
		stored = append(append([]byte{}, nonce...), ct...)
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[id] = append([]byte{}, stored...)
	return nil
}

func (kv *MemoryKV) Read(id string) ([]byte, bool, error) {
	kv.mu.RLock()
	stored, ok := kv.data[id]
	kv.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if kv.stk == nil {
		return append([]byte{}, stored...), true, nil
	}
	if len(stored) < crypto.AEADNonceSize {
		return nil, false, b4aeerr.New("keystore.MemoryKV.Read", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	nonce := stored[:crypto.AEADNonceSize]
	ct := stored[crypto.AEADNonceSize:]
	key := kv.stk.Bytes()
	pt, err := crypto.OpenAESGCM(key[:], nonce, ct, []byte(id))
	if err != nil {
		return nil, false, b4aeerr.New("keystore.MemoryKV.Read", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrAuthenticationFailed)
	}
	return pt, true, nil
}

func (kv *MemoryKV) Delete(id string) bool {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	_, ok := kv.data[id]
	delete(kv.data, id)
	return ok
}

var _ KVBackend = (*MemoryKV)(nil)
