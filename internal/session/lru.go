package session

import (
	"container/list"

	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// MessageKeyCacheBound is the maximum number of out-of-order message
// keys retained for the receive chain, per §3's "K = cache bound,
// ~100" and §4.3's LRU requirement.
const MessageKeyCacheBound = 100

type cacheEntry struct {
	seq uint64
	key [32]byte
}

// MessageKeyCache is a bounded LRU of (sequence -> message key)
// entries, permitting out-of-order delivery within the cache bound
// while preserving forward secrecy once entries are evicted: eviction
// zeroizes the key bytes before release, so nothing yields a key for a
// sequence pushed out of the cache.
type MessageKeyCache struct {
	bound   int
	order   *list.List
	index   map[uint64]*list.Element
}

// NewMessageKeyCache constructs a cache bounded at MessageKeyCacheBound
// entries.
func NewMessageKeyCache() *MessageKeyCache {
	return &MessageKeyCache{
		bound: MessageKeyCacheBound,
		order: list.New(),
		index: make(map[uint64]*list.Element),
	}
}

// Put inserts or refreshes the cached key for seq, evicting the
// least-recently-used entry (and zeroizing its key) if the cache is
// full.
func (c *MessageKeyCache) Put(seq uint64, key [32]byte) {
	if el, ok := c.index[seq]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).key = key
		return
	}
	entry := &cacheEntry{seq: seq, key: key}
	el := c.order.PushFront(entry)
	c.index[seq] = el

	for c.order.Len() > c.bound {
		back := c.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*cacheEntry)
		crypto.Zero32(&evicted.key)
		delete(c.index, evicted.seq)
		c.order.Remove(back)
	}
}

// Take removes and returns the cached key for seq, if present. A
// message key is consumed at most once: the receive path calls Take
// rather than a non-removing lookup so a replayed ciphertext for the
// same sequence cannot reuse a cached key either.
func (c *MessageKeyCache) Take(seq uint64) ([32]byte, bool) {
	el, ok := c.index[seq]
	if !ok {
		return [32]byte{}, false
	}
	entry := el.Value.(*cacheEntry)
	key := entry.key
	crypto.Zero32(&entry.key)
	delete(c.index, seq)
	c.order.Remove(el)
	return key, true
}

// Len reports the number of cached entries.
func (c *MessageKeyCache) Len() int { return c.order.Len() }
