package message

import (
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// cacheKeyPrefix namespaces dispatch result entries in shared backends.
const cacheKeyPrefix = "q:"

// deriveCacheKey produces a stable hash of the message name plus a canonical
// encoding of its metadata. Keys are sorted and both keys and values are
// length-delimited with a NUL byte so that ("ab","c") and ("a","bc") cannot
// collide.
func deriveCacheKey(name string, metadata map[string]string) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails with a non-nil key.
		panic(err)
	}

	h.Write([]byte(name))
	h.Write([]byte{0})

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(metadata[k]))
		h.Write([]byte{0})
	}

	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
