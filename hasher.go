package lockfree

import (
	"crypto/rand"
	"encoding/binary"
	"math/bits"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// Hasher computes the 64-bit hash HashMap uses to route a key through the
// trie. Expressing hashability as an explicit argument (rather than a
// `Hash() uint64` method constraint on K) keeps the key type itself
// unconstrained, matching the original Rust `K: Eq + Hash` bound which is
// satisfied by a library-supplied hasher, not by the key type implementing
// hashing itself.
type Hasher[K any] interface {
	Hash(key K) uint64
}

// processSeed is generated once per process and XORed into every built-in
// hasher's digest, so the trie slot a given key lands in differs between
// runs. Because the seed is applied after hashing, it does not change which
// keys share a slot: two keys whose unseeded digests agree in some bits
// still agree in those bits.
var processSeed = newProcessSeed()

func newProcessSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return binary.LittleEndian.Uint64(b[:])
	}
	// crypto/rand should never fail on a supported platform; fall back to a
	// time-derived seed rather than panicking at package init.
	return uint64(time.Now().UnixNano())
}

// HashFunc adapts any function that renders a key to bytes into a Hasher,
// xxhash-summing the bytes with the process seed folded in.
func HashFunc[K any](toBytes func(K) []byte) Hasher[K] {
	return hashFuncHasher[K]{toBytes: toBytes}
}

type hashFuncHasher[K any] struct {
	toBytes func(K) []byte
}

func (h hashFuncHasher[K]) Hash(key K) uint64 {
	return xxhash.Sum64(h.toBytes(key)) ^ processSeed
}

// StringHasher hashes string keys with xxhash, the dependency used for the
// same purpose in other_examples/ecache2's Redis-backed cache layer.
func StringHasher() Hasher[string] {
	return stringHasher{}
}

type stringHasher struct{}

func (stringHasher) Hash(key string) uint64 {
	return xxhash.Sum64String(key) ^ processSeed
}

// BytesHasher hashes []byte keys directly.
func BytesHasher() Hasher[[]byte] {
	return bytesHasher{}
}

type bytesHasher struct{}

func (bytesHasher) Hash(key []byte) uint64 {
	return xxhash.Sum64(key) ^ processSeed
}

// IntegerHasher hashes any built-in integer key (constraints.Integer, as
// used by catrate's generic ring buffer for its own index arithmetic) by
// folding it through xxhash's fixed-width digest rather than relying on the
// identity function, so that sequential keys (a common case) don't cluster
// in the same depth-0 (low-6-bit) trie bucket.
func IntegerHasher[K constraints.Integer]() Hasher[K] {
	return integerHasher[K]{}
}

type integerHasher[K constraints.Integer] struct{}

func (integerHasher[K]) Hash(key K) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(key))
	h := xxhash.Sum64(b[:]) ^ processSeed
	// bits.RotateLeft64 is a cheap extra diffusion step so that adjacent
	// integer keys, which already differ in xxhash's output, don't land in
	// the same ARITY-wide bucket after the seed XOR.
	return bits.RotateLeft64(h, 17)
}
