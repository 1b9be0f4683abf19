package bundle

import (
	"encoding/binary"
	"hash/fnv"
	"strings"
)

const (
	murmurMul   = 0xc6a4a7935bd1e995
	murmurShift = 47
	pathSeed    = 0x1337b33f
)

// MurmurHash64A is the 64-bit MurmurHash2 used by current indexes.
func MurmurHash64A(data []byte, seed uint64) uint64 {
	h := seed ^ uint64(len(data))*murmurMul

	for len(data) >= 8 {
		k := binary.LittleEndian.Uint64(data)
		k *= murmurMul
		k ^= k >> murmurShift
		k *= murmurMul

		h ^= k
		h *= murmurMul
		data = data[8:]
	}

	if len(data) > 0 {
		for i, b := range data {
			h ^= uint64(b) << (8 * i)
		}
		h *= murmurMul
	}

	h ^= h >> murmurShift
	h *= murmurMul
	h ^= h >> murmurShift
	return h
}

// MurmurHashPath is the path hash of current indexes.
func MurmurHashPath(path string) uint64 {
	return MurmurHash64A([]byte(strings.ToLower(path)), pathSeed)
}

// FNVHashPath is the FNV-1a hash of the lower-cased path plus "++", used by
// older indexes.
func FNVHashPath(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(path) + "++"))
	return h.Sum64()
}
