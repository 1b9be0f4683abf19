// Package lzrw1 implements the LZRW1 compressor: a single-slot hash table
// over three byte prefixes, literal and copy items grouped sixteen to a
// control word, and a four byte header telling compressed streams apart from
// stored ones.
package lzrw1

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the length of the mode flag preceding every stream.
	HeaderSize = 4

	// FlagCompress marks a stream of control words and items.
	FlagCompress uint32 = 0
	// FlagCopy marks a stream whose payload is the input, unchanged.
	FlagCopy uint32 = 1

	hashSize    = 4096
	maxDistance = 4095
	minMatch    = 3
	maxMatch    = 16
	groupItems  = 16
)

// ErrCorrupt is returned for streams that cannot have come from Compress.
var ErrCorrupt = errors.New("lzrw1: corrupt stream")

func hash(p []byte) int {
	v := (uint32(p[0])<<4^uint32(p[1]))<<4 ^ uint32(p[2])
	return int((40543 * v >> 4) & (hashSize - 1))
}

// Compress encodes src. When the encoded form would not be smaller than src
// the result is a copy-mode stream of len(src)+HeaderSize bytes.
func Compress(src []byte) []byte {
	if out, ok := compress(src); ok {
		return out
	}
	return stored(src)
}

func stored(src []byte) []byte {
	out := make([]byte, HeaderSize+len(src))
	binary.LittleEndian.PutUint32(out, FlagCopy)
	copy(out[HeaderSize:], src)
	return out
}

func compress(src []byte) ([]byte, bool) {
	var table [hashSize]int
	for i := range table {
		table[i] = -1
	}

	limit := HeaderSize + len(src)
	out := make([]byte, HeaderSize, limit)
	binary.LittleEndian.PutUint32(out, FlagCompress)

	var (
		control    uint16
		items      int
		controlPos = -1
	)

	flush := func() {
		// the newest bit sits at the top; shift the group down so that the
		// first item lands on bit zero
		control >>= uint(groupItems - items)
		binary.LittleEndian.PutUint16(out[controlPos:], control)
		control, items, controlPos = 0, 0, -1
	}

	p := 0
	for p < len(src) {
		if controlPos < 0 {
			controlPos = len(out)
			out = append(out, 0, 0)
		}

		length := 0
		distance := 0
		if len(src)-p >= minMatch {
			h := hash(src[p:])
			cand := table[h]
			table[h] = p

			distance = p - cand
			if cand >= 0 && distance > 0 && distance <= maxDistance {
				n := len(src) - p
				if n > maxMatch {
					n = maxMatch
				}
				for length < n && src[cand+length] == src[p+length] {
					length++
				}
			}
		}

		control >>= 1
		if length >= minMatch {
			control |= 1 << 15
			out = append(out,
				byte(distance>>4)&0xf0|byte(length-1),
				byte(distance),
			)
			p += length
		} else {
			out = append(out, src[p])
			p++
		}
		items++

		if items == groupItems {
			flush()
		}
		if len(out) >= limit {
			return nil, false
		}
	}

	if items > 0 {
		flush()
	}

	if len(out)-HeaderSize >= len(src) {
		return nil, false
	}
	return out, true
}

// Decompress decodes a stream produced by Compress. The output grows as
// needed since the decoded size is not recorded in the stream.
func Decompress(src []byte) ([]byte, error) {
	return DecompressSize(src, 0)
}

// DecompressSize decodes src, using sizeHint to preallocate the output.
func DecompressSize(src []byte, sizeHint int) ([]byte, error) {
	if len(src) < HeaderSize {
		return nil, fmt.Errorf("%w: %d byte stream has no header", ErrCorrupt, len(src))
	}

	switch flag := binary.LittleEndian.Uint32(src); flag {
	case FlagCopy:
		return append([]byte(nil), src[HeaderSize:]...), nil
	case FlagCompress:
	default:
		return nil, fmt.Errorf("%w: unknown mode flag %#x", ErrCorrupt, flag)
	}

	// never trust a hint beyond what the stream could expand to
	if maxOut := (len(src) - HeaderSize) * maxMatch / 2; sizeHint > maxOut || sizeHint < 0 {
		sizeHint = maxOut
	}
	out := make([]byte, 0, sizeHint)

	in := HeaderSize
	for in < len(src) {
		if len(src)-in < 2 {
			return nil, fmt.Errorf("%w: truncated control word at %d", ErrCorrupt, in)
		}
		control := binary.LittleEndian.Uint16(src[in:])
		in += 2

		for bit := 0; bit < groupItems && in < len(src); bit++ {
			if control&(1<<bit) == 0 {
				out = append(out, src[in])
				in++
				continue
			}

			if len(src)-in < 2 {
				return nil, fmt.Errorf("%w: truncated copy item at %d", ErrCorrupt, in)
			}
			distance := int(src[in]&0xf0)<<4 | int(src[in+1])
			length := int(src[in]&0x0f) + 1
			in += 2

			if distance == 0 || distance > len(out) {
				return nil, fmt.Errorf("%w: copy distance %d with %d bytes decoded", ErrCorrupt, distance, len(out))
			}

			// byte at a time: the source may overlap what this copy writes
			from := len(out) - distance
			for i := 0; i < length; i++ {
				out = append(out, out[from+i])
			}
		}
	}

	return out, nil
}
