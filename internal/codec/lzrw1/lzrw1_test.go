package lzrw1

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	rng := mrand.New(mrand.NewPCG(1, 2))
	words := [][]byte{[]byte("texture"), []byte("models/"), []byte(".pak"), []byte{0, 0, 0, 0}}

	var mixed bytes.Buffer
	for mixed.Len() < 64*1024 {
		if rng.IntN(4) == 0 {
			mixed.WriteByte(byte(rng.IntN(256)))
			continue
		}
		mixed.Write(words[rng.IntN(len(words))])
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "single byte", data: []byte{0x42}},
		{name: "two bytes", data: []byte("ab")},
		{name: "run", data: bytes.Repeat([]byte{'z'}, 5000)},
		{name: "period three", data: bytes.Repeat([]byte("abc"), 1000)},
		{name: "text", data: bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)},
		{name: "mixed", data: mixed.Bytes()},
		{name: "far repeat", data: append(append(bytes.Repeat([]byte{1}, 1), make([]byte, 5000)...), 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := Compress(tt.data)
			dec, err := Decompress(enc)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(dec))
			assert.True(t, bytes.Equal(tt.data, dec))
		})
	}
}

func TestRepeatedLetters(t *testing.T) {
	input := []byte("AAAAAAAAAAAAAAAAAAAA")

	enc := Compress(input)
	assert.Less(t, len(enc), len(input)+HeaderSize)
	assert.Equal(t, FlagCompress, binary.LittleEndian.Uint32(enc))

	dec, err := Decompress(enc)
	require.NoError(t, err)
	assert.Equal(t, input, dec)
}

func TestIncompressibleFallsBack(t *testing.T) {
	for _, n := range []int{0, 1, 17, 4096, 100000} {
		input := make([]byte, n)
		_, err := rand.Read(input)
		require.NoError(t, err)

		enc := Compress(input)
		require.Len(t, enc, n+HeaderSize)
		assert.Equal(t, FlagCopy, binary.LittleEndian.Uint32(enc))

		dec, err := Decompress(enc)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(input, dec))
	}
}

func TestControlWordLayout(t *testing.T) {
	// one literal then a sixteen byte copy at distance one
	input := bytes.Repeat([]byte{'q'}, 17)
	enc := Compress(input)

	require.Equal(t, FlagCompress, binary.LittleEndian.Uint32(enc))
	control := binary.LittleEndian.Uint16(enc[HeaderSize:])
	assert.Equal(t, uint16(0b10), control)
	assert.Equal(t, byte('q'), enc[HeaderSize+2])
	assert.Equal(t, []byte{0x0f, 0x01}, enc[HeaderSize+3:HeaderSize+5])
}

func TestLongGroupsSpanControlWords(t *testing.T) {
	input := make([]byte, 0, 4000)
	for i := 0; len(input) < 4000; i++ {
		input = append(input, byte(i%251), byte(i%7), 'x')
	}

	dec, err := Decompress(Compress(input))
	require.NoError(t, err)
	assert.Equal(t, input, dec)
}

func TestDecompressCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "no header", data: []byte{0, 0}},
		{name: "unknown flag", data: []byte{7, 0, 0, 0, 1}},
		{name: "truncated control", data: []byte{0, 0, 0, 0, 1}},
		{name: "copy before start", data: []byte{0, 0, 0, 0, 0x01, 0x00, 0x00, 0x01}},
		{name: "copy past output", data: []byte{0, 0, 0, 0, 0x02, 0x00, 'a', 0x00, 0x02}},
		{name: "truncated copy", data: []byte{0, 0, 0, 0, 0x02, 0x00, 'a', 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecompressSizeHintIsBounded(t *testing.T) {
	enc := Compress(bytes.Repeat([]byte("ab"), 100))
	dec, err := DecompressSize(enc, math.MaxInt32)
	require.NoError(t, err)
	assert.Len(t, dec, 200)
}
