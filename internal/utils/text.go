package utils

import (
	"fmt"
	"unicode/utf16"
)

// DecodeUTF16LE decodes UTF-16LE byte data to a string. A leading byte order
// mark is dropped.
func DecodeUTF16LE(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", fmt.Errorf("invalid UTF-16LE data: odd number of bytes")
	}

	u16 := make([]uint16, len(data)/2)
	for i := 0; i < len(u16); i++ {
		u16[i] = uint16(data[i*2]) | uint16(data[i*2+1])<<8
	}
	if len(u16) > 0 && u16[0] == 0xFEFF {
		u16 = u16[1:]
	}

	return string(utf16.Decode(u16)), nil
}

// EncodeUTF16LE encodes s as UTF-16LE without a byte order mark.
func EncodeUTF16LE(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	out := make([]byte, len(u16)*2)
	for i, c := range u16 {
		out[i*2] = byte(c)
		out[i*2+1] = byte(c >> 8)
	}
	return out
}
