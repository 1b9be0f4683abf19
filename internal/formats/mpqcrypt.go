package formats

import "encoding/binary"

// MPQ name hashing and table encryption.

const (
	mpqHashNameA = 1
	mpqHashNameB = 2
	mpqHashKey   = 3
)

var mpqCryptTable = func() (t [0x500]uint32) {
	seed := uint32(0x00100001)
	for i := 0; i < 0x100; i++ {
		for j := i; j < 0x500; j += 0x100 {
			seed = (seed*125 + 3) % 0x2aaaab
			hi := (seed & 0xffff) << 16
			seed = (seed*125 + 3) % 0x2aaaab
			t[j] = hi | seed&0xffff
		}
	}
	return t
}()

// mpqHash hashes a name the way the hash and block tables expect: upper
// case with backslash separators.
func mpqHash(s string, kind uint32) uint32 {
	seed1 := uint32(0x7fed7fed)
	seed2 := uint32(0xeeeeeeee)
	for i := 0; i < len(s); i++ {
		ch := uint32(s[i])
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		if ch == '/' {
			ch = '\\'
		}
		seed1 = mpqCryptTable[kind<<8+ch] ^ (seed1 + seed2)
		seed2 = ch + seed1 + seed2 + seed2<<5 + 3
	}
	return seed1
}

// mpqDecrypt decrypts whole little-endian words of p in place. Trailing
// bytes that do not fill a word are stored in the clear.
func mpqDecrypt(p []byte, key uint32) {
	seed := uint32(0xeeeeeeee)
	for i := 0; i+4 <= len(p); i += 4 {
		seed += mpqCryptTable[0x400+key&0xff]
		plain := binary.LittleEndian.Uint32(p[i:]) ^ (key + seed)
		key = (^key<<0x15 + 0x11111111) | key>>0x0b
		seed = plain + seed + seed<<5 + 3
		binary.LittleEndian.PutUint32(p[i:], plain)
	}
}

// mpqFileKey derives the key of an encrypted file from its base name.
func mpqFileKey(name string, blockOffset, size uint32, fixKey bool) uint32 {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '\\' || name[i] == '/' {
			name = name[i+1:]
			break
		}
	}
	key := mpqHash(name, mpqHashKey)
	if fixKey {
		key = (key + blockOffset) ^ size
	}
	return key
}
