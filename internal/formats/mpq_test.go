package formats

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mpqEncrypt is the inverse of mpqDecrypt.
func mpqEncrypt(p []byte, key uint32) {
	seed := uint32(0xeeeeeeee)
	for i := 0; i+4 <= len(p); i += 4 {
		seed += mpqCryptTable[0x400+key&0xff]
		plain := binary.LittleEndian.Uint32(p[i:])
		binary.LittleEndian.PutUint32(p[i:], plain^(key+seed))
		key = (^key<<0x15 + 0x11111111) | key>>0x0b
		seed = plain + seed + seed<<5 + 3
	}
}

// mpqReadme fills one sector with text that packs well and ends with a
// tail of noise that does not, so its second sector is kept stored.
var mpqReadme = append(bytes.Repeat([]byte("mpq sector text "), 32), mpqNoise(88)...)

func mpqNoise(n int) []byte {
	out := make([]byte, n)
	x := uint32(2463534242)
	for i := range out {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		out[i] = byte(x >> 24)
	}
	return out
}

type mpqLayout struct {
	withList  bool
	badBlock  bool
	hashCount uint32
}

// mpqFixture builds a version 1 archive with 512-byte sectors holding a
// stored (listfile), an encrypted two-sector readme.txt and a stored file
// no listfile names. Readme sectors are zlib packed unless packing does not
// shrink them, in which case they are written raw without a method byte.
func mpqFixture(t *testing.T, layout mpqLayout) []byte {
	t.Helper()
	const dataStart = 32
	var data fixture
	var blocks fixture
	pos := func() uint32 { return uint32(dataStart + data.Len()) }

	listing := []byte("readme.txt\r\n")
	blocks.u32(pos()).u32(uint32(len(listing))).u32(uint32(len(listing))).u32(mpqFileExists | mpqFileSingleUnit)
	data.Write(listing)

	readmePos := pos()
	key := mpqFileKey("readme.txt", readmePos, uint32(len(mpqReadme)), false)
	var sectors [][]byte
	var stored int
	for i := 0; i*512 < len(mpqReadme); i++ {
		chunk := mpqReadme[i*512 : min((i+1)*512, len(mpqReadme))]
		packed, err := codec.Encode(codec.Zlib, chunk)
		require.NoError(t, err)
		sector := append([]byte{0x02}, packed...)
		if len(sector) >= len(chunk) {
			sector = append([]byte(nil), chunk...)
			stored++
		}
		mpqEncrypt(sector, key+uint32(i))
		sectors = append(sectors, sector)
	}
	require.Len(t, sectors, 2)
	require.Equal(t, 1, stored, "the noise tail stays stored")
	table := make([]byte, 4*(len(sectors)+1))
	off := uint32(len(table))
	for i, s := range sectors {
		binary.LittleEndian.PutUint32(table[i*4:], off)
		off += uint32(len(s))
	}
	binary.LittleEndian.PutUint32(table[len(sectors)*4:], off)
	mpqEncrypt(table, key-1)
	data.Write(table)
	for _, s := range sectors {
		data.Write(s)
	}
	blocks.u32(readmePos).u32(off).u32(uint32(len(mpqReadme))).u32(mpqFileExists | mpqFileCompress | mpqFileEncrypted)

	blocks.u32(pos()).u32(6).u32(6).u32(mpqFileExists)
	data.str("secret")

	nameHash := func(name string) (uint32, uint32) {
		return mpqHash(name, mpqHashNameA), mpqHash(name, mpqHashNameB)
	}
	var hashes fixture
	if layout.withList {
		a, b := nameHash("(listfile)")
		hashes.u32(a).u32(b).u32(0).u32(0)
	} else {
		hashes.u32(mpqHashEmpty).u32(mpqHashEmpty).u32(mpqHashEmpty).u32(mpqHashEmpty)
	}
	a, b := nameHash("readme.txt")
	hashes.u32(a).u32(b).u32(0).u32(1)
	secretBlock := uint32(2)
	if layout.badBlock {
		secretBlock = 5
	}
	hashes.u32(0x11111111).u32(0x22222222).u32(0).u32(secretBlock)
	hashes.u32(mpqHashEmpty).u32(mpqHashEmpty).u32(mpqHashEmpty).u32(mpqHashEmpty)

	hashData := hashes.Bytes()
	blockData := blocks.Bytes()
	mpqEncrypt(hashData, mpqHash("(hash table)", mpqHashKey))
	mpqEncrypt(blockData, mpqHash("(block table)", mpqHashKey))

	hashCount := uint32(4)
	if layout.hashCount != 0 {
		hashCount = layout.hashCount
	}
	hashOff := uint32(dataStart + data.Len())
	blockOff := hashOff + uint32(len(hashData))
	total := blockOff + uint32(len(blockData))

	var out fixture
	out.str(mpqMagic).u32(mpqHeaderSizeV1).u32(total).u16(0).u16(0)
	out.u32(hashOff).u32(blockOff).u32(hashCount).u32(3)
	require.Equal(t, dataStart, out.Len())
	out.Write(data.Bytes())
	out.Write(hashData)
	out.Write(blockData)
	return out.Bytes()
}

func TestMPQ(t *testing.T) {
	pkg, err := parseMPQ(memFile("game.mpq", mpqFixture(t, mpqLayout{withList: true})))
	require.NoError(t, err)
	require.Equal(t, 3, pkg.Len())

	labels := make([]string, 0, pkg.Len())
	for _, e := range pkg.Entries() {
		labels = append(labels, e.Label)
		assert.Len(t, e.Name, 16)
	}
	assert.Equal(t, []string{"(listfile)", "readme.txt", ""}, labels)

	readme, err := pkg.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, codec.Zlib, readme.Compression)
	wantHash := uint64(mpqHash("readme.txt", mpqHashNameA))<<32 | uint64(mpqHash("readme.txt", mpqHashNameB))
	assert.Equal(t, wantHash, readme.Hash)
	assert.Equal(t, hexName(wantHash, 16), readme.Name)

	got, err := pkg.Read(1)
	require.NoError(t, err)
	assert.Equal(t, mpqReadme, got)

	got, err = pkg.ReadName("1111111122222222")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got))

	got, err = pkg.Read(0)
	require.NoError(t, err)
	assert.Equal(t, "readme.txt\r\n", string(got))
}

func TestMPQEncryptedWithoutName(t *testing.T) {
	pkg, err := parseMPQ(memFile("game.mpq", mpqFixture(t, mpqLayout{})))
	require.NoError(t, err)
	require.Equal(t, 2, pkg.Len())

	e, err := pkg.Entry(0)
	require.NoError(t, err)
	assert.Empty(t, e.Label)

	_, err = pkg.Read(0)
	assert.ErrorIs(t, err, archive.ErrUnsupportedCompression)
	assert.Equal(t, archive.KindDecompression, archive.KindOf(err))
}

func TestMPQRejects(t *testing.T) {
	_, err := parseMPQ(memFile("bad.mpq", mpqFixture(t, mpqLayout{withList: true, badBlock: true})))
	assert.ErrorIs(t, err, archive.ErrBounds)

	_, err = parseMPQ(memFile("huge.mpq", mpqFixture(t, mpqLayout{withList: true, hashCount: 1_000_000})))
	assert.ErrorIs(t, err, archive.ErrBounds)

	var v3 fixture
	v3.str(mpqMagic).u32(mpqHeaderSizeV1).u32(32).u16(3).u16(0).pad(16)
	_, err = parseMPQ(memFile("v3.mpq", v3.Bytes()))
	assert.ErrorIs(t, err, archive.ErrFileVersion)
}

func TestMPQCrypt(t *testing.T) {
	plain := []byte("0123456789abcdefXY")
	buf := append([]byte(nil), plain...)
	mpqEncrypt(buf, 0xdeadbeef)
	assert.NotEqual(t, plain[:16], buf[:16])
	assert.Equal(t, plain[16:], buf[16:], "trailing bytes stay in the clear")
	mpqDecrypt(buf, 0xdeadbeef)
	assert.Equal(t, plain, buf)

	// the reference hash of "(hash table)" with the table key
	assert.Equal(t, uint32(0xc3af3770), mpqHash("(hash table)", mpqHashKey))
	assert.Equal(t, mpqHash(`Units\Human\Footman.mdx`, mpqHashNameA), mpqHash("units/human/footman.mdx", mpqHashNameA))
}
