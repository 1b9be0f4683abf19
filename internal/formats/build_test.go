package formats

import (
	"testing"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGRP(t *testing.T) {
	var b fixture
	b.str("KenSilverman").u32(2)
	b.fixed("TILES000.ART", 12).u32(4)
	b.fixed("GAME.CON", 12).u32(3)
	b.str("tilecon")

	pkg, err := parseGRP(memFile("duke3d.grp", b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"TILES000.ART", "GAME.CON"}, names(pkg))
	assert.Equal(t, "tile", readString(t, pkg, "tiles000.art"))
	assert.Equal(t, "con", readString(t, pkg, "game.con"))

	// sizes run past the end
	var bad fixture
	bad.str("KenSilverman").u32(1).fixed("A", 12).u32(50)
	_, err = parseGRP(memFile("bad.grp", bad.Bytes()))
	assert.ErrorIs(t, err, archive.ErrBounds)
}

func TestHOG(t *testing.T) {
	var b fixture
	b.str("DHF")
	b.fixed("level01.rdl", 13).u32(5).str("level")
	b.fixed("descent.pig", 13).u32(3).str("pig")

	pkg, err := parseHOG(memFile("descent.hog", b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"level01.rdl", "descent.pig"}, names(pkg))
	assert.Equal(t, "pig", readString(t, pkg, "descent.pig"))

	var short fixture
	short.str("DHF").fixed("x", 13).u32(100).str("abc")
	_, err = parseHOG(memFile("short.hog", short.Bytes()))
	assert.ErrorIs(t, err, archive.ErrBounds)

	var header fixture
	header.str("DHF").fixed("x", 10)
	_, err = parseHOG(memFile("header.hog", header.Bytes()))
	assert.ErrorIs(t, err, archive.ErrBounds)
}

func TestGOB(t *testing.T) {
	var b fixture
	b.str("GOB\x0a").u32(8 + 6)
	b.str("sector")
	b.u32(1)
	b.u32(8).u32(6).fixed("SECBASE.LEV", 13)

	pkg, err := parseGOB(memFile("dark.gob", b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "sector", readString(t, pkg, "SECBASE.LEV"))

	var bad fixture
	bad.str("GOB\x0a").u32(8).u32(1_000_000)
	_, err = parseGOB(memFile("bad.gob", bad.Bytes()))
	assert.ErrorIs(t, err, archive.ErrBounds)
}

func TestBIG(t *testing.T) {
	var b fixture
	body := "w3dmodel"
	dirEnd := 16 + 8 + len("art\\unit.w3d") + 1
	b.str("BIGF").u32(uint32(dirEnd + len(body))).u32be(1).u32be(uint32(dirEnd))
	b.u32be(uint32(dirEnd)).u32be(uint32(len(body))).cstr("art\\unit.w3d")
	b.str(body)

	pkg, err := parseBIG(memFile("w3d.big", b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"art/unit.w3d"}, names(pkg))
	assert.Equal(t, body, readString(t, pkg, "art/unit.w3d"))

	var lying fixture
	lying.str("BIG4").u32(1 << 30).u32be(0).u32be(16)
	_, err = parseBIG(memFile("lying.big", lying.Bytes()))
	assert.ErrorIs(t, err, archive.ErrBounds)

	var many fixture
	many.str("BIGF").u32(16).u32be(1_000_000).u32be(16)
	_, err = parseBIG(memFile("many.big", many.Bytes()))
	assert.ErrorIs(t, err, archive.ErrBounds)
}

func TestLOD(t *testing.T) {
	packed, err := codec.Encode(codec.Zlib, []byte("compressed sprite compressed sprite"))
	require.NoError(t, err)

	var b fixture
	b.str("LOD\x00").u32(200).u32(2)
	b.padTo(lodTableOffset)
	dataStart := lodTableOffset + 2*lodRecordSize
	b.fixed("plain.txt", 16).u32(uint32(dataStart)).u32(5).u32(2).u32(0)
	b.fixed("sprite.def", 16).u32(uint32(dataStart + 5)).u32(35).u32(2).u32(uint32(len(packed)))
	b.str("plain")
	b.Write(packed)

	pkg, err := parseLOD(memFile("H3sprite.lod", b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "plain", readString(t, pkg, "plain.txt"))
	assert.Equal(t, "compressed sprite compressed sprite", readString(t, pkg, "sprite.def"))

	e, err := pkg.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, codec.Zlib, e.Compression)
}

func TestFalloutDAT(t *testing.T) {
	packed, err := codec.Encode(codec.Zlib, []byte("proto proto proto proto"))
	require.NoError(t, err)

	var b fixture
	b.str("stored")
	b.Write(packed)

	var tree fixture
	tree.u32(2)
	tree.u32(uint32(len("art\\stored.frm"))).str("art\\stored.frm").u8(0).u32(6).u32(6).u32(0)
	tree.u32(uint32(len("proto\\items.pro"))).str("proto\\items.pro").u8(1).u32(23).u32(uint32(len(packed))).u32(6)

	b.Write(tree.Bytes())
	total := b.Len() + 8
	b.u32(uint32(tree.Len())).u32(uint32(total))

	pkg, err := parseFalloutDAT(memFile("master.dat", b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"art/stored.frm", "proto/items.pro"}, names(pkg))
	assert.Equal(t, "stored", readString(t, pkg, "art/stored.frm"))
	assert.Equal(t, "proto proto proto proto", readString(t, pkg, "proto/items.pro"))

	// the trailer must agree with the file size
	data := append(b.Bytes(), 0)
	_, err = parseFalloutDAT(memFile("master.dat", data))
	assert.ErrorIs(t, err, archive.ErrFileType)
}

func TestGodotPCK(t *testing.T) {
	for _, version := range []uint32{1, 2} {
		t.Run(map[uint32]string{1: "v1", 2: "v2"}[version], func(t *testing.T) {
			var b fixture
			b.str("GDPC").u32(version).u32(4).u32(2).u32(0)
			if version == 2 {
				b.u32(0).u64(0)
			}
			b.pad(64).u32(1)
			path := "res://scenes/main.tscn\x00\x00"
			recEnd := b.Len() + 4 + len(path) + 8 + 8 + 16
			if version == 2 {
				recEnd += 4
			}
			b.u32(uint32(len(path))).str(path).u64(uint64(recEnd)).u64(5).pad(16)
			if version == 2 {
				b.u32(0)
			}
			b.str("scene")

			pkg, err := parseGodotPCK(memFile("game.pck", b.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, []string{"scenes/main.tscn"}, names(pkg))
			assert.Equal(t, "scene", readString(t, pkg, "scenes/main.tscn"))
		})
	}

	var v3 fixture
	v3.str("GDPC").u32(3).u32(4).u32(2).u32(0)
	_, err := parseGodotPCK(memFile("v3.pck", v3.Bytes()))
	assert.ErrorIs(t, err, archive.ErrFileVersion)

	var enc fixture
	enc.str("GDPC").u32(2).u32(4).u32(2).u32(0).u32(pckFlagEncryptedDir).u64(0).pad(64).u32(0)
	_, err = parseGodotPCK(memFile("enc.pck", enc.Bytes()))
	assert.ErrorIs(t, err, archive.ErrFileVersion)
}

func TestWPKG(t *testing.T) {
	var b fixture
	b.u32(8).str("PKGV0019").u32(2)
	b.u32(uint32(len("scene.json"))).str("scene.json").u32(0).u32(2)
	b.u32(uint32(len("materials/a.json"))).str("materials/a.json").u32(2).u32(4)
	b.str("{}").str("[1 ]")

	pkg, err := parseWPKG(memFile("scene.pkg", b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "{}", readString(t, pkg, "scene.json"))
	assert.Equal(t, "[1 ]", readString(t, pkg, "materials/a.json"))

	var bad fixture
	bad.u32(8).str("NOTAPKG!").u32(0)
	_, err = parseWPKG(memFile("bad.pkg", bad.Bytes()))
	assert.ErrorIs(t, err, archive.ErrFileType)
}

func TestMIX(t *testing.T) {
	var b fixture
	b.u16(2).u32(7)
	b.u32(0x12345678).u32(0).u32(3)
	b.u32(0xcafebabe).u32(3).u32(4)
	b.str("abcdefg")

	pkg, err := parseMIX(memFile("conquer.mix", b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"12345678", "cafebabe"}, names(pkg))
	assert.Equal(t, "defg", readString(t, pkg, "CAFEBABE"))
	assert.Equal(t, uint64(0x12345678), pkg.Entries()[0].Hash)

	var ra fixture
	ra.u32(mixFlagChecksum).u16(1).u32(2)
	ra.u32(1).u32(0).u32(2)
	ra.str("ra").pad(mixChecksumSize)
	pkg, err = parseMIX(memFile("redalert.mix", ra.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "ra", readString(t, pkg, "00000001"))

	var enc fixture
	enc.u32(mixFlagEncrypted).pad(80)
	_, err = parseMIX(memFile("enc.mix", enc.Bytes()))
	assert.ErrorIs(t, err, archive.ErrFileVersion)

	var overrun fixture
	overrun.u16(1).u32(2).u32(1).u32(1).u32(2).str("xy")
	_, err = parseMIX(memFile("overrun.mix", overrun.Bytes()))
	assert.ErrorIs(t, err, archive.ErrBounds)

	var sized fixture
	sized.u16(0xffff).u32(0)
	_, err = parseMIX(memFile("huge.mix", sized.Bytes()))
	assert.ErrorIs(t, err, archive.ErrBounds)
}
