package formats

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	mpqMagic     = "MPQ\x1a"
	mpqUserMagic = "MPQ\x1b"

	mpqHeaderSizeV1 = 32
	mpqHeaderSizeV2 = 44

	mpqFileImplode      = 0x00000100
	mpqFileCompress     = 0x00000200
	mpqFileEncrypted    = 0x00010000
	mpqFileFixKey       = 0x00020000
	mpqFileSingleUnit   = 0x01000000
	mpqFileDeleteMarker = 0x02000000
	mpqFileSectorCRC    = 0x04000000
	mpqFileExists       = 0x80000000

	mpqHashEmpty   = 0xffffffff
	mpqHashDeleted = 0xfffffffe

	mpqMaxSectorShift = 16
	mpqMaxPrealloc    = 64 << 20
)

// mpqBlock is the locator kept in Entry.Extra.
type mpqBlock struct {
	flags      uint32
	pos        uint32
	sectorSize int64
	key        uint32
	keyKnown   bool
}

// names that are present in most archives without being in the listfile
var mpqKnownNames = []string{"(listfile)", "(attributes)", "(signature)", "(user data)"}

type mpqHashEntry struct {
	a, b  uint32
	block uint32
}

// parseMPQ reads Blizzard MPQ archives, format versions 1 and 2. Entries are
// named by their two name hashes; the archive's (listfile), when present,
// supplies labels and the keys of encrypted entries.
func parseMPQ(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	magic, err := expectMagic(d, "mpq", mpqMagic, mpqUserMagic)
	if err != nil {
		return nil, err
	}

	var start int64
	if magic == mpqUserMagic {
		_ = d.U32() // user data size
		start = int64(d.U32())
		d.SeekTo(start)
		if _, err := expectMagic(d, "mpq", mpqMagic); err != nil {
			return nil, err
		}
	}

	headerSize := d.U32()
	_ = d.U32() // archive size
	version := d.U16()
	sectorShift := d.U16()
	hashOff := uint64(d.U32())
	blockOff := uint64(d.U32())
	hashCount := uint64(d.U32())
	blockCount := uint64(d.U32())
	var hiBlockOff uint64
	if version == 1 && headerSize >= mpqHeaderSizeV2 {
		hiBlockOff = d.U64()
		hashOff |= uint64(d.U16()) << 32
		blockOff |= uint64(d.U16()) << 32
	}
	if err := d.Err(); err != nil {
		return nil, headerErr("mpq", err)
	}
	if version > 1 {
		return nil, fmt.Errorf("%w: mpq format version %d", archive.ErrFileVersion, version)
	}
	if headerSize < mpqHeaderSizeV1 || sectorShift > mpqMaxSectorShift {
		return nil, fmt.Errorf("%w: mpq header size %d, sector shift %d", archive.ErrFileType, headerSize, sectorShift)
	}

	hashData, err := readTable(f, "mpq hash", uint64(start)+hashOff, hashCount, 16)
	if err != nil {
		return nil, err
	}
	blockData, err := readTable(f, "mpq block", uint64(start)+blockOff, blockCount, 16)
	if err != nil {
		return nil, err
	}
	mpqDecrypt(hashData, mpqHash("(hash table)", mpqHashKey))
	mpqDecrypt(blockData, mpqHash("(block table)", mpqHashKey))

	var hiBlocks []byte
	if hiBlockOff != 0 {
		if hiBlocks, err = readTable(f, "mpq hi-block", uint64(start)+hiBlockOff, blockCount, 2); err != nil {
			return nil, err
		}
	}

	sectorSize := int64(512) << sectorShift
	hashes := make([]mpqHashEntry, 0, hashCount)
	for i := uint64(0); i < hashCount; i++ {
		rec := hashData[i*16:]
		h := mpqHashEntry{a: le.Uint32(rec), b: le.Uint32(rec[4:]), block: le.Uint32(rec[12:])}
		if h.block == mpqHashEmpty || h.block == mpqHashDeleted {
			continue
		}
		if uint64(h.block) >= blockCount {
			return nil, fmt.Errorf("%w: mpq hash entry %d points at block %d of %d", archive.ErrBounds, i, h.block, blockCount)
		}
		hashes = append(hashes, h)
	}

	block := func(i uint32) (archive.Entry, mpqBlock) {
		rec := blockData[i*16:]
		pos := uint64(le.Uint32(rec))
		if hiBlocks != nil {
			pos |= uint64(le.Uint16(hiBlocks[i*2:])) << 32
		}
		b := mpqBlock{flags: le.Uint32(rec[12:]), pos: uint32(pos), sectorSize: sectorSize}
		e := archive.Entry{
			Offset:         start + int64(pos),
			CompressedSize: int64(le.Uint32(rec[4:])),
			Size:           int64(le.Uint32(rec[8:])),
		}
		return e, b
	}

	labels := mpqListfile(f, hashes, block)

	pkg := archive.New(f, "mpq")
	seen := make(map[uint32]bool, len(hashes))
	for _, h := range hashes {
		if seen[h.block] {
			continue
		}
		seen[h.block] = true

		e, b := block(h.block)
		if b.flags&mpqFileExists == 0 || b.flags&mpqFileDeleteMarker != 0 {
			continue
		}
		hash := uint64(h.a)<<32 | uint64(h.b)
		e.Name = hexName(hash, 16)
		e.Hash = hash
		e.Label = labels[hash]
		e.Compression = mpqNominalMethod(b.flags)
		if e.Label != "" {
			b.key = mpqFileKey(e.Label, b.pos, uint32(e.Size), b.flags&mpqFileFixKey != 0)
			b.keyKnown = true
		}
		e.Extra = b

		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("mpq block %d: %w", h.block, err)
		}
	}

	pkg.SetExtractor(func(p *archive.Package, e *archive.Entry) ([]byte, error) {
		b, ok := e.Extra.(mpqBlock)
		if !ok {
			return nil, fmt.Errorf("%w: mpq entry %s has no block", archive.ErrIO, e.Name)
		}
		raw, err := p.ReadRaw(e.Offset, e.CompressedSize)
		if err != nil {
			return nil, err
		}
		return mpqDecodeFile(raw, b, e.Size)
	})
	return pkg, nil
}

// mpqNominalMethod reports the compression an entry's sectors are expected
// to use. Compressed sectors carry their own method byte.
func mpqNominalMethod(flags uint32) codec.Method {
	switch {
	case flags&mpqFileImplode != 0:
		return codec.Implode
	case flags&mpqFileCompress != 0:
		return codec.Zlib
	default:
		return codec.None
	}
}

// mpqListfile reads the archive's own name list and returns labels keyed by
// name hash. A missing or unreadable list only costs the labels.
func mpqListfile(f *vfile.File, hashes []mpqHashEntry, block func(uint32) (archive.Entry, mpqBlock)) map[uint64]string {
	byHash := make(map[uint64]uint32, len(hashes))
	for _, h := range hashes {
		key := uint64(h.a)<<32 | uint64(h.b)
		if _, ok := byHash[key]; !ok {
			byHash[key] = h.block
		}
	}

	labels := make(map[uint64]string)
	add := func(name string) {
		key := uint64(mpqHash(name, mpqHashNameA))<<32 | uint64(mpqHash(name, mpqHashNameB))
		if _, ok := byHash[key]; ok {
			labels[key] = strings.ReplaceAll(name, "\\", "/")
		}
	}
	for _, name := range mpqKnownNames {
		add(name)
	}

	listKey := uint64(mpqHash("(listfile)", mpqHashNameA))<<32 | uint64(mpqHash("(listfile)", mpqHashNameB))
	idx, ok := byHash[listKey]
	if !ok {
		return labels
	}
	e, b := block(idx)
	raw, err := f.Section(e.Offset, e.CompressedSize)
	if err != nil {
		slog.Debug("Skipping mpq listfile", "path", f.Path(), "error", err)
		return labels
	}
	b.key = mpqFileKey("(listfile)", b.pos, uint32(e.Size), b.flags&mpqFileFixKey != 0)
	b.keyKnown = true
	list, err := mpqDecodeFile(raw, b, e.Size)
	if err != nil {
		slog.Debug("Skipping mpq listfile", "path", f.Path(), "error", err)
		return labels
	}

	for _, line := range bytes.FieldsFunc(list, func(r rune) bool { return r == '\n' || r == '\r' || r == ';' }) {
		if name := strings.TrimSpace(string(line)); name != "" {
			add(name)
		}
	}
	return labels
}

// mpqDecodeFile decrypts and decompresses the stored bytes of one file.
func mpqDecodeFile(raw []byte, b mpqBlock, size int64) ([]byte, error) {
	encrypted := b.flags&mpqFileEncrypted != 0
	if encrypted && !b.keyKnown {
		return nil, fmt.Errorf("%w: encrypted entry without a known name: %w", archive.ErrDecompression, archive.ErrUnsupportedCompression)
	}
	packed := b.flags&(mpqFileCompress|mpqFileImplode) != 0
	implode := b.flags&mpqFileImplode != 0

	if b.flags&mpqFileSingleUnit != 0 {
		if encrypted {
			mpqDecrypt(raw, b.key)
		}
		if packed && int64(len(raw)) < size {
			return mpqDecodeSector(raw, size, implode)
		}
		return mpqStored(raw, size)
	}

	if !packed {
		if encrypted {
			for i := int64(0); i*b.sectorSize < int64(len(raw)); i++ {
				end := min((i+1)*b.sectorSize, int64(len(raw)))
				mpqDecrypt(raw[i*b.sectorSize:end], b.key+uint32(i))
			}
		}
		return mpqStored(raw, size)
	}

	sectors := (size + b.sectorSize - 1) / b.sectorSize
	words := sectors + 1
	if b.flags&mpqFileSectorCRC != 0 {
		words++
	}
	if err := vfile.CheckTable(0, uint64(words), 4, uint64(len(raw))); err != nil {
		return nil, fmt.Errorf("%w: sector table: %w", archive.ErrDecompression, err)
	}
	table := make([]byte, words*4)
	copy(table, raw)
	if encrypted {
		mpqDecrypt(table, b.key-1)
	}

	out := make([]byte, 0, min(size, mpqMaxPrealloc))
	for i := int64(0); i < sectors; i++ {
		from := int64(le.Uint32(table[i*4:]))
		to := int64(le.Uint32(table[i*4+4:]))
		if from > to || to > int64(len(raw)) {
			return nil, fmt.Errorf("%w: sector %d spans %d-%d of %d bytes", archive.ErrBounds, i, from, to, len(raw))
		}
		sector := append([]byte(nil), raw[from:to]...)
		if encrypted {
			mpqDecrypt(sector, b.key+uint32(i))
		}

		want := min(b.sectorSize, size-i*b.sectorSize)
		if int64(len(sector)) < want {
			data, err := mpqDecodeSector(sector, want, implode)
			if err != nil {
				return nil, fmt.Errorf("sector %d: %w", i, err)
			}
			sector = data
		} else if int64(len(sector)) != want {
			return nil, fmt.Errorf("%w: sector %d holds %d bytes, want %d", archive.ErrDecompression, i, len(sector), want)
		}
		out = append(out, sector...)
	}
	return out, nil
}

func mpqStored(raw []byte, size int64) ([]byte, error) {
	if int64(len(raw)) != size {
		return nil, fmt.Errorf("%w: stored %d bytes, want %d", archive.ErrDecompression, len(raw), size)
	}
	return raw, nil
}

// mpqDecodeSector decodes one compressed sector. Sectors of compressed files
// start with a mask of the methods applied; imploded files have none.
func mpqDecodeSector(data []byte, size int64, implode bool) ([]byte, error) {
	method := codec.Implode
	if !implode {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty sector", archive.ErrDecompression)
		}
		switch data[0] {
		case 0x02:
			method = codec.Zlib
		case 0x08:
			method = codec.Implode
		case 0x10:
			method = codec.Bzip2
		default:
			method = codec.Unsupported
		}
		data = data[1:]
	}

	out, err := codec.Decode(method, data, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s sector: %w", archive.ErrDecompression, method, err)
	}
	return out, nil
}
