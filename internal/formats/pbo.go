package formats

import (
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	pboMimeVersion  = 0x56657273 // "Vers"
	pboMimeCompress = 0x43707273 // "Cprs"
	pboMimeEncrypt  = 0x456e6372 // "Encr"
	pboRecordSize   = 20
	pboMaxName      = 1024
	pboMaxHeaders   = 4096
)

// parsePBO reads Arma/DayZ PBO files. The first record carries the
// "Vers" mime and is followed by key/value header strings. Entry data is
// laid out in table order right after the terminating empty record.
func parsePBO(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if first := d.U8(); d.Ok() && first != 0 {
		return nil, fmt.Errorf("%w: pbo: first record has a name", archive.ErrFileType)
	}
	if mime := d.U32(); d.Ok() && mime != pboMimeVersion {
		return nil, fmt.Errorf("%w: pbo: first record mime %#x", archive.ErrFileType, mime)
	}
	d.Skip(16)
	if err := d.Err(); err != nil {
		return nil, headerErr("pbo", err)
	}

	for i := 0; ; i++ {
		if i >= pboMaxHeaders {
			return nil, fmt.Errorf("%w: pbo: too many header strings", archive.ErrFileType)
		}
		key := d.CString(pboMaxName)
		if key == "" {
			break
		}
		_ = d.CString(pboMaxName)
	}
	if err := d.Err(); err != nil {
		return nil, headerErr("pbo", err)
	}

	type pboRecord struct {
		name     string
		mime     uint32
		original uint32
		size     uint32
	}
	var records []pboRecord
	for {
		name := d.CString(pboMaxName)
		mime := d.U32()
		original := d.U32()
		_ = d.U32() // offset, unused by the game
		_ = d.U32() // timestamp
		size := d.U32()
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("pbo entry %d: %w", len(records), err)
		}
		if name == "" && mime == 0 && original == 0 && size == 0 {
			break
		}
		records = append(records, pboRecord{name: name, mime: mime, original: original, size: size})
	}

	pkg := archive.New(f, "pbo")
	off := d.Tell()
	for i, r := range records {
		e := archive.Entry{Name: r.name, Offset: off, Size: int64(r.size), CompressedSize: int64(r.size)}
		off += int64(r.size)

		switch {
		case r.size == 0, r.mime == pboMimeCompress && r.original == 0:
			// empty files keep their place in the table
			e.Offset, e.Size, e.CompressedSize = 0, 0, 0
		case r.mime == pboMimeEncrypt:
			e.Compression = codec.Unsupported
		case r.mime == pboMimeCompress, r.original != 0 && r.size < r.original:
			e.Size = int64(r.original)
			e.Compression = codec.LZSS
		}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("pbo entry %d: %w", i, err)
		}
	}
	return pkg, nil
}
