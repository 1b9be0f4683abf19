package formats

import (
	"encoding/binary"
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// Build engine and Descent era formats: entry data follows the names with
// no stored offsets, or the table sits behind a single pointer.

// parseGRP reads Duke Nukem 3D group files.
func parseGRP(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "grp", "KenSilverman"); err != nil {
		return nil, err
	}
	count := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("grp", err)
	}

	dir, err := readTable(f, "grp", 16, uint64(count), 16)
	if err != nil {
		return nil, err
	}

	pkg := archive.New(f, "grp")
	off := int64(16) + int64(count)*16
	for i := uint32(0); i < count; i++ {
		rec := dir[i*16:]
		size := int64(le.Uint32(rec[12:]))
		e := archive.Entry{Name: fixedName(rec[:12]), Offset: off, Size: size, CompressedSize: size}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("grp entry %d: %w", i, err)
		}
		off += size
	}
	return pkg, nil
}

const hogHeaderSize = 17

// parseHOG reads Descent HOG files, where every entry is a 13-byte name and
// a size followed directly by the data.
func parseHOG(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "hog", "DHF"); err != nil {
		return nil, err
	}

	pkg := archive.New(f, "hog")
	for i := 0; d.Remaining() > 0; i++ {
		if d.Remaining() < hogHeaderSize {
			return nil, fmt.Errorf("%w: hog entry %d header truncated", archive.ErrBounds, i)
		}
		name := d.FixedString(13)
		size := int64(d.U32())
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("hog entry %d: %w", i, err)
		}

		e := archive.Entry{Name: name, Offset: d.Tell(), Size: size, CompressedSize: size}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("hog entry %d: %w", i, err)
		}
		d.Skip(size)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("hog: %w", err)
	}
	return pkg, nil
}

const gobRecordSize = 21

// parseGOB reads Dark Forces GOB files.
func parseGOB(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "gob", "GOB\x0a"); err != nil {
		return nil, err
	}
	indexOff := d.U32()
	d.SeekTo(int64(indexOff))
	count := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("gob", err)
	}

	dir, err := readTable(f, "gob", uint64(indexOff)+4, uint64(count), gobRecordSize)
	if err != nil {
		return nil, err
	}

	pkg := archive.New(f, "gob")
	for i := uint32(0); i < count; i++ {
		rec := dir[i*gobRecordSize:]
		size := int64(le.Uint32(rec[4:]))
		e := archive.Entry{
			Offset:         int64(le.Uint32(rec)),
			Size:           size,
			CompressedSize: size,
			Name:           fixedName(rec[8:gobRecordSize]),
		}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("gob entry %d: %w", i, err)
		}
	}
	return pkg, nil
}

// parseBIG reads EA BIG archives. Counts and offsets are big-endian; the
// archive size field is little-endian and only sanity checked.
func parseBIG(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	if _, err := expectMagic(d, "big", "BIGF", "BIG4"); err != nil {
		return nil, err
	}
	archiveSize := d.U32()
	count := d.U32BE()
	_ = d.U32BE() // first data offset
	if err := d.Err(); err != nil {
		return nil, headerErr("big", err)
	}
	if int64(archiveSize) > f.Size() {
		return nil, fmt.Errorf("%w: big header claims %d bytes, file has %d", archive.ErrBounds, archiveSize, f.Size())
	}
	// offset, size and at least a terminator per entry
	if err := vfile.CheckTable(16, uint64(count), 9, uint64(f.Size())); err != nil {
		return nil, fmt.Errorf("big directory: %w", err)
	}

	be := vfile.NewDecoderOrder(f, binary.BigEndian)
	be.SeekTo(16)
	pkg := archive.New(f, "big")
	for i := uint32(0); i < count; i++ {
		off := be.U32()
		size := be.U32()
		name := be.CString(1024)
		if err := be.Err(); err != nil {
			return nil, fmt.Errorf("big entry %d: %w", i, err)
		}

		e := archive.Entry{Name: name, Offset: int64(off), Size: int64(size), CompressedSize: int64(size)}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("big entry %d: %w", i, err)
		}
	}
	return pkg, nil
}
