package formats

import (
	"fmt"
	"strings"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// smallest record: name length, offset, size
const wpkgMinRecord = 12

// parseWPKG reads Wallpaper Engine scene packages. Every string is
// length-prefixed and entry offsets are relative to the end of the table.
func parseWPKG(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)
	verLen := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("wpkg", err)
	}
	if verLen < 4 || verLen > 32 {
		return nil, fmt.Errorf("%w: wpkg: version string of %d bytes", archive.ErrFileType, verLen)
	}
	version := string(d.Bytes(int64(verLen)))
	count := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("wpkg", err)
	}
	if !strings.HasPrefix(version, "PKGV") {
		return nil, fmt.Errorf("%w: wpkg: version %q", archive.ErrFileType, version)
	}
	if err := vfile.CheckTable(uint64(d.Tell()), uint64(count), wpkgMinRecord, uint64(f.Size())); err != nil {
		return nil, fmt.Errorf("wpkg directory: %w", err)
	}

	type wpkgRecord struct {
		name      string
		off, size uint32
	}
	records := make([]wpkgRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		nameLen := d.U32()
		if nameLen > 4096 {
			return nil, fmt.Errorf("%w: wpkg entry %d name length %d", archive.ErrFileType, i, nameLen)
		}
		r := wpkgRecord{name: string(d.Bytes(int64(nameLen)))}
		r.off = d.U32()
		r.size = d.U32()
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("wpkg entry %d: %w", i, err)
		}
		records = append(records, r)
	}

	pkg := archive.New(f, "wpkg")
	dataStart := d.Tell()
	for i, r := range records {
		e := archive.Entry{Name: r.name, Offset: dataStart + int64(r.off), Size: int64(r.size), CompressedSize: int64(r.size)}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("wpkg entry %d: %w", i, err)
		}
	}
	return pkg, nil
}
