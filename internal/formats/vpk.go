package formats

import (
	"fmt"
	"path"
	"strings"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	vpkSignature    = 0x55aa1234
	vpkDirArchive   = 0x7fff
	vpkTerminator   = 0xffff
	vpkHeaderSizeV1 = 12
	vpkHeaderSizeV2 = 28
)

// vpkLocation finds an entry's bytes: preload data in the directory file
// followed by a chunk in one of the numbered archives.
type vpkLocation struct {
	preloadOffset int64
	preloadLen    int64
	archive       uint16
	offset        int64
	length        int64
}

// loadVPK opens a Valve pack from its "_dir.vpk" file. Numbered archives
// next to it are opened when entries are read.
func loadVPK(dirPath string) (*archive.Package, error) {
	base, ok := strings.CutSuffix(dirPath, "_dir.vpk")
	if !ok {
		base, ok = strings.CutSuffix(dirPath, "_DIR.VPK")
	}
	if !ok {
		return nil, fmt.Errorf("%w: vpk: %s is not a directory file", archive.ErrFileType, path.Base(dirPath))
	}

	f, err := vfile.Open(dirPath, true)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := vfile.NewDecoder(f)
	if sig := d.U32(); d.Ok() && sig != vpkSignature {
		return nil, fmt.Errorf("%w: vpk: bad signature %#x", archive.ErrFileType, sig)
	}
	version := d.U32()
	treeSize := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("vpk", err)
	}

	headerSize := int64(vpkHeaderSizeV1)
	switch version {
	case 1:
	case 2:
		headerSize = vpkHeaderSizeV2
		d.Skip(16)
	default:
		return nil, fmt.Errorf("%w: vpk version %d", archive.ErrFileVersion, version)
	}
	treeEnd := headerSize + int64(treeSize)
	if treeEnd > f.Size() {
		return nil, fmt.Errorf("%w: vpk tree of %d bytes does not fit", archive.ErrBounds, treeSize)
	}

	pkg := archive.NewDetached(dirPath, "vpk")
	for {
		ext := d.CString(255)
		if ext == "" {
			break
		}
		for {
			dir := d.CString(1024)
			if dir == "" {
				break
			}
			for {
				name := d.CString(1024)
				if name == "" {
					break
				}
				if err := readVPKEntry(d, pkg, vpkJoin(dir, name, ext), treeEnd); err != nil {
					return nil, err
				}
			}
		}
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("vpk tree: %w", err)
		}
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("vpk tree: %w", err)
	}
	if d.Tell() > treeEnd {
		return nil, fmt.Errorf("%w: vpk tree overruns its declared size", archive.ErrBounds)
	}

	pkg.SetExtractor(vpkExtractor(dirPath, base, treeEnd))
	return pkg, nil
}

func readVPKEntry(d *vfile.Decoder, pkg *archive.Package, name string, treeEnd int64) error {
	_ = d.U32() // crc
	preload := int64(d.U16())
	arch := d.U16()
	off := int64(d.U32())
	length := int64(d.U32())
	term := d.U16()
	if err := d.Err(); err != nil {
		return fmt.Errorf("vpk entry %s: %w", name, err)
	}
	if term != vpkTerminator {
		return fmt.Errorf("%w: vpk entry %s has terminator %#x", archive.ErrFileType, name, term)
	}

	loc := vpkLocation{preloadOffset: d.Tell(), preloadLen: preload, archive: arch, offset: off, length: length}
	if loc.preloadOffset+preload > treeEnd {
		return fmt.Errorf("%w: vpk entry %s preload data overruns the tree", archive.ErrBounds, name)
	}
	d.Skip(preload)

	return pkg.AddDetached(archive.Entry{
		Name:           name,
		Offset:         off,
		Size:           preload + length,
		CompressedSize: preload + length,
		Extra:          loc,
	})
}

// vpkJoin builds an entry name; a single space stands for an empty part.
func vpkJoin(dir, name, ext string) string {
	if ext != " " {
		name += "." + ext
	}
	if dir == " " {
		return name
	}
	return dir + "/" + name
}

func vpkExtractor(dirPath, base string, dataStart int64) archive.Extractor {
	return func(p *archive.Package, e *archive.Entry) ([]byte, error) {
		loc, ok := e.Extra.(vpkLocation)
		if !ok {
			return nil, fmt.Errorf("%w: vpk entry %s has no location", archive.ErrIO, e.Name)
		}

		out := make([]byte, 0, e.Size)
		if loc.preloadLen > 0 {
			data, err := readSection(dirPath, loc.preloadOffset, loc.preloadLen)
			if err != nil {
				return nil, err
			}
			out = append(out, data...)
		}
		if loc.length == 0 {
			return out, nil
		}

		src, off := dirPath, loc.offset
		if loc.archive == vpkDirArchive {
			off += dataStart
		} else {
			src = fmt.Sprintf("%s_%03d.vpk", base, loc.archive)
		}
		data, err := readSection(src, off, loc.length)
		if err != nil {
			return nil, err
		}
		return append(out, data...), nil
	}
}

// readSection reads a bounds-checked range from a file that is not the
// package's own source.
func readSection(path string, off, length int64) ([]byte, error) {
	f, err := vfile.Open(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", archive.ErrIO, err)
	}
	defer f.Close()
	return f.Section(off, length)
}
