package formats

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	evrCompressedHeaderSize = 24
	evrHeaderSize           = 192
	evrContentSize          = 32
	evrFrameSize            = 16
	evrMaxManifest          = 256 << 20
)

type evrSection struct {
	length       uint64
	elementSize  uint64
	elementCount uint64
}

type evrFrame struct {
	pkg    uint32
	offset uint32
	csize  uint32
	size   uint32
}

// evrLocation is the Entry.Extra of Echo VR entries.
type evrLocation struct {
	frame      uint32
	dataOffset uint32
}

// loadEVR opens an Echo VR manifest. Entries are named by type and file
// symbol and live inside zstd frames spread over the sibling
// ../packages/<manifest>_<n> files.
func loadEVR(path string) (*archive.Package, error) {
	f, err := vfile.Open(path, true)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := vfile.NewDecoder(f)
	d.Skip(8) // magic, header size
	usize := d.U64()
	csize := d.U64()
	if err := d.Err(); err != nil {
		return nil, headerErr("evr", err)
	}
	if csize != uint64(f.Size()-evrCompressedHeaderSize) {
		return nil, fmt.Errorf("%w: evr: compressed size %d does not match file", archive.ErrFileType, csize)
	}
	if usize < evrHeaderSize || usize > evrMaxManifest {
		return nil, fmt.Errorf("%w: evr: manifest of %d bytes", archive.ErrFileType, usize)
	}

	packed, err := f.Section(evrCompressedHeaderSize, int64(csize))
	if err != nil {
		return nil, err
	}
	body, err := codec.Decode(codec.Zstd, packed, int64(usize))
	if err != nil {
		return nil, fmt.Errorf("%w: evr manifest: %w", archive.ErrDecompression, err)
	}

	m := vfile.NewDecoder(vfile.Wrap(path, body, vfile.Own))
	packageCount := m.U32()
	m.Skip(4 + 8)
	contents := readEVRSection(m)
	m.Skip(16)
	_ = readEVRSection(m)
	m.Skip(16)
	frameSec := readEVRSection(m)
	if err := m.Err(); err != nil {
		return nil, headerErr("evr", err)
	}
	if contents.elementSize != evrContentSize && contents.elementCount != 0 {
		return nil, fmt.Errorf("%w: evr: content records of %d bytes", archive.ErrFileVersion, contents.elementSize)
	}

	bodySize := uint64(len(body))
	contentData, err := evrTable(body, evrHeaderSize, contents.elementCount, evrContentSize)
	if err != nil {
		return nil, err
	}
	if frameSec.length > bodySize {
		return nil, fmt.Errorf("%w: evr frame section of %d bytes", archive.ErrBounds, frameSec.length)
	}
	frameData, err := evrTable(body, bodySize-frameSec.length, frameSec.elementCount, evrFrameSize)
	if err != nil {
		return nil, err
	}

	frames := make([]evrFrame, frameSec.elementCount)
	for i := range frames {
		rec := frameData[i*evrFrameSize:]
		frames[i] = evrFrame{pkg: le.Uint32(rec), offset: le.Uint32(rec[4:]), csize: le.Uint32(rec[8:]), size: le.Uint32(rec[12:])}
		if frames[i].pkg >= packageCount && frames[i].csize != 0 {
			return nil, fmt.Errorf("%w: evr frame %d in package %d of %d", archive.ErrBounds, i, frames[i].pkg, packageCount)
		}
	}

	pkg := archive.NewDetached(path, "evr")
	for i := uint64(0); i < contents.elementCount; i++ {
		rec := contentData[i*evrContentSize:]
		typeSym := le.Uint64(rec)
		fileSym := le.Uint64(rec[8:])
		loc := evrLocation{frame: le.Uint32(rec[16:]), dataOffset: le.Uint32(rec[20:])}
		length := le.Uint32(rec[24:])

		if uint64(loc.frame) >= uint64(len(frames)) {
			return nil, fmt.Errorf("%w: evr entry %d in frame %d of %d", archive.ErrBounds, i, loc.frame, len(frames))
		}
		if uint64(loc.dataOffset)+uint64(length) > uint64(frames[loc.frame].size) {
			return nil, fmt.Errorf("%w: evr entry %d overruns frame %d", archive.ErrBounds, i, loc.frame)
		}

		e := archive.Entry{
			Name:           hexName(typeSym, 16) + "/" + hexName(fileSym, 16),
			Offset:         int64(loc.dataOffset),
			Size:           int64(length),
			CompressedSize: int64(length),
			Compression:    codec.Zstd,
			Hash:           fileSym,
			Extra:          loc,
		}
		if err := pkg.AddDetached(e); err != nil {
			return nil, fmt.Errorf("evr entry %d: %w", i, err)
		}
	}

	dir := filepath.Join(filepath.Dir(path), "..", "packages")
	pkg.SetExtractor((&evrFrames{dir: dir, name: filepath.Base(path), frames: frames, last: -1}).extract)
	return pkg, nil
}

func readEVRSection(d *vfile.Decoder) evrSection {
	s := evrSection{length: d.U64()}
	d.Skip(16)
	s.elementSize = d.U64()
	_ = d.U64() // count
	s.elementCount = d.U64()
	return s
}

func evrTable(body []byte, off, count, recSize uint64) ([]byte, error) {
	if err := vfile.CheckTable(off, count, recSize, uint64(len(body))); err != nil {
		return nil, fmt.Errorf("evr table: %w", err)
	}
	return body[off : off+count*recSize], nil
}

// evrFrames decodes frames on demand and keeps the last one, since entries
// of one frame are usually read together.
type evrFrames struct {
	dir    string
	name   string
	frames []evrFrame

	mu   sync.Mutex
	last int
	data []byte
}

func (c *evrFrames) frame(i uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == int(i) {
		return c.data, nil
	}

	fr := c.frames[i]
	src := filepath.Join(c.dir, fmt.Sprintf("%s_%d", c.name, fr.pkg))
	raw, err := readSection(src, int64(fr.offset), int64(fr.csize))
	if err != nil {
		return nil, err
	}
	data, err := codec.Decode(codec.Zstd, raw, int64(fr.size))
	if err != nil {
		return nil, fmt.Errorf("%w: evr frame %d: %w", archive.ErrDecompression, i, err)
	}

	c.last, c.data = int(i), data
	return data, nil
}

func (c *evrFrames) extract(p *archive.Package, e *archive.Entry) ([]byte, error) {
	loc, ok := e.Extra.(evrLocation)
	if !ok {
		return nil, fmt.Errorf("%w: evr entry %s has no location", archive.ErrIO, e.Name)
	}
	data, err := c.frame(loc.frame)
	if err != nil {
		return nil, err
	}

	start := int64(loc.dataOffset)
	if err := vfile.CheckRange(uint64(start), uint64(e.Size), uint64(len(data))); err != nil {
		return nil, fmt.Errorf("evr entry %s: %w", e.Name, err)
	}
	out := make([]byte, e.Size)
	copy(out, data[start:start+e.Size])
	return out, nil
}
