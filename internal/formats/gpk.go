package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/utils"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	gpkTrailerSize  = 32
	gpkEntrySize    = 23
	gpkTrailerHead  = "STKFile0PIDX"
	gpkTrailerTail  = "STKFile0PACKFILE"
	gpkMaxIndexSize = 64 << 20
)

var gpkCipher = [16]byte{
	0x82, 0xee, 0x1d, 0xb3,
	0x57, 0xe9, 0x2c, 0xc2,
	0x2f, 0x54, 0x7b, 0x10,
	0x4c, 0x9a, 0x75, 0x49,
}

// parseGPK reads GPK packs from School Days era visual novels. The index is
// XOR scrambled, zlib compressed behind a Qt size prefix, and holds UTF-16
// names.
func parseGPK(f *vfile.File) (*archive.Package, error) {
	size := f.Size()
	if size < gpkTrailerSize {
		return nil, fmt.Errorf("%w: gpk: file too short for trailer", archive.ErrFileType)
	}

	trailer, err := f.Section(size-gpkTrailerSize, gpkTrailerSize)
	if err != nil {
		return nil, headerErr("gpk", err)
	}
	if string(trailer[:12]) != gpkTrailerHead || string(trailer[16:]) != gpkTrailerTail {
		return nil, fmt.Errorf("%w: gpk: bad trailer signature", archive.ErrFileType)
	}

	indexLen := int64(le.Uint32(trailer[12:]))
	if indexLen < 4 || indexLen > size-gpkTrailerSize {
		return nil, fmt.Errorf("%w: gpk index of %d bytes does not fit", archive.ErrBounds, indexLen)
	}
	index, err := f.Section(size-gpkTrailerSize-indexLen, indexLen)
	if err != nil {
		return nil, fmt.Errorf("gpk index: %w", err)
	}
	for i := range index {
		index[i] ^= gpkCipher[i%len(gpkCipher)]
	}

	plainLen := int64(binary.BigEndian.Uint32(index))
	if plainLen > gpkMaxIndexSize {
		return nil, fmt.Errorf("%w: gpk index claims %d bytes", archive.ErrBounds, plainLen)
	}
	plain, err := codec.Decode(codec.Zlib, index[4:], plainLen)
	if err != nil {
		return nil, fmt.Errorf("%w: gpk index: %w", archive.ErrDecompression, err)
	}

	pkg := archive.New(f, "gpk")
	r := bytes.NewReader(plain)
	for i := 0; r.Len() > 0; i++ {
		var nameLen uint16
		if err := binary.Read(r, le, &nameLen); err != nil {
			return nil, fmt.Errorf("%w: gpk entry %d name length", archive.ErrBounds, i)
		}
		if int(nameLen)*2+gpkEntrySize > r.Len() {
			return nil, fmt.Errorf("%w: gpk entry %d overruns the index", archive.ErrBounds, i)
		}
		raw := make([]byte, int(nameLen)*2)
		_, _ = r.Read(raw)
		name, err := utils.DecodeUTF16LE(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: gpk entry %d: %w", archive.ErrFileType, i, err)
		}

		var hdr [gpkEntrySize]byte
		_, _ = r.Read(hdr[:])
		off := le.Uint32(hdr[6:])
		csize := le.Uint32(hdr[10:])
		usize := le.Uint32(hdr[18:])

		e := archive.Entry{Name: name, Offset: int64(off), Size: int64(csize), CompressedSize: int64(csize)}
		// most packs leave the size zero and store data as is
		if string(hdr[14:18]) == "DFLT" && usize != 0 && usize != csize {
			e.Size = int64(usize)
			e.Compression = codec.Zlib
		}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("gpk entry %d: %w", i, err)
		}
	}
	return pkg, nil
}
