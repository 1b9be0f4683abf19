package formats

import (
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	mixRecordSize    = 12
	mixFlagChecksum  = 0x00010000
	mixFlagEncrypted = 0x00020000
	mixChecksumSize  = 20
)

// parseMIX reads a Westwood MIX file. Entries are identified by a 32-bit
// name hash only. Red Alert files start with a zero word followed by flags;
// their encrypted headers are not supported.
func parseMIX(f *vfile.File) (*archive.Package, error) {
	d := vfile.NewDecoder(f)

	var flags uint32
	count := d.U16()
	if count == 0 {
		// the zero count is the low half of the flags word
		d.SeekTo(0)
		flags = d.U32()
		if flags&^(mixFlagChecksum|mixFlagEncrypted) != 0 {
			return nil, fmt.Errorf("%w: mix: unknown flags %#x", archive.ErrFileType, flags)
		}
		if flags&mixFlagEncrypted != 0 {
			return nil, fmt.Errorf("%w: mix: encrypted header", archive.ErrFileVersion)
		}
		count = d.U16()
	}
	bodySize := d.U32()
	if err := d.Err(); err != nil {
		return nil, headerErr("mix", err)
	}

	tableOff := uint64(d.Tell())
	dir, err := readTable(f, "mix", tableOff, uint64(count), mixRecordSize)
	if err != nil {
		return nil, err
	}

	bodyStart := tableOff + uint64(count)*mixRecordSize
	trailer := uint64(0)
	if flags&mixFlagChecksum != 0 {
		trailer = mixChecksumSize
	}
	if bodyStart+uint64(bodySize)+trailer != uint64(f.Size()) {
		return nil, fmt.Errorf("%w: mix: body of %d bytes does not match file size %d", archive.ErrFileType, bodySize, f.Size())
	}

	pkg := archive.New(f, "mix")
	for i := 0; i < int(count); i++ {
		rec := dir[i*mixRecordSize:]
		id := le.Uint32(rec)
		off := le.Uint32(rec[4:])
		size := le.Uint32(rec[8:])

		if err := vfile.CheckRange(uint64(off), uint64(size), uint64(bodySize)); err != nil {
			return nil, fmt.Errorf("mix entry %08x: %w", id, err)
		}
		e := archive.Entry{
			Name:           hexName(uint64(id), 8),
			Offset:         int64(bodyStart) + int64(off),
			Size:           int64(size),
			CompressedSize: int64(size),
			Hash:           uint64(id),
		}
		if err := pkg.Add(e); err != nil {
			return nil, fmt.Errorf("mix entry %d: %w", i, err)
		}
	}
	return pkg, nil
}
