package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
)

var le = binary.LittleEndian

// expectMagic reads len(magic) bytes at the cursor and compares them.
func expectMagic(d *vfile.Decoder, format string, magic ...string) (string, error) {
	n := len(magic[0])
	got := d.Bytes(int64(n))
	if err := d.Err(); err != nil {
		return "", fmt.Errorf("%w: %s: file too short for magic", archive.ErrFileType, format)
	}
	for _, m := range magic {
		if bytes.Equal(got, []byte(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %s: bad magic %q", archive.ErrFileType, format, got)
}

// readTable validates a table of count records of recSize bytes at off and
// reads it in one go.
func readTable(f *vfile.File, format string, off, count, recSize uint64) ([]byte, error) {
	if err := vfile.CheckTable(off, count, recSize, uint64(f.Size())); err != nil {
		return nil, fmt.Errorf("%s directory: %w", format, err)
	}
	return f.Section(int64(off), int64(count*recSize))
}

// hexName names entries of formats that store only a hash.
func hexName(h uint64, digits int) string {
	return fmt.Sprintf("%0*x", digits, h)
}

// fixedName cuts a fixed-width name field at its first NUL.
func fixedName(p []byte) string {
	return vfile.CString(p)
}

func headerErr(format string, err error) error {
	return fmt.Errorf("%s header: %w", format, err)
}
