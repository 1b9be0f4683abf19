package formats

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
)

// WriteFile is one input to the writers.
type WriteFile struct {
	Name   string
	Data   []byte
	Method codec.Method
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func (c *countingWriter) put(v any) {
	if c.err == nil {
		c.err = binary.Write(c, binary.LittleEndian, v)
	}
}

func normalizeNames(files []WriteFile, maxLen int) ([]string, error) {
	names := make([]string, len(files))
	for i, f := range files {
		name, err := archive.NormalizeName(f.Name)
		if err != nil {
			return nil, err
		}
		if len(name) > maxLen {
			return nil, fmt.Errorf("%w: name %q is longer than %d bytes", archive.ErrBounds, name, maxLen)
		}
		names[i] = name
	}
	return names, nil
}

// WritePAK writes files as a Quake PAK. Entries are always stored and names
// must fit the 56-byte field with its terminator.
func WritePAK(w io.Writer, files []WriteFile) error {
	names, err := normalizeNames(files, quakeLayout.nameLen-1)
	if err != nil {
		return err
	}

	dirOff := int64(12)
	for _, f := range files {
		if f.Method != codec.None {
			return fmt.Errorf("%w: pak entries are stored only, %s asks for %s", codec.ErrUnsupported, f.Name, f.Method)
		}
		dirOff += int64(len(f.Data))
	}
	if dirOff > 1<<32-1 || int64(len(files))*int64(quakeLayout.recSize) > 1<<32-1 {
		return fmt.Errorf("%w: pak larger than 4GiB", archive.ErrBounds)
	}

	cw := &countingWriter{w: w}
	cw.Write([]byte(quakeLayout.magic))
	cw.put(uint32(dirOff))
	cw.put(uint32(len(files) * quakeLayout.recSize))

	offsets := make([]uint32, len(files))
	for i, f := range files {
		offsets[i] = uint32(cw.n)
		cw.Write(f.Data)
	}
	for i, f := range files {
		var name [56]byte
		copy(name[:], names[i])
		cw.Write(name[:])
		cw.put(offsets[i])
		cw.put(uint32(len(f.Data)))
	}
	if cw.err != nil {
		return fmt.Errorf("writing pak: %w", cw.err)
	}
	return nil
}

// WriteGPAK writes files in the native format, compressing each one with
// its own method.
func WriteGPAK(w io.Writer, files []WriteFile) error {
	names, err := normalizeNames(files, gpakMaxName)
	if err != nil {
		return err
	}

	type record struct {
		method uint8
		off    uint64
		size   uint64
		csize  uint64
	}
	records := make([]record, len(files))

	cw := &countingWriter{w: w}
	cw.Write([]byte(gpakMagic))
	cw.put(uint32(gpakVersion))

	for i, f := range files {
		id, err := gpakMethodID(f.Method)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		packed, err := codec.Encode(f.Method, f.Data)
		if err != nil {
			return fmt.Errorf("compressing %s: %w", f.Name, err)
		}
		records[i] = record{method: id, off: uint64(cw.n), size: uint64(len(f.Data)), csize: uint64(len(packed))}
		cw.Write(packed)
	}

	tableOff := uint64(cw.n)
	for i, r := range records {
		cw.put(uint16(len(names[i])))
		cw.Write([]byte(names[i]))
		cw.put(r.method)
		cw.put(r.off)
		cw.put(r.size)
		cw.put(r.csize)
	}
	cw.put(tableOff)
	cw.put(uint32(len(files)))
	cw.Write([]byte(gpakMagic))

	if cw.err != nil {
		return fmt.Errorf("writing gpak: %w", cw.err)
	}
	return nil
}
