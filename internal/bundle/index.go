package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	fileRecordSize    = 20
	pathrepRecordSize = 20
	// minBundleRecord is a name length plus the skipped size field.
	minBundleRecord = 8
	maxBundleName   = 4096
)

type bundlePathrep struct {
	hash          uint64
	offset        uint32
	size          uint32
	recursiveSize uint32
}

// LoadIndex reads an index file. The file is normally itself a bundle; if
// it does not parse as one it is treated as raw index data.
func LoadIndex(f *vfile.File) (*Index, error) {
	b, err := OpenBundle(f)
	if err != nil {
		if errors.Is(err, archive.ErrIO) {
			return nil, err
		}
		slog.Debug("Index is not a bundle, reading raw", "path", f.Path(), "error", err)
		raw, err := f.Section(0, f.Size())
		if err != nil {
			return nil, err
		}
		return ParseIndex(raw)
	}

	data, err := b.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read index bundle: %w", err)
	}
	return ParseIndex(data)
}

// ParseIndex parses decoded index data. Every count is checked against the
// remaining data before its table is allocated.
func ParseIndex(data []byte) (*Index, error) {
	f := vfile.Wrap("_.index.bin", data, vfile.Borrow)
	d := vfile.NewDecoder(f)
	size := uint64(len(data))

	bundleCount := d.U32()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: index data too small: %w", archive.ErrFileType, err)
	}
	if err := vfile.CheckTable(uint64(d.Tell()), uint64(bundleCount), minBundleRecord, size); err != nil {
		return nil, fmt.Errorf("index bundle table: %w", err)
	}

	bundles := make([]string, bundleCount)
	for i := range bundles {
		nameLen := d.U32()
		if nameLen > maxBundleName {
			return nil, fmt.Errorf("%w: bundle name %d is %d bytes", archive.ErrBounds, i, nameLen)
		}
		name := d.Bytes(int64(nameLen))
		// skip uncompressed size -- available elsewhere
		d.Skip(4)
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("index bundle %d: %w", i, err)
		}
		bundles[i] = string(name)
	}

	fileCount := d.U32()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("index file count: %w", err)
	}
	if err := vfile.CheckTable(uint64(d.Tell()), uint64(fileCount), fileRecordSize, size); err != nil {
		return nil, fmt.Errorf("index file table: %w", err)
	}
	fileData := d.Bytes(int64(fileCount) * fileRecordSize)

	files := make([]FileInfo, fileCount)
	filemap := make(map[uint64]int, fileCount)
	for i := range files {
		rec := fileData[i*fileRecordSize:]
		files[i] = FileInfo{
			Hash:     binary.LittleEndian.Uint64(rec),
			BundleID: binary.LittleEndian.Uint32(rec[8:]),
			Offset:   binary.LittleEndian.Uint32(rec[12:]),
			Size:     binary.LittleEndian.Uint32(rec[16:]),
		}
		if files[i].BundleID >= bundleCount {
			return nil, fmt.Errorf("%w: file %016x in bundle %d of %d", archive.ErrBounds, files[i].Hash, files[i].BundleID, bundleCount)
		}
		if _, exists := filemap[files[i].Hash]; exists {
			return nil, fmt.Errorf("%w: duplicate file hash %016x", archive.ErrFileType, files[i].Hash)
		}
		filemap[files[i].Hash] = i
	}

	pathrepCount := d.U32()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("index path count: %w", err)
	}
	if err := vfile.CheckTable(uint64(d.Tell()), uint64(pathrepCount), pathrepRecordSize, size); err != nil {
		return nil, fmt.Errorf("index path table: %w", err)
	}
	pathrepData := d.Bytes(int64(pathrepCount) * pathrepRecordSize)

	pathreps := make([]bundlePathrep, pathrepCount)
	seen := make(map[uint64]bool, pathrepCount)
	for i := range pathreps {
		rec := pathrepData[i*pathrepRecordSize:]
		pathreps[i] = bundlePathrep{
			hash:          binary.LittleEndian.Uint64(rec),
			offset:        binary.LittleEndian.Uint32(rec[8:]),
			size:          binary.LittleEndian.Uint32(rec[12:]),
			recursiveSize: binary.LittleEndian.Uint32(rec[16:]),
		}
		if seen[pathreps[i].hash] {
			return nil, fmt.Errorf("%w: duplicate path hash %016x", archive.ErrFileType, pathreps[i].hash)
		}
		seen[pathreps[i].hash] = true
	}
	if err := d.Err(); err != nil {
		return nil, err
	}

	idx := &Index{Bundles: bundles, Files: files}
	if pathrepCount == 0 {
		return idx, nil
	}

	rest := data[d.Tell():]
	pathrepBundle, err := openBundle(bytes.NewReader(rest), "index paths", int64(len(rest)))
	if err != nil {
		return nil, fmt.Errorf("unable to read path bundle at offset %d: %w", d.Tell(), err)
	}
	pathData, err := pathrepBundle.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read path bundle: %w", err)
	}

	for _, pr := range pathreps {
		if err := vfile.CheckRange(uint64(pr.offset), uint64(pr.size), uint64(len(pathData))); err != nil {
			return nil, fmt.Errorf("path list %016x: %w", pr.hash, err)
		}
		paths, err := readPathspec(pathData[pr.offset : pr.offset+pr.size])
		if err != nil {
			return nil, fmt.Errorf("path list %016x: %w", pr.hash, err)
		}
		for _, path := range paths {
			// Newer indexes hash with MurmurHash64A, older ones with FNV-1a.
			if fe, found := filemap[MurmurHashPath(path)]; found {
				files[fe].Path = path
			} else if fe, found := filemap[FNVHashPath(path)]; found {
				files[fe].Path = path
			}
		}
	}

	return idx, nil
}

// readPathspec expands a path list. The list alternates between a phase
// that defines name fragments and a phase that emits paths; a zero word
// flips the phase. Every other word is a 1-based fragment to prefix.
func readPathspec(data []byte) ([]string, error) {
	p := 0
	phase := 1
	names := make([]string, 0, 128)
	output := make([]string, 0, 128)

	for p < len(data) {
		if len(data)-p < 4 {
			return nil, fmt.Errorf("%w: truncated path word at %d", archive.ErrBounds, p)
		}
		n := int(binary.LittleEndian.Uint32(data[p:]))
		p += 4
		if n == 0 {
			phase = 1 - phase
			continue
		}

		str := readPathspecString(data, &p)
		if n-1 < len(names) {
			str = names[n-1] + str
		}
		if phase == 0 {
			names = append(names, str)
		} else {
			output = append(output, str)
		}
	}

	return output, nil
}

func readPathspecString(data []byte, offset *int) string {
	p := *offset
	for p < len(data) && data[p] != 0 {
		p++
	}
	s := string(data[*offset:p])
	*offset = p + 1
	return s
}
