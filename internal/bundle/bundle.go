package bundle

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const (
	headSize = 60
	// maxGranularity caps the uncompressed block size. The game uses 256KiB.
	maxGranularity = 1 << 24
	// maxReadAll caps Read, which decodes a whole bundle into one buffer.
	maxReadAll = 1 << 30
)

// Bundle is an opened .bundle.bin container: a sequence of Oodle blocks that
// decode to one contiguous stream.
type Bundle struct {
	data        io.ReaderAt
	name        string
	size        int64
	granularity int64 // size of each chunk of uncompressed data
	blocks      []bundleBlock

	mu        sync.Mutex
	lastBlock int
	lastData  []byte
}

// descriptions of compressed blocks relative to Bundle.data
type bundleBlock struct {
	offset int64
	length int64
}

type bundleHead struct {
	UncompressedSize             uint32
	TotalPayloadSize             uint32
	HeadPayloadSize              uint32
	FirstFileEncode              uint32
	_                            uint32
	UncompressedSize2            int64
	TotalPayloadSize2            int64
	BlockCount                   uint32
	UncompressedBlockGranularity uint32
	_                            [4]uint32
}

// OpenBundle reads the bundle head and block table from f. Every block is
// checked against the size of f before anything is decoded.
func OpenBundle(f *vfile.File) (*Bundle, error) {
	return openBundle(f, f.Path(), f.Size())
}

func openBundle(r io.ReaderAt, name string, srcSize int64) (*Bundle, error) {
	if srcSize < headSize {
		return nil, fmt.Errorf("%w: bundle %s is %d bytes", archive.ErrFileType, name, srcSize)
	}
	rs := io.NewSectionReader(r, 0, srcSize)

	var bh bundleHead
	if err := binary.Read(rs, binary.LittleEndian, &bh); err != nil {
		return nil, fmt.Errorf("%w: reading bundle head of %s: %w", archive.ErrIO, name, err)
	}

	if bh.UncompressedBlockGranularity == 0 || bh.UncompressedBlockGranularity > maxGranularity {
		return nil, fmt.Errorf("%w: bundle %s has block granularity %d", archive.ErrFileType, name, bh.UncompressedBlockGranularity)
	}
	if bh.UncompressedSize2 < 0 {
		return nil, fmt.Errorf("%w: bundle %s has negative size", archive.ErrFileType, name)
	}
	if err := vfile.CheckTable(headSize, uint64(bh.BlockCount), 4, uint64(srcSize)); err != nil {
		return nil, fmt.Errorf("bundle %s block table: %w", name, err)
	}

	blockSizes := make([]uint32, bh.BlockCount)
	if err := binary.Read(rs, binary.LittleEndian, &blockSizes); err != nil {
		return nil, fmt.Errorf("%w: reading block sizes of %s: %w", archive.ErrIO, name, err)
	}

	blocks := make([]bundleBlock, bh.BlockCount)
	p := int64(headSize) + 4*int64(bh.BlockCount)
	for i := range blockSizes {
		sz := int64(blockSizes[i])
		if err := vfile.CheckRange(uint64(p), uint64(sz), uint64(srcSize)); err != nil {
			return nil, fmt.Errorf("bundle %s block %d: %w", name, i, err)
		}
		blocks[i] = bundleBlock{offset: p, length: sz}
		p += sz
	}

	b := &Bundle{
		data:        r,
		name:        name,
		size:        bh.UncompressedSize2,
		granularity: int64(bh.UncompressedBlockGranularity),
		blocks:      blocks,
		lastBlock:   -1,
	}

	expectedBlocks := b.size / b.granularity
	if b.size%b.granularity > 0 {
		expectedBlocks++
	}
	if expectedBlocks != int64(len(blocks)) {
		return nil, fmt.Errorf(
			"%w: bundle %s has %d blocks of size %d for %d bytes of data",
			archive.ErrFileType, name, len(blocks), b.granularity, b.size,
		)
	}

	return b, nil
}

// Size returns the decoded size of the bundle.
func (b *Bundle) Size() int64 {
	return b.size
}

// block returns the decoded contents of block i, keeping the most recent
// one since consecutive reads usually hit the same block.
func (b *Bundle) block(i int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastBlock == i {
		return b.lastData, nil
	}

	blk := b.blocks[i]
	rawSize := b.granularity
	if i == len(b.blocks)-1 {
		rawSize = b.size - int64(i)*b.granularity
	}

	raw := make([]byte, blk.length)
	if n, err := b.data.ReadAt(raw, blk.offset); n != len(raw) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: reading block %d of %s: %w", archive.ErrIO, i, b.name, err)
	}

	out, err := codec.Decode(codec.Oodle, raw, rawSize)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d of %s: %w", archive.ErrDecompression, i, b.name, err)
	}

	b.lastBlock, b.lastData = i, out
	return out, nil
}

// ReadAt reads decoded bytes at off. Reads that extend past the decoded
// size fail without reading anything.
func (b *Bundle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: bundle %s read at %d", archive.ErrBounds, b.name, off)
	}
	if err := vfile.CheckRange(uint64(off), uint64(len(p)), uint64(b.size)); err != nil {
		return 0, fmt.Errorf("bundle %s: %w", b.name, err)
	}

	n := 0
	for n < len(p) {
		blkID := int(off / b.granularity)
		blkOff := int(off % b.granularity)

		data, err := b.block(blkID)
		if err != nil {
			return n, err
		}

		copied := copy(p[n:], data[blkOff:])
		n += copied
		off += int64(copied)
	}

	return n, nil
}

// Read returns the entire contents of the bundle decompressed.
func (b *Bundle) Read() ([]byte, error) {
	if b.size > maxReadAll {
		return nil, fmt.Errorf("%w: bundle %s decodes to %d bytes", archive.ErrBounds, b.name, b.size)
	}
	data := make([]byte, b.size)
	if _, err := b.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("reading bundle data: %w", err)
	}
	return data, nil
}

// Section returns a copy of size decoded bytes at off.
func (b *Bundle) Section(off, size int64) ([]byte, error) {
	if size < 0 || size > maxReadAll {
		return nil, fmt.Errorf("%w: bundle %s section of %d bytes", archive.ErrBounds, b.name, size)
	}
	out := make([]byte, size)
	if _, err := b.ReadAt(out, off); err != nil {
		return nil, err
	}
	return out, nil
}
