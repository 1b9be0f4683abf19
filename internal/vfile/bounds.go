package vfile

import (
	"fmt"
	"math/bits"
)

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d*%d overflows", ErrOutOfRange, a, b)
	}
	return lo, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d+%d overflows", ErrOutOfRange, a, b)
	}
	return sum, nil
}

// CheckRange reports whether [off, off+length) fits in size.
func CheckRange(off, length, size uint64) error {
	end, err := checkedAdd(off, length)
	if err != nil {
		return err
	}
	if end > size {
		return fmt.Errorf("%w: %d+%d exceeds %d", ErrOutOfRange, off, length, size)
	}
	return nil
}

// CheckTable reports whether a table of count records of recSize bytes at
// off fits in size. Callers must run it before allocating for the table.
func CheckTable(off, count, recSize, size uint64) error {
	length, err := checkedMul(count, recSize)
	if err != nil {
		return err
	}
	if err := CheckRange(off, length, size); err != nil {
		return fmt.Errorf("table of %d records: %w", count, err)
	}
	return nil
}
