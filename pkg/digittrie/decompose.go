package digittrie

import (
	"fmt"
	"math"
)

// Digits returns the nbDigits big-endian digits of value in the given base.
func Digits(value uint64, base, nbDigits int) ([]int, error) {
	max, err := domainSize(base, nbDigits)
	if err != nil {
		return nil, err
	}
	if value >= max {
		return nil, fmt.Errorf(
			"value %d out of range for %d digits in base %d", value, nbDigits, base,
		)
	}

	digits := make([]int, nbDigits)
	for i := nbDigits - 1; i >= 0; i-- {
		digits[i] = int(value % uint64(base))
		value /= uint64(base)
	}
	return digits, nil
}

// Value is the inverse of Digits.
func Value(digits []int, base int) uint64 {
	var value uint64
	for _, d := range digits {
		value = value*uint64(base) + uint64(d)
	}
	return value
}

// Decompose returns the minimal set of digit prefixes covering the inclusive
// range [start, end]. Each prefix stands for every value sharing it.
func Decompose(start, end uint64, base, nbDigits int) ([][]int, error) {
	max, err := domainSize(base, nbDigits)
	if err != nil {
		return nil, err
	}
	if start > end {
		return nil, fmt.Errorf("invalid range [%d, %d]", start, end)
	}
	if end >= max {
		return nil, fmt.Errorf(
			"range end %d out of range for %d digits in base %d", end, nbDigits, base,
		)
	}

	prefixes := make([][]int, 0)
	cur := start
	for {
		// Largest aligned block starting at cur and ending within the range.
		// Blocks never span the whole domain so that prefixes stay non-empty.
		k, block := 0, uint64(1)
		for k < nbDigits-1 {
			next := block * uint64(base)
			if cur%next != 0 || cur+next-1 > end {
				break
			}
			k++
			block = next
		}

		digits, err := Digits(cur, base, nbDigits)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, digits[:nbDigits-k])

		if end-cur < block {
			return prefixes, nil
		}
		cur += block
	}
}

func domainSize(base, nbDigits int) (uint64, error) {
	if base < 2 {
		return 0, fmt.Errorf("invalid base %d, must be at least 2", base)
	}
	if nbDigits < 1 {
		return 0, fmt.Errorf("invalid number of digits %d", nbDigits)
	}
	size := uint64(1)
	for i := 0; i < nbDigits; i++ {
		if size > math.MaxUint64/uint64(base) {
			return 0, fmt.Errorf(
				"%d digits in base %d overflow 64 bits", nbDigits, base,
			)
		}
		size *= uint64(base)
	}
	return size, nil
}
