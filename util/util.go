package util

import (
	"fmt"
	"strconv"
)

func ToString(x interface{}) string {
	if x == nil {
		return ""
	}
	return fmt.Sprintf("%v", x)
}

// ToUint parses a decoded JSON parameter, which may be a number or a
// string, as an unsigned integer.
func ToUint(x interface{}) (uint, error) {
	switch v := x.(type) {
	case float64:
		if v < 0 || v != float64(uint(v)) {
			return 0, fmt.Errorf("not an unsigned integer: %v", v)
		}
		return uint(v), nil
	case nil:
		return 0, fmt.Errorf("missing value")
	}
	intVal, err := strconv.ParseUint(ToString(x), 10, 64)
	return uint(intVal), err
}

// ClosestPowerOf2 returns the largest power of two not above n.
func ClosestPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	p := uint64(1)
	for n > 1 {
		n >>= 1
		p <<= 1
	}
	return p
}
