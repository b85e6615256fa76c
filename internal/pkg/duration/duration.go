package duration

import (
	"fmt"
	"strconv"

	"github.com/account-validity/internal/domain"
)

const (
	second = int64(1000)
	minute = 60 * second
	hour   = 60 * minute
	day    = 24 * hour
	week   = 7 * day
	year   = 365 * day // fixed, no leap-year adjustment
)

var sizes = map[byte]int64{
	's': second,
	'm': minute,
	'h': hour,
	'd': day,
	'w': week,
	'y': year,
}

// Parse converts a human-readable duration to milliseconds.
//
// The value may carry a single-letter suffix of 's', 'm', 'h', 'd', 'w' or
// 'y'; a bare numeral is already milliseconds and is returned unchanged.
func Parse(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty duration: %w", domain.ErrInvalidFormat)
	}
	size := int64(1)
	if mult, ok := sizes[value[len(value)-1]]; ok {
		value = value[:len(value)-1]
		size = mult
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", value, domain.ErrInvalidFormat)
	}
	return n * size, nil
}
