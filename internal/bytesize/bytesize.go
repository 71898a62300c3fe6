// Package bytesize parses human readable sizes such as "1Mi" or "64KB" used
// in configuration files for buffer and parse limits.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ByteSize is a size in bytes. It decodes from plain numbers or from numbers
// with a binary (Ki, Mi, Gi) or decimal (K, M, G) suffix.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
)

var units = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB,
	"m": MB, "mb": MB,
	"g": GB, "gb": GB,
	"ki": KiB, "kib": KiB,
	"mi": MiB, "mib": MiB,
	"gi": GiB, "gib": GiB,
}

// ParseByteSize parses s into a ByteSize.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	num, unit := s, ""
	if split >= 0 {
		num, unit = s[:split], strings.ToLower(strings.TrimSpace(s[split:]))
	}
	if num == "" {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}

	mult, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", unit)
	}

	if strings.Contains(num, ".") {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", num)
		}
		return ByteSize(f * float64(mult)), nil
	}

	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", num)
	}
	return ByteSize(n) * mult, nil
}

// UnmarshalText lets ByteSize be decoded by mapstructure and yaml.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText writes the shortest exact binary representation.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// String returns an exact representation, e.g. "1Mi" or "1500".
func (b ByteSize) String() string {
	for _, u := range []struct {
		suffix string
		size   ByteSize
	}{{"Gi", GiB}, {"Mi", MiB}, {"Ki", KiB}} {
		if b >= u.size && b%u.size == 0 {
			return strconv.FormatUint(uint64(b/u.size), 10) + u.suffix
		}
	}
	return strconv.FormatUint(uint64(b), 10)
}

// Int returns the size as an int.
func (b ByteSize) Int() int {
	return int(b)
}

// Int64 returns the size as an int64.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
