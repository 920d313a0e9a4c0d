package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes that accepts human-readable values such as
// "15MiB", "512 KB" or a raw byte count.
type ByteSize int64

func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("config: parsing byte size %q failed: %w", s, err)
	}
	return ByteSize(n), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) Int() int {
	return int(b)
}

func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.IBytes(uint64(b))
}
