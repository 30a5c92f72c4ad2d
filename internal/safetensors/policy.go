package safetensors

import (
	"fmt"
	"os"
)

const (
	// DefaultMaxHeaderSize caps the JSON header length.
	DefaultMaxHeaderSize = 1 << 20
	// DefaultLargeFileThreshold is the size at which files are no longer read whole.
	DefaultLargeFileThreshold = 2 << 30
)

// Options carries the size limits for a parse. Zero fields take the defaults.
type Options struct {
	MaxHeaderSize      int64
	LargeFileThreshold int64
}

func DefaultOptions() Options {
	return Options{
		MaxHeaderSize:      DefaultMaxHeaderSize,
		LargeFileThreshold: DefaultLargeFileThreshold,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxHeaderSize <= 0 {
		o.MaxHeaderSize = DefaultMaxHeaderSize
	}
	if o.LargeFileThreshold <= 0 {
		o.LargeFileThreshold = DefaultLargeFileThreshold
	}
	return o
}

// SizeMode is how a file's bytes are reached.
type SizeMode int

const (
	// ModeBuffer reads the whole file into memory.
	ModeBuffer SizeMode = iota
	// ModeHandle keeps a file handle open and reads only the header ranges.
	ModeHandle
)

func (m SizeMode) String() string {
	if m == ModeHandle {
		return "handle"
	}
	return "buffer"
}

func (m SizeMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// SelectMode picks handle mode for files at or above the large-file threshold.
func SelectMode(fileSize int64, opts Options) SizeMode {
	if fileSize >= opts.withDefaults().LargeFileThreshold {
		return ModeHandle
	}
	return ModeBuffer
}

// OpenSource builds the ByteSource for path. fileSize must come from a stat.
func OpenSource(path string, fileSize int64, opts Options) (ByteSource, SizeMode, error) {
	mode := SelectMode(fileSize, opts)
	switch mode {
	case ModeHandle:
		f, err := os.Open(path)
		if err != nil {
			return nil, mode, fmt.Errorf("safetensors: open %s: %w", path, err)
		}
		return NewHandleSource(f, fileSize), mode, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, mode, fmt.Errorf("safetensors: read %s: %w", path, err)
		}
		return NewBufferSource(data), mode, nil
	}
}
