package safetensors

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// prefixSize is the width of the little-endian header length.
const prefixSize = 8

// Header is the raw JSON header of a safetensors file.
type Header struct {
	Text      string
	Length    uint64
	DataStart int64
	Digest    uint64
}

// ReadHeader reads the length prefix and JSON header from src.
//
// Both size checks run before any header byte is read, so a hostile length
// never causes an allocation larger than maxHeaderSize.
func ReadHeader(src ByteSource, fileSize, maxHeaderSize int64) (Header, error) {
	if maxHeaderSize <= 0 {
		maxHeaderSize = DefaultMaxHeaderSize
	}
	if fileSize < prefixSize {
		return Header{}, headerError(KindTruncated,
			fmt.Sprintf("file is %d bytes, too small for the %d-byte header length", fileSize, prefixSize), nil)
	}

	prefix, err := src.ReadRange(0, prefixSize)
	if err != nil {
		return Header{}, fmt.Errorf("safetensors: read header length: %w", err)
	}
	n := binary.LittleEndian.Uint64(prefix)

	if n > uint64(fileSize-prefixSize) {
		return Header{}, headerError(KindTruncated,
			fmt.Sprintf("header length %d exceeds file size %d", n, fileSize), nil)
	}
	if n > uint64(maxHeaderSize) {
		return Header{}, headerError(KindTooLarge,
			fmt.Sprintf("header length %d exceeds limit of %d bytes", n, maxHeaderSize), nil)
	}

	raw, err := src.ReadRange(prefixSize, int64(n))
	if err != nil {
		return Header{}, fmt.Errorf("safetensors: read header: %w", err)
	}
	if !utf8.Valid(raw) {
		return Header{}, headerError(KindEncoding, "header contains invalid UTF-8", nil)
	}

	return Header{
		Text:      string(raw),
		Length:    n,
		DataStart: prefixSize + int64(n),
		Digest:    xxhash.Sum64(raw),
	}, nil
}
