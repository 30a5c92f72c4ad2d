package safetensors

import (
	"errors"
	"fmt"
	"io"
)

// ByteSource serves bounded range reads over one checkpoint file.
// ReadRange returns exactly length bytes or an error.
type ByteSource interface {
	ReadRange(offset, length int64) ([]byte, error)
	Close() error
}

// BufferSource serves ranges out of a fully resident file.
type BufferSource struct {
	data []byte
}

func NewBufferSource(data []byte) *BufferSource {
	return &BufferSource{data: data}
}

func (s *BufferSource) ReadRange(offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length, int64(len(s.data))); err != nil {
		return nil, err
	}
	end := offset + length
	return s.data[offset:end:end], nil
}

func (s *BufferSource) Size() int64 { return int64(len(s.data)) }

func (s *BufferSource) Close() error { return nil }

// ReaderAtCloser is the handle behind a HandleSource. *os.File satisfies it.
type ReaderAtCloser interface {
	io.ReaderAt
	io.Closer
}

// HandleSource serves ranges with one positioned read each.
// Close releases the handle and may be called more than once.
type HandleSource struct {
	h    ReaderAtCloser
	size int64
}

func NewHandleSource(h ReaderAtCloser, size int64) *HandleSource {
	return &HandleSource{h: h, size: size}
}

func (s *HandleSource) ReadRange(offset, length int64) ([]byte, error) {
	if s.h == nil {
		return nil, errors.New("safetensors: read from closed source")
	}
	if err := checkRange(offset, length, s.size); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := s.h.ReadAt(buf, offset)
	if int64(n) == length {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("safetensors: read %d bytes at offset %d: %w", length, offset, err)
}

func (s *HandleSource) Size() int64 { return s.size }

func (s *HandleSource) Close() error {
	if s.h == nil {
		return nil
	}
	err := s.h.Close()
	s.h = nil
	return err
}

func checkRange(offset, length, size int64) error {
	if offset < 0 || length < 0 {
		return fmt.Errorf("safetensors: invalid range offset=%d length=%d", offset, length)
	}
	if offset > size || length > size-offset {
		return fmt.Errorf("safetensors: range [%d, %d) beyond %d-byte source: %w",
			offset, offset+length, size, io.ErrUnexpectedEOF)
	}
	return nil
}
