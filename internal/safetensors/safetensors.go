// Package safetensors reads the tensor catalog of a safetensors file from its
// header alone. Tensor payloads are never loaded.
//
// File layout:
//
//	[0, 8)           little-endian uint64 header length L
//	[8, 8+L)         UTF-8 JSON object: tensor name -> descriptor, plus "__metadata__"
//	[8+L, fileSize)  raw tensor bytes, addressed by data_offsets relative to 8+L
package safetensors

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/samcharles93/ckptinspect/internal/logger"
	"github.com/samcharles93/ckptinspect/internal/metrics"
)

// FormatName labels safetensors parses in metrics and views.
const FormatName = "safetensors"

// Parse builds the catalog for the file at path. Files below the large-file
// threshold are read whole; larger ones are read through a file handle that is
// closed before Parse returns.
func Parse(ctx context.Context, path string, opts Options) (cat *Catalog, err error) {
	opts = opts.withDefaults()
	log := logger.FromContext(ctx).With("path", path)
	started := time.Now()
	modeLabel := ""
	defer func() {
		metrics.RecordParse(FormatName, modeLabel, err, time.Since(started))
	}()

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: stat %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("safetensors: %s is a directory", path)
	}
	size := st.Size()

	src, mode, err := OpenSource(path, size, opts)
	modeLabel = mode.String()
	if err != nil {
		return nil, err
	}
	h, err := readAndRelease(src, size, opts.MaxHeaderSize)
	if err != nil {
		log.Debug("header rejected", "mode", mode, "err", err)
		return nil, err
	}

	cat, err = Build(h, size)
	if err != nil {
		return nil, err
	}
	cat.Mode = mode
	report(log, cat)
	return cat, nil
}

// ParseBytes builds the catalog for a file already held in memory.
func ParseBytes(data []byte, opts Options) (*Catalog, error) {
	opts = opts.withDefaults()
	size := int64(len(data))
	h, err := readAndRelease(NewBufferSource(data), size, opts.MaxHeaderSize)
	if err != nil {
		return nil, err
	}
	cat, err := Build(h, size)
	if err != nil {
		return nil, err
	}
	cat.Mode = ModeBuffer
	metrics.RecordHeader(cat.HeaderSize, cat.Skipped())
	return cat, nil
}

// readAndRelease reads the header and closes src on every path out.
func readAndRelease(src ByteSource, fileSize, maxHeaderSize int64) (h Header, err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("safetensors: release source: %w", cerr)
		}
	}()
	return ReadHeader(src, fileSize, maxHeaderSize)
}

func report(log logger.Logger, cat *Catalog) {
	metrics.RecordHeader(cat.HeaderSize, cat.Skipped())
	for _, w := range cat.Warnings {
		log.Debug("header entry warning", "tensor", w.Tensor, "kind", w.Kind.String(), "reason", w.Reason)
	}
	log.Info("parsed safetensors header",
		"mode", cat.Mode.String(),
		"tensors", len(cat.Tensors),
		"skipped", cat.Skipped(),
		"header_bytes", cat.HeaderSize,
		"file_bytes", cat.TotalSize,
	)
}
