// Package inspect turns parsed checkpoints into the flat document shown by the
// CLI and the HTTP API. Safetensors files are parsed in-process; pickle-based
// checkpoints go through the external pytorch tool.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/ckptinspect/internal/logger"
	"github.com/samcharles93/ckptinspect/internal/pytorch"
	"github.com/samcharles93/ckptinspect/internal/safetensors"
	"github.com/samcharles93/ckptinspect/internal/tensorfmt"
)

// Document formats.
const (
	FormatSafetensors = safetensors.FormatName
	FormatPyTorch     = pytorch.FormatName
	FormatSharded     = "safetensors-index"
)

// IndexSuffix marks a sharded safetensors index (model.safetensors.index.json).
const IndexSuffix = ".index.json"

// ErrUnsupported is returned by Open for paths whose extension maps to no format.
var ErrUnsupported = errors.New("inspect: unsupported file type")

// Row is one tensor as presented, whichever source produced it.
type Row struct {
	Name        string  `json:"name"`
	DType       string  `json:"dtype"`
	Category    string  `json:"category"`
	Shape       []int64 `json:"shape"`
	Elements    int64   `json:"elements"`
	SizeInBytes int64   `json:"size_in_bytes"`
	Device      string  `json:"device,omitempty"`
	Shard       string  `json:"shard,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Document is the result of one inspection. Each Open or Refresh produces a
// new Document with a new ID; documents are never updated in place.
type Document struct {
	ID        string         `json:"id"`
	Path      string         `json:"path"`
	Format    string         `json:"format"`
	Layout    string         `json:"layout,omitempty"`
	TotalSize int64          `json:"total_size"`
	Mode      string         `json:"mode,omitempty"`
	LargeFile bool           `json:"large_file"`
	Rows      []Row          `json:"rows"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Err       string         `json:"error,omitempty"`
	Traceback string         `json:"traceback,omitempty"`
	Hints     []string       `json:"hints,omitempty"`
	Digest    string         `json:"digest,omitempty"`
	ParsedAt  time.Time      `json:"parsed_at"`
}

// Failed reports whether the parse failed and the document is a fallback.
func (d *Document) Failed() bool { return d.Err != "" }

// Summary holds document-wide totals.
type Summary struct {
	Tensors      int   `json:"tensors"`
	Parameters   int64 `json:"parameters"`
	PayloadBytes int64 `json:"payload_bytes"`
}

// Summary totals the rows. Sums saturate rather than wrap.
func (d *Document) Summary() Summary {
	s := Summary{Tensors: len(d.Rows)}
	for _, r := range d.Rows {
		s.Parameters = addSat(s.Parameters, r.Elements)
		s.PayloadBytes = addSat(s.PayloadBytes, r.SizeInBytes)
	}
	return s
}

// Inspector opens checkpoints. The zero value uses default options and the
// default tool configuration.
type Inspector struct {
	Options safetensors.Options
	Tool    pytorch.Tool
}

// DetectFormat maps a path to a document format by its extension.
func DetectFormat(path string) (string, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, IndexSuffix) {
		return FormatSharded, nil
	}
	switch filepath.Ext(lower) {
	case ".safetensors":
		return FormatSafetensors, nil
	case ".pt", ".pth", ".bin", ".ckpt":
		return FormatPyTorch, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
}

// Open inspects the file at path. A failed parse still yields a Document: it
// carries the size from stat, no rows and the failure in Err. Open returns an
// error only when the path has no known format or cannot be stat'd.
func (in *Inspector) Open(ctx context.Context, path string) (*Document, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspect: %w", err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("inspect: %s is a directory", path)
	}

	log := logger.FromContext(ctx).With("path", path, "format", format)
	doc := &Document{
		ID:        uuid.NewString(),
		Path:      path,
		Format:    format,
		TotalSize: st.Size(),
		LargeFile: safetensors.SelectMode(st.Size(), in.Options) == safetensors.ModeHandle,
		Rows:      []Row{},
		ParsedAt:  time.Now().UTC(),
	}

	switch format {
	case FormatSafetensors:
		err = in.fillSafetensors(ctx, doc)
	case FormatPyTorch:
		err = in.fillPyTorch(ctx, doc)
	case FormatSharded:
		err = in.fillSharded(ctx, doc)
	}
	if err != nil {
		log.Warn("inspection failed", "err", err)
		doc.fail(err, st.Size())
		return doc, nil
	}
	log.Debug("inspection finished", "id", doc.ID, "rows", len(doc.Rows), "warnings", len(doc.Warnings))
	return doc, nil
}

// Refresh re-reads the document's file from scratch. Earlier documents are
// left untouched and stay valid.
func (in *Inspector) Refresh(ctx context.Context, doc *Document) (*Document, error) {
	if doc == nil || doc.Path == "" {
		return nil, errors.New("inspect: refresh needs a document with a path")
	}
	return in.Open(ctx, doc.Path)
}

func (d *Document) fail(err error, statSize int64) {
	d.Rows = []Row{}
	d.Metadata = nil
	d.Mode = ""
	d.Digest = ""
	d.TotalSize = statSize
	d.Err = err.Error()

	var te *pytorch.ToolError
	if errors.As(err, &te) {
		d.Traceback = te.Traceback
		d.Hints = te.Suggestions
	}
}

func (in *Inspector) fillSafetensors(ctx context.Context, doc *Document) error {
	cat, err := safetensors.Parse(ctx, doc.Path, in.Options)
	if err != nil {
		return err
	}
	doc.TotalSize = cat.TotalSize
	doc.Mode = cat.Mode.String()
	doc.LargeFile = cat.Mode == safetensors.ModeHandle
	doc.Metadata = cat.Metadata
	doc.Digest = fmt.Sprintf("%016x", cat.Digest)
	doc.Rows = rowsFromCatalog(cat, "")
	for _, w := range cat.Warnings {
		doc.Warnings = append(doc.Warnings, w.String())
	}
	return nil
}

func (in *Inspector) fillPyTorch(ctx context.Context, doc *Document) error {
	res, err := in.Tool.Invoke(ctx, doc.Path)
	if err != nil {
		return err
	}
	if res.FileSize > 0 {
		doc.TotalSize = res.FileSize
	}
	doc.Layout = res.FormatType
	doc.Metadata = res.Metadata
	doc.Rows = make([]Row, 0, len(res.Tensors))
	for _, t := range res.Tensors {
		elems := t.Numel
		if elems == 0 && t.Error == "" {
			elems = tensorfmt.ElementCount(t.Shape)
		}
		dtype := tensorfmt.NormalizeDType(t.DType)
		doc.Rows = append(doc.Rows, Row{
			Name:        t.Name,
			DType:       dtype,
			Category:    tensorfmt.DTypeCategory(dtype),
			Shape:       nonNilShape(t.Shape),
			Elements:    elems,
			SizeInBytes: t.SizeBytes,
			Device:      t.Device,
			Error:       t.Error,
		})
	}
	sortRows(doc.Rows)
	return nil
}

func rowsFromCatalog(cat *safetensors.Catalog, shard string) []Row {
	rows := make([]Row, 0, len(cat.Tensors))
	for _, rec := range cat.Sorted() {
		rows = append(rows, Row{
			Name:        rec.Name,
			DType:       rec.DType,
			Category:    tensorfmt.DTypeCategory(rec.DType),
			Shape:       nonNilShape(rec.Shape),
			Elements:    tensorfmt.ElementCount(rec.Shape),
			SizeInBytes: rec.SizeInBytes(),
			Shard:       shard,
		})
	}
	return rows
}

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
}

func nonNilShape(shape []int64) []int64 {
	if shape == nil {
		return []int64{}
	}
	return shape
}

func addSat(a, b int64) int64 {
	if b > 0 && a > (1<<63-1)-b {
		return 1<<63 - 1
	}
	return a + b
}
