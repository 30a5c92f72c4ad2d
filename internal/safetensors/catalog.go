package safetensors

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ckptinspect/internal/tensorfmt"
)

// MetadataKey is the reserved header key for free-form metadata.
const MetadataKey = "__metadata__"

// TensorRecord describes one tensor. DataOffsets are relative to the data region.
type TensorRecord struct {
	Name        string   `json:"name"`
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

func (r TensorRecord) SizeInBytes() int64 { return r.DataOffsets[1] - r.DataOffsets[0] }

// WarningKind separates dropped entries from kept-but-suspicious ones.
type WarningKind int

const (
	// WarningSkipped means the entry was malformed and dropped.
	WarningSkipped WarningKind = iota
	// WarningInconsistent means the entry was kept but disagrees with itself or the file.
	WarningInconsistent
	// WarningMetadata means the reserved metadata entry was unusable.
	WarningMetadata
)

func (k WarningKind) String() string {
	switch k {
	case WarningSkipped:
		return "skipped"
	case WarningInconsistent:
		return "inconsistent"
	case WarningMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

func (k WarningKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Warning is a recoverable problem found while building a catalog.
type Warning struct {
	Tensor string      `json:"tensor"`
	Kind   WarningKind `json:"kind"`
	Reason string      `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %q: %s", w.Kind, w.Tensor, w.Reason)
}

// Catalog is the tensor inventory of one file. It is built fresh per parse
// and never mutated afterwards.
type Catalog struct {
	Tensors    []TensorRecord `json:"tensors"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TotalSize  int64          `json:"total_size"`
	HeaderSize uint64         `json:"header_size"`
	DataStart  int64          `json:"data_start"`
	Digest     uint64         `json:"digest"`
	Mode       SizeMode       `json:"mode"`
	Warnings   []Warning      `json:"warnings,omitempty"`
}

// Tensor looks a record up by name.
func (c *Catalog) Tensor(name string) (TensorRecord, bool) {
	for _, t := range c.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorRecord{}, false
}

// Sorted returns a name-ordered copy of the records.
func (c *Catalog) Sorted() []TensorRecord {
	out := append([]TensorRecord(nil), c.Tensors...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Skipped counts the dropped entries.
func (c *Catalog) Skipped() int {
	n := 0
	for _, w := range c.Warnings {
		if w.Kind == WarningSkipped {
			n++
		}
	}
	return n
}

// PayloadBytes sums the declared sizes of all records.
func (c *Catalog) PayloadBytes() int64 {
	var total int64
	for _, t := range c.Tensors {
		total += t.SizeInBytes()
	}
	return total
}

// Build turns a header into a catalog. Malformed tensor entries are dropped
// with a warning; only a header that is not a JSON object is fatal.
func Build(h Header, fileSize int64) (*Catalog, error) {
	root, err := decodeRoot([]byte(h.Text))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(root))
	for name := range root {
		names = append(names, name)
	}
	sort.Strings(names)

	cat := &Catalog{
		Tensors:    make([]TensorRecord, 0, len(names)),
		TotalSize:  fileSize,
		HeaderSize: h.Length,
		DataStart:  h.DataStart,
		Digest:     h.Digest,
	}
	for _, name := range names {
		value := root[name]
		if name == MetadataKey {
			meta, ok := value.(map[string]any)
			if !ok {
				cat.Warnings = append(cat.Warnings, Warning{Tensor: name, Kind: WarningMetadata,
					Reason: "metadata is " + jsonKind(value) + ", not an object"})
				continue
			}
			cat.Metadata = plainNumbers(meta).(map[string]any)
			continue
		}

		rec, reason := parseDescriptor(name, value)
		if reason != "" {
			cat.Warnings = append(cat.Warnings, Warning{Tensor: name, Kind: WarningSkipped, Reason: reason})
			continue
		}
		cat.Tensors = append(cat.Tensors, rec)
		cat.Warnings = append(cat.Warnings, checkConsistency(rec, h.DataStart, fileSize)...)
	}
	return cat, nil
}

func decodeRoot(text []byte) (map[string]any, error) {
	if !json.Valid(text) {
		var probe any
		err := json.Unmarshal(text, &probe)
		if err == nil {
			err = fmt.Errorf("malformed JSON")
		}
		return nil, headerError(KindInvalidJSON, "parse header JSON", err)
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, headerError(KindInvalidJSON, "parse header JSON", err)
	}
	root, ok := v.(map[string]any)
	if !ok {
		return nil, headerError(KindNotAnObject, "header is "+jsonKind(v)+", expected an object", nil)
	}
	return root, nil
}

// parseDescriptor validates one tensor entry. A non-empty reason means skip.
func parseDescriptor(name string, v any) (TensorRecord, string) {
	obj, ok := v.(map[string]any)
	if !ok {
		return TensorRecord{}, "descriptor is " + jsonKind(v) + ", not an object"
	}

	dtype, ok := obj["dtype"].(string)
	if !ok || dtype == "" {
		return TensorRecord{}, "missing or non-string dtype"
	}

	rawShape, ok := obj["shape"].([]any)
	if !ok {
		return TensorRecord{}, "missing or non-array shape"
	}
	shape := make([]int64, len(rawShape))
	for i, d := range rawShape {
		n, ok := toInt64(d)
		if !ok || n < 0 {
			return TensorRecord{}, fmt.Sprintf("shape[%d] is not a non-negative integer", i)
		}
		shape[i] = n
	}

	offsets, ok := obj["data_offsets"].([]any)
	if !ok {
		return TensorRecord{}, "missing or non-array data_offsets"
	}
	if len(offsets) != 2 {
		return TensorRecord{}, fmt.Sprintf("data_offsets has %d elements, want 2", len(offsets))
	}
	start, ok1 := toInt64(offsets[0])
	end, ok2 := toInt64(offsets[1])
	if !ok1 || !ok2 {
		return TensorRecord{}, "data_offsets are not integers"
	}
	if start < 0 || end < 0 {
		return TensorRecord{}, fmt.Sprintf("negative data_offsets [%d, %d]", start, end)
	}
	if end <= start {
		return TensorRecord{}, fmt.Sprintf("data_offsets [%d, %d] are empty or inverted", start, end)
	}

	return TensorRecord{
		Name:        name,
		DType:       dtype,
		Shape:       shape,
		DataOffsets: [2]int64{start, end},
	}, ""
}

// checkConsistency reports records whose declared span disagrees with their
// shape and dtype, or runs past the end of the file. Such records are kept.
func checkConsistency(rec TensorRecord, dataStart, fileSize int64) []Warning {
	var out []Warning
	size := rec.SizeInBytes()
	if tensorfmt.KnownDType(rec.DType) {
		width := int64(tensorfmt.DTypeByteWidth(rec.DType))
		count := tensorfmt.ElementCount(rec.Shape)
		if count > math.MaxInt64/width || count*width != size {
			out = append(out, Warning{Tensor: rec.Name, Kind: WarningInconsistent,
				Reason: fmt.Sprintf("shape %v at %d bytes per %s element does not fill the %d-byte data_offsets span",
					rec.Shape, width, rec.DType, size)})
		}
	}
	if avail := fileSize - dataStart; rec.DataOffsets[1] > avail {
		out = append(out, Warning{Tensor: rec.Name, Kind: WarningInconsistent,
			Reason: fmt.Sprintf("data ends at offset %d but the data region holds %d bytes",
				rec.DataOffsets[1], max(avail, 0))})
	}
	return out
}

func toInt64(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	return integralNumber(string(n))
}

// integralNumber accepts whole numbers spelled with a fraction or exponent,
// such as 24.0 or 2.4e1. The decimal must convert exactly.
func integralNumber(s string) (int64, bool) {
	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil || f.Acc() != big.Exact || !f.IsInt() {
		return 0, false
	}
	i, acc := f.Int64()
	return i, acc == big.Exact
}

// plainNumbers turns the json.Number values left by UseNumber back into
// float64 so metadata reads like an ordinary JSON decode.
func plainNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = plainNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = plainNumbers(e)
		}
		return x
	default:
		return v
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
