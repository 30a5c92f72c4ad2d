// Package tensorfmt holds the display helpers shared by every checkpoint view.
// All functions are total: bad input yields a best-effort value, never an error.
package tensorfmt

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

var byteUnits = [...]string{"B", "KB", "MB", "GB", "TB"}

// dtypeWidths maps safetensors dtype tags to their element width in bytes.
var dtypeWidths = map[string]int{
	"F64": 8, "I64": 8, "U64": 8,
	"F32": 4, "I32": 4, "U32": 4,
	"F16": 2, "BF16": 2, "I16": 2, "U16": 2,
	"I8": 1, "U8": 1, "BOOL": 1,
	"F8_E4M3": 1, "F8_E5M2": 1,
}

// defaultDTypeWidth is reported for tags missing from dtypeWidths.
const defaultDTypeWidth = 4

var torchDTypes = map[string]string{
	"torch.float64":  "F64",
	"torch.float32":  "F32",
	"torch.float16":  "F16",
	"torch.bfloat16": "BF16",
	"torch.int64":    "I64",
	"torch.int32":    "I32",
	"torch.int16":    "I16",
	"torch.int8":     "I8",
	"torch.uint8":    "U8",
	"torch.bool":     "BOOL",
}

// ElementCount returns the product of the dimensions in shape.
// A scalar (empty shape) has one element. Negative dimensions count as zero
// and the result saturates at math.MaxInt64.
func ElementCount(shape []int64) int64 {
	var n uint64 = 1
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo > math.MaxInt64 {
			n = math.MaxInt64
			continue
		}
		n = lo
	}
	return int64(n)
}

// DTypeByteWidth returns the element width for dtype, or 4 if the tag is unknown.
func DTypeByteWidth(dtype string) int {
	if w, ok := dtypeWidths[dtype]; ok {
		return w
	}
	return defaultDTypeWidth
}

// KnownDType reports whether dtype has an entry in the width table.
func KnownDType(dtype string) bool {
	_, ok := dtypeWidths[dtype]
	return ok
}

// FormatByteSize renders n using 1024-based units with two decimals.
func FormatByteSize(n int64) string {
	sign := ""
	size := float64(n)
	if n < 0 {
		sign = "-"
		size = -size
	}
	unit := 0
	for size >= 1024 && unit < len(byteUnits)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%s%.2f %s", sign, size, byteUnits[unit])
}

// NormalizeDType maps torch dtype names onto safetensors tags.
// Tags it does not recognise are returned unchanged.
func NormalizeDType(dtype string) string {
	if tag, ok := torchDTypes[dtype]; ok {
		return tag
	}
	return dtype
}

// DTypeCategory buckets a dtype into float, int, uint, bool or other.
func DTypeCategory(dtype string) string {
	tag := NormalizeDType(dtype)
	switch {
	case tag == "BOOL":
		return "bool"
	case strings.HasPrefix(tag, "F"), strings.HasPrefix(tag, "BF"):
		return "float"
	case strings.HasPrefix(tag, "I"):
		return "int"
	case strings.HasPrefix(tag, "U"):
		return "uint"
	default:
		return "other"
	}
}

// FormatShape renders a shape as "[2, 3]".
func FormatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormatCount renders n with comma thousands separators.
func FormatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// GroupByPrefix buckets names by their first dotted segment.
// Names without a dot land in "root". Each bucket is sorted.
func GroupByPrefix(names []string) map[string][]string {
	groups := make(map[string][]string)
	for _, name := range names {
		prefix := "root"
		if i := strings.IndexByte(name, '.'); i > 0 {
			prefix = name[:i]
		}
		groups[prefix] = append(groups[prefix], name)
	}
	for _, g := range groups {
		sort.Strings(g)
	}
	return groups
}
