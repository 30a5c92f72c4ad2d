package inspect

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ckptinspect/internal/tensorfmt"
)

// TextOptions controls WriteText.
type TextOptions struct {
	// Limit caps the number of tensor rows printed. Zero prints all.
	Limit int
	// Filter keeps rows whose name contains it.
	Filter string
	// Warnings prints every warning instead of just the count.
	Warnings bool
}

// WriteText renders doc as the plain-text report printed by `ckpt inspect`.
func WriteText(w io.Writer, doc *Document, opts TextOptions) error {
	p := &printer{w: w}

	p.printf("Checkpoint: %s\n", doc.Path)
	p.row("Format", doc.Format)
	p.row("Layout", doc.Layout)
	p.row("File size", fmt.Sprintf("%s (%s bytes)", tensorfmt.FormatByteSize(doc.TotalSize), tensorfmt.FormatCount(doc.TotalSize)))
	p.row("Read mode", doc.Mode)
	p.row("Digest", doc.Digest)
	if doc.LargeFile {
		p.printf("Large file: only the header was read; tensor data was not loaded.\n")
	}

	if doc.Failed() {
		p.section("Error")
		p.printf("%s\n", doc.Err)
		if doc.Traceback != "" {
			p.printf("\n%s\n", doc.Traceback)
		}
		if len(doc.Hints) > 0 {
			p.printf("\nTroubleshooting:\n")
			for _, h := range doc.Hints {
				p.printf("  - %s\n", h)
			}
		}
		return p.err
	}

	sum := doc.Summary()
	p.section("Summary")
	p.row("Tensors", tensorfmt.FormatCount(int64(sum.Tensors)))
	p.row("Parameters", tensorfmt.FormatCount(sum.Parameters))
	p.row("Tensor bytes", tensorfmt.FormatByteSize(sum.PayloadBytes))
	p.groups(doc.Rows)

	if len(doc.Metadata) > 0 {
		p.section("Metadata")
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.row(k, metadataValue(doc.Metadata[k]))
		}
	}

	p.section("Tensors")
	total, printed := 0, 0
	for _, r := range doc.Rows {
		if opts.Filter != "" && !strings.Contains(r.Name, opts.Filter) {
			continue
		}
		total++
		if opts.Limit > 0 && printed >= opts.Limit {
			continue
		}
		line := fmt.Sprintf("%s  dtype=%s shape=%s params=%s size=%s",
			r.Name, r.DType, tensorfmt.FormatShape(r.Shape), tensorfmt.FormatCount(r.Elements), tensorfmt.FormatByteSize(r.SizeInBytes))
		if r.Device != "" {
			line += " device=" + r.Device
		}
		if r.Shard != "" {
			line += " shard=" + r.Shard
		}
		if r.Error != "" {
			line += " error=" + r.Error
		}
		p.printf("%s\n", line)
		printed++
	}
	if total == 0 {
		p.printf("(no tensors)\n")
	}
	if printed < total {
		p.printf("... (%d shown of %d)\n", printed, total)
	}

	if len(doc.Warnings) > 0 {
		p.section("Warnings")
		if opts.Warnings {
			for _, w := range doc.Warnings {
				p.printf("%s\n", w)
			}
		} else {
			p.printf("%d warnings (use --warnings to list them)\n", len(doc.Warnings))
		}
	}
	return p.err
}

// groups prints tensor counts and sizes per top-level name prefix.
func (p *printer) groups(rows []Row) {
	if len(rows) == 0 {
		return
	}
	names := make([]string, len(rows))
	bytesByName := make(map[string]int64, len(rows))
	for i, r := range rows {
		names[i] = r.Name
		bytesByName[r.Name] += r.SizeInBytes
	}
	groups := tensorfmt.GroupByPrefix(names)
	prefixes := make([]string, 0, len(groups))
	for prefix := range groups {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	p.section("Groups")
	for _, prefix := range prefixes {
		var size int64
		for _, name := range groups[prefix] {
			size += bytesByName[name]
		}
		p.row(prefix, fmt.Sprintf("%d tensors, %s", len(groups[prefix]), tensorfmt.FormatByteSize(size)))
	}
}

func metadataValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// printer keeps the first write error so rendering code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) section(title string) {
	line := strings.Repeat("-", len(title)+8)
	p.printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func (p *printer) row(label, value string) {
	if value == "" {
		return
	}
	p.printf("%-24s %s\n", label+":", value)
}
