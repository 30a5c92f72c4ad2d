package inspect

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/ckptinspect/internal/logger"
	"github.com/samcharles93/ckptinspect/internal/safetensors"
)

// MaxIndexSize caps the size of a shard index file.
const MaxIndexSize = 64 << 20

// shardParallelism bounds concurrent shard header reads.
const shardParallelism = 4

type shardIndex struct {
	Metadata  map[string]any    `json:"metadata,omitempty"`
	WeightMap map[string]string `json:"weight_map"`
}

type shardResult struct {
	name string
	cat  *safetensors.Catalog
	err  error
}

// fillSharded reads a model.safetensors.index.json and merges the catalogs of
// every shard it references. A shard that fails to parse becomes a warning;
// the document fails only when no shard parses.
func (in *Inspector) fillSharded(ctx context.Context, doc *Document) error {
	idx, err := readIndex(doc.Path)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	dir := filepath.Dir(doc.Path)

	expected := make(map[string][]string)
	for tensor, shard := range idx.WeightMap {
		expected[shard] = append(expected[shard], tensor)
	}
	shards := make([]string, 0, len(expected))
	for shard := range expected {
		shards = append(shards, shard)
	}
	sort.Strings(shards)

	results := make([]shardResult, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shardParallelism)
	for i, shard := range shards {
		results[i].name = shard
		if shard == "" || !filepath.IsLocal(shard) {
			results[i].err = fmt.Errorf("shard path %q is outside the index directory", shard)
			continue
		}
		g.Go(func() error {
			cat, err := safetensors.Parse(gctx, filepath.Join(dir, shard), in.Options)
			results[i].cat, results[i].err = cat, err
			return nil
		})
	}
	_ = g.Wait()

	var (
		parsed   int
		firstErr error
		modes    = make(map[string]bool)
		digest   []byte
	)
	doc.TotalSize = 0
	doc.LargeFile = false
	for _, r := range results {
		if r.err != nil {
			log.Warn("shard failed", "shard", r.name, "err", r.err)
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("shard %s: %v", r.name, r.err))
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		parsed++
		cat := r.cat
		doc.TotalSize += cat.TotalSize
		doc.LargeFile = doc.LargeFile || cat.Mode == safetensors.ModeHandle
		modes[cat.Mode.String()] = true
		digest = binary.LittleEndian.AppendUint64(digest, cat.Digest)
		doc.Rows = append(doc.Rows, rowsFromCatalog(cat, r.name)...)
		for _, w := range cat.Warnings {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("shard %s: %s", r.name, w))
		}

		missing := expected[r.name]
		sort.Strings(missing)
		for _, tensor := range missing {
			if _, ok := cat.Tensor(tensor); !ok {
				doc.Warnings = append(doc.Warnings,
					fmt.Sprintf("shard %s: tensor %q listed in the index is missing", r.name, tensor))
			}
		}
	}
	if parsed == 0 {
		return fmt.Errorf("inspect: no shard of %s could be parsed: %w", filepath.Base(doc.Path), firstErr)
	}

	doc.Metadata = idx.Metadata
	doc.Digest = fmt.Sprintf("%016x", xxhash.Sum64(digest))
	if len(modes) == 1 {
		for m := range modes {
			doc.Mode = m
		}
	} else {
		doc.Mode = "mixed"
	}
	sortRows(doc.Rows)
	return nil
}

func readIndex(path string) (*shardIndex, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspect: stat index: %w", err)
	}
	if st.Size() > MaxIndexSize {
		return nil, fmt.Errorf("inspect: index is %d bytes, limit is %d", st.Size(), MaxIndexSize)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inspect: read index: %w", err)
	}
	var idx shardIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("inspect: parse index: %w", err)
	}
	if len(idx.WeightMap) == 0 {
		return nil, errors.New("inspect: index has an empty weight_map")
	}
	return &idx, nil
}
