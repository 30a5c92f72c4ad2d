package inspect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeIndex(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "model.safetensors.index.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestOpenShardedMergesShards(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s1 := writeSafetensors(t, dir, "model-00001-of-00002.safetensors",
		`{"layers.0.w":{"dtype":"F16","shape":[2,2],"data_offsets":[0,8]}}`, 8)
	s2 := writeSafetensors(t, dir, "model-00002-of-00002.safetensors",
		`{"layers.1.w":{"dtype":"F16","shape":[2,2],"data_offsets":[0,8]},"lm_head":{"dtype":"F16","shape":[4],"data_offsets":[8,16]}}`, 16)
	idx := writeIndex(t, dir, `{
  "metadata": {"total_size": 24},
  "weight_map": {
    "layers.0.w": "model-00001-of-00002.safetensors",
    "layers.1.w": "model-00002-of-00002.safetensors",
    "lm_head": "model-00002-of-00002.safetensors"
  }
}`)

	var in Inspector
	doc, err := in.Open(context.Background(), idx)
	require.NoError(t, err)
	require.False(t, doc.Failed(), doc.Err)
	require.Equal(t, FormatSharded, doc.Format)
	require.Equal(t, "buffer", doc.Mode)
	require.Len(t, doc.Digest, 16)
	require.Empty(t, doc.Warnings)

	st1, err := os.Stat(s1)
	require.NoError(t, err)
	st2, err := os.Stat(s2)
	require.NoError(t, err)
	require.Equal(t, st1.Size()+st2.Size(), doc.TotalSize)

	require.Len(t, doc.Rows, 3)
	require.Equal(t, "layers.0.w", doc.Rows[0].Name)
	require.Equal(t, "model-00001-of-00002.safetensors", doc.Rows[0].Shard)
	require.Equal(t, "layers.1.w", doc.Rows[1].Name)
	require.Equal(t, "lm_head", doc.Rows[2].Name)
	require.Equal(t, "model-00002-of-00002.safetensors", doc.Rows[2].Shard)
	require.EqualValues(t, 24, doc.Summary().PayloadBytes)
	require.NotNil(t, doc.Metadata["total_size"])
}

func TestOpenShardedDegradesPerShard(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSafetensors(t, dir, "a.safetensors", `{"x":{"dtype":"U8","shape":[2],"data_offsets":[0,2]}}`, 2)
	idx := writeIndex(t, dir, `{"weight_map": {
  "x": "a.safetensors",
  "y": "a.safetensors",
  "z": "missing.safetensors",
  "evil": "../outside.safetensors"
}}`)

	var in Inspector
	doc, err := in.Open(context.Background(), idx)
	require.NoError(t, err)
	require.False(t, doc.Failed(), doc.Err)
	require.Len(t, doc.Rows, 1)
	require.Equal(t, "x", doc.Rows[0].Name)

	require.Len(t, doc.Warnings, 3)
	joined := ""
	for _, w := range doc.Warnings {
		joined += w + "\n"
	}
	require.Contains(t, joined, "outside the index directory")
	require.Contains(t, joined, `tensor "y" listed in the index is missing`)
	require.Contains(t, joined, "shard missing.safetensors")
}

func TestOpenShardedFailsWhenNoShardParses(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	idx := writeIndex(t, dir, `{"weight_map":{"x":"gone.safetensors"}}`)

	var in Inspector
	doc, err := in.Open(context.Background(), idx)
	require.NoError(t, err)
	require.True(t, doc.Failed())
	require.Contains(t, doc.Err, "no shard")
	require.Empty(t, doc.Rows)
}

func TestOpenShardedRejectsBadIndex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{"weight_map":`, "parse index"},
		{"empty map", `{"weight_map":{}}`, "empty weight_map"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			idx := writeIndex(t, t.TempDir(), tc.body)
			var in Inspector
			doc, err := in.Open(context.Background(), idx)
			require.NoError(t, err)
			require.True(t, doc.Failed())
			require.Contains(t, doc.Err, tc.want)
			require.Equal(t, int64(len(tc.body)), doc.TotalSize)
		})
	}
}
