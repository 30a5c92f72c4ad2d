package pytorch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTool writes body as a shell script and returns a Tool that runs it with sh.
func fakeTool(t *testing.T, body string) Tool {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "inspect.sh")
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return Tool{Interpreter: "sh", Script: script, Timeout: 10 * time.Second}
}

func checkpoint(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.pt")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 not really a zip"), 0o644))
	return path
}

func TestInvokeDecodesCatalog(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `cat <<'EOF'
{"tensors":[
  {"name":"fc.weight","dtype":"torch.float32","shape":[4,2],"numel":8,"size_bytes":32,"device":"cpu"},
  {"name":"fc.bias","dtype":"torch.float32","shape":[4],"numel":4,"size_bytes":16,"device":"cpu"}
 ],
 "metadata":{"epoch":3},
 "file_size":1234,
 "total_parameters":12,
 "format_type":"state_dict"}
EOF
`)
	res, err := tool.Invoke(context.Background(), checkpoint(t))
	require.NoError(t, err)
	require.Len(t, res.Tensors, 2)
	require.Equal(t, "fc.weight", res.Tensors[0].Name)
	require.Equal(t, []int64{4, 2}, res.Tensors[0].Shape)
	require.Equal(t, "cpu", res.Tensors[1].Device)
	require.Equal(t, int64(1234), res.FileSize)
	require.Equal(t, 2, res.TotalTensors)
	require.Equal(t, int64(12), res.TotalParameters)
	require.Equal(t, "state_dict", res.FormatType)
	require.EqualValues(t, 3, res.Metadata["epoch"])
}

func TestInvokeToolReportedError(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `echo '{"error":"PyTorch is not installed","traceback":"ImportError: torch","file_size":10}'`)

	_, err := tool.Invoke(context.Background(), checkpoint(t))
	var te *ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "PyTorch is not installed", te.Message)
	require.Equal(t, "ImportError: torch", te.Traceback)
	require.Equal(t, Hints(), te.Suggestions)
	require.Contains(t, err.Error(), "PyTorch is not installed")
}

func TestInvokeKeepsToolSuggestions(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `echo '{"error":"boom","suggestions":["try harder"]}'`)

	_, err := tool.Invoke(context.Background(), checkpoint(t))
	var te *ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, []string{"try harder"}, te.Suggestions)
}

func TestInvokeFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		message string
		trace   string
	}{
		{"empty output", `exit 0`, "no output from inspector", ""},
		{"garbage output", `echo 'Traceback (most recent call last):'`, "decode inspector output", "Traceback (most recent call last):"},
		{"crash", `echo 'segfault' >&2; exit 3`, "exit status 3", "segfault"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tool := fakeTool(t, tc.body)
			_, err := tool.Invoke(context.Background(), checkpoint(t))
			var te *ToolError
			require.ErrorAs(t, err, &te)
			require.Contains(t, te.Message, tc.message)
			require.Contains(t, te.Traceback, tc.trace)
			require.NotEmpty(t, te.Suggestions)
		})
	}
}

func TestInvokeTimeout(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `exec sleep 5`)
	tool.Timeout = 100 * time.Millisecond

	_, err := tool.Invoke(context.Background(), checkpoint(t))
	var te *ToolError
	require.ErrorAs(t, err, &te)
	require.Contains(t, te.Message, "timed out")
}

func TestInvokeMissingScript(t *testing.T) {
	t.Parallel()
	tool := Tool{Interpreter: "sh", Script: filepath.Join(t.TempDir(), "missing.py")}
	_, err := tool.Invoke(context.Background(), checkpoint(t))
	var te *ToolError
	require.ErrorAs(t, err, &te)
	require.Contains(t, te.Message, "parser script not found")
}

func TestInvokeMissingFile(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `exit 0`)
	_, err := tool.Invoke(context.Background(), filepath.Join(t.TempDir(), "gone.pt"))
	require.ErrorIs(t, err, fs.ErrNotExist)
	var te *ToolError
	require.False(t, errors.As(err, &te))
}

func TestToolDefaults(t *testing.T) {
	tool := Tool{}.withDefaults()
	require.Equal(t, DefaultInterpreter, tool.Interpreter)
	require.Equal(t, ResolveScript(), tool.Script)
	require.Equal(t, DefaultTimeout, tool.Timeout)

	tool = Tool{Script: "custom.py"}.withDefaults()
	require.Equal(t, "custom.py", tool.Script)
}

func TestResolveScriptPrefersExecutableDir(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "ckpt")
	require.NoError(t, os.WriteFile(exe, nil, 0o755))

	prev := executable
	t.Cleanup(func() { executable = prev })
	executable = func() (string, error) { return exe, nil }

	require.Equal(t, DefaultScript, ResolveScript())

	installed := filepath.Join(dir, DefaultScript)
	require.NoError(t, os.MkdirAll(filepath.Dir(installed), 0o755))
	require.NoError(t, os.WriteFile(installed, []byte("print()"), 0o644))
	require.Equal(t, installed, ResolveScript())

	executable = func() (string, error) { return "", errors.New("no executable") }
	require.Equal(t, DefaultScript, ResolveScript())
}
