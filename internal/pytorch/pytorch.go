// Package pytorch inspects pickle-based checkpoints (.pt, .pth, .bin, .ckpt)
// by running an external interpreter script that prints a JSON catalog.
package pytorch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ckptinspect/internal/logger"
	"github.com/samcharles93/ckptinspect/internal/metrics"
)

// FormatName labels pytorch parses in metrics and views.
const FormatName = "pytorch"

const (
	DefaultInterpreter = "python3"
	// DefaultScript is looked up next to the executable first, then relative
	// to the working directory.
	DefaultScript  = "scripts/pytorch_parser.py"
	DefaultTimeout = 2 * time.Minute
)

// executable is swapped in tests.
var executable = os.Executable

// Tensor is one entry of the tool's output.
type Tensor struct {
	Name      string  `json:"name"`
	DType     string  `json:"dtype"`
	Shape     []int64 `json:"shape"`
	Numel     int64   `json:"numel"`
	SizeBytes int64   `json:"size_bytes"`
	Device    string  `json:"device"`
	Error     string  `json:"error,omitempty"`
}

// Result is the catalog printed by the tool.
type Result struct {
	Tensors         []Tensor       `json:"tensors"`
	Metadata        map[string]any `json:"metadata"`
	FileSize        int64          `json:"file_size"`
	TotalTensors    int            `json:"total_tensors"`
	TotalParameters int64          `json:"total_parameters"`
	FormatType      string         `json:"format_type"`
}

// ToolError is a failed tool run. Traceback carries whatever diagnostics the
// tool produced.
type ToolError struct {
	Message     string
	Traceback   string
	Suggestions []string
}

func (e *ToolError) Error() string { return "pytorch: " + e.Message }

// output mirrors Result plus the failure fields the tool may emit instead.
type output struct {
	Result
	Error       string   `json:"error"`
	Traceback   string   `json:"traceback"`
	Suggestions []string `json:"suggestions"`
}

// Tool runs the inspection script. The zero value uses the defaults.
type Tool struct {
	Interpreter string
	Script      string
	Timeout     time.Duration
}

func (t Tool) withDefaults() Tool {
	if t.Interpreter == "" {
		t.Interpreter = DefaultInterpreter
	}
	if t.Script == "" {
		t.Script = ResolveScript()
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTimeout
	}
	return t
}

// Invoke runs the tool against path and decodes its catalog. Failures are
// returned as *ToolError unless path itself cannot be stat'd. It never retries.
func (t Tool) Invoke(ctx context.Context, path string) (res *Result, err error) {
	t = t.withDefaults()
	started := time.Now()
	defer func() {
		metrics.RecordParse(FormatName, "", err, time.Since(started))
	}()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("pytorch: stat %s: %w", path, err)
	}
	if _, err := os.Stat(t.Script); err != nil {
		return nil, &ToolError{Message: "parser script not found: " + t.Script, Suggestions: Hints()}
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Interpreter, t.Script, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	logger.FromContext(ctx).Debug("running pytorch inspector", "interpreter", t.Interpreter, "script", t.Script, "path", path)
	runErr := cmd.Run()

	if runErr != nil && stdout.Len() == 0 {
		msg := runErr.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("inspector timed out after %s", t.Timeout)
		}
		return nil, &ToolError{Message: msg, Traceback: strings.TrimSpace(stderr.String()), Suggestions: Hints()}
	}
	return decodeOutput(stdout.Bytes(), stderr.String())
}

// ResolveScript returns the default script path, preferring the copy installed
// beside the running binary.
func ResolveScript() string {
	exe, err := executable()
	if err != nil {
		return DefaultScript
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	candidate := filepath.Join(filepath.Dir(exe), DefaultScript)
	if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
		return candidate
	}
	return DefaultScript
}

func decodeOutput(stdout []byte, stderr string) (*Result, error) {
	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, &ToolError{Message: "no output from inspector", Traceback: strings.TrimSpace(stderr), Suggestions: Hints()}
	}
	var out output
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, &ToolError{
			Message:     "decode inspector output: " + err.Error(),
			Traceback:   strings.TrimSpace(string(stdout) + "\n" + stderr),
			Suggestions: Hints(),
		}
	}
	if out.Error != "" {
		suggestions := out.Suggestions
		if len(suggestions) == 0 {
			suggestions = Hints()
		}
		return nil, &ToolError{Message: out.Error, Traceback: out.Traceback, Suggestions: suggestions}
	}
	res := out.Result
	if res.TotalTensors == 0 {
		res.TotalTensors = len(res.Tensors)
	}
	return &res, nil
}

// Hints are the static troubleshooting steps shown with every tool failure.
func Hints() []string {
	return []string{
		"Install PyTorch: pip install torch",
		"Check that the configured interpreter can import torch",
		"Check that the file is a valid PyTorch checkpoint",
		"Point --pytorch-script (or pytorch_script in the config) at pytorch_parser.py",
		"Convert the checkpoint to .safetensors to inspect it without PyTorch",
	}
}
