// Package applio provides a [convert.Engine] that runs the Applio command-line
// interface (python core.py infer ...) once per conversion.
//
// Each call starts a fresh interpreter and loads the voice model from disk, so
// this backend trades latency for not needing a long-running sidecar. Calls
// are independent processes and may run concurrently.
package applio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrWong99/chattervc/pkg/provider/convert"
)

var _ convert.Engine = (*Runner)(nil)

const (
	entryScript  = "core.py"
	exportFormat = "WAV"

	// maxStderr bounds how much interpreter output is quoted in errors.
	maxStderr = 1024
)

// Runner invokes the Applio CLI.
type Runner struct {
	python string
	dir    string
}

// New returns a Runner that executes python from the Applio checkout in dir.
// It fails when the interpreter cannot be found or dir has no core.py, which
// callers treat as the engine being unavailable.
func New(python, dir string) (*Runner, error) {
	if python == "" {
		python = "python3"
	}
	bin, err := exec.LookPath(python)
	if err != nil {
		return nil, fmt.Errorf("applio: locate interpreter %q: %w", python, err)
	}
	if dir == "" {
		return nil, errors.New("applio: directory must not be empty")
	}
	if _, err := os.Stat(filepath.Join(dir, entryScript)); err != nil {
		return nil, fmt.Errorf("applio: %s not found in %q: %w", entryScript, dir, err)
	}
	return &Runner{python: bin, dir: dir}, nil
}

// Convert implements [convert.Engine].
func (r *Runner) Convert(ctx context.Context, job convert.Job) error {
	cmd := exec.CommandContext(ctx, r.python, args(job)...)
	cmd.Dir = r.dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("applio: infer: %w: %s", err, tail(stderr.String(), maxStderr))
	}

	info, err := os.Stat(job.OutputPath)
	if err != nil {
		return fmt.Errorf("applio: output missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("applio: output %q is empty", job.OutputPath)
	}
	return nil
}

// args builds the core.py infer command line for job.
func args(job convert.Job) []string {
	s := job.Settings
	return []string{
		entryScript, "infer",
		"--pitch", strconv.Itoa(s.Pitch),
		"--index_rate", formatFloat(s.IndexRate),
		"--volume_envelope", formatFloat(s.VolumeEnvelope),
		"--protect", formatFloat(s.Protect),
		"--f0_method", s.F0Method,
		"--input_path", job.InputPath,
		"--output_path", job.OutputPath,
		"--pth_path", job.ModelPath,
		"--index_path", job.IndexPath,
		"--split_audio", formatBool(s.SplitAudio),
		"--f0_autotune", formatBool(s.F0Autotune),
		"--clean_audio", formatBool(s.CleanAudio),
		"--export_format", exportFormat,
		"--sid", strconv.Itoa(s.SID),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatBool renders b the way Python's argparse str2bool expects.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
