package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command with stdin and stdout attached.
type CommandRunner interface {
	Run(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) error
}

// ExecCommandRunner is the os/exec implementation. Stderr is folded into the error.
type ExecCommandRunner struct{}

func (ExecCommandRunner) Run(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) error {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}

		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// RembgRemover delegates segmentation to the rembg CLI (`rembg i - -`).
type RembgRemover struct {
	binary string
	runner CommandRunner
}

// RembgOption configures a RembgRemover.
type RembgOption func(*RembgRemover)

// WithRembgPath sets the rembg executable.
func WithRembgPath(path string) RembgOption {
	return func(r *RembgRemover) {
		if path != "" {
			r.binary = path
		}
	}
}

// WithCommandRunner replaces the process runner.
func WithCommandRunner(runner CommandRunner) RembgOption {
	return func(r *RembgRemover) {
		r.runner = runner
	}
}

func NewRembgRemover(opts ...RembgOption) *RembgRemover {
	r := &RembgRemover{
		binary: "rembg",
		runner: ExecCommandRunner{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *RembgRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}

	var out bytes.Buffer
	if err := r.runner.Run(ctx, &in, &out, r.binary, "i", "-", "-"); err != nil {
		return nil, fmt.Errorf("background removal failed: %w", err)
	}

	result, _, err := image.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rembg output: %w", err)
	}

	return result, nil
}
