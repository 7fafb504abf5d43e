package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Stream names passed to a LineFunc.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

// LineFunc receives one trimmed, non-empty output line of a command.
type LineFunc func(stream, line string)

// CommandRunner runs external commands. It exists so tests can script command output.
type CommandRunner interface {
	// Stream runs the command to completion, calling onLine for every output line.
	Stream(ctx context.Context, onLine LineFunc, name string, args ...string) error
}

// ExecCommandRunner is the os/exec backed CommandRunner.
type ExecCommandRunner struct{}

func (r *ExecCommandRunner) Stream(ctx context.Context, onLine LineFunc, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	// onLine is not required to be goroutine safe.
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		scanErr = make([]error, 2)
	)

	emit := func(stream, line string) {
		mu.Lock()
		defer mu.Unlock()

		onLine(stream, line)
	}

	wg.Add(2)

	for i, p := range []struct {
		stream string
		reader io.Reader
	}{{Stdout, stdout}, {Stderr, stderr}} {
		go func() {
			defer wg.Done()

			scanErr[i] = relayLines(p.stream, p.reader, emit)
		}()
	}

	// Pipes must be drained before Wait closes them.
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return err
	}

	return errors.Join(scanErr...)
}

// maxLineSize bounds a single output line.
const maxLineSize = 1024 * 1024

// relayLines passes every trimmed, non-empty line of r to emit. When a line exceeds
// maxLineSize the rest of r is discarded so the writer never blocks, and the scan error is
// returned.
func relayLines(stream string, r io.Reader, emit LineFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		emit(stream, line)
	}

	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)

		return fmt.Errorf("failed to read %s: %w", stream, err)
	}

	return nil
}
