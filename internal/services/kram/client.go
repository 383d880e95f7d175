package kram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"sanmiguel/internal/dispatch"
)

// Binary is the executable name resolved on PATH.
const Binary = "kram"

// Executor abstracts command execution for testability.
type Executor interface {
	// Run executes binary with args and returns the captured stderr.
	Run(ctx context.Context, binary string, args []string) (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps kram CLI interactions and implements dispatch.Compressor.
type Client struct {
	binary string
	exec   Executor
}

// ExitError reports a failed kram invocation.
type ExitError struct {
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("kram exited with status %d", e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit status, or -1 when the process was killed.
func (e *ExitError) ExitCode() int { return e.Code }

// Diagnostic returns the captured stderr text.
func (e *ExitError) Diagnostic() string { return e.Stderr }

// New constructs a kram client for the resolved binary path.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("kram binary required")
	}
	client := &Client{
		binary: binary,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Compress encodes input into output using the requested format.
func (c *Client) Compress(ctx context.Context, input, output string, format dispatch.Format) error {
	if strings.TrimSpace(input) == "" || strings.TrimSpace(output) == "" {
		return errors.New("kram encode: input and output paths required")
	}
	stderr, err := c.exec.Run(ctx, c.binary, EncodeArgs(input, output, format))
	stderr = strings.TrimSpace(stderr)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Stderr == "" {
				exitErr.Stderr = stderr
			}
			return exitErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &ExitError{Code: -1, Stderr: stderr, Err: ctxErr}
		}
		return fmt.Errorf("kram encode: %w", err)
	}

	info, statErr := os.Stat(output)
	if statErr != nil || info.Size() == 0 {
		return &ExitError{Code: 0, Stderr: "no output file produced", Err: statErr}
	}
	return nil
}

// EncodeArgs builds the kram encode argument list for a conversion.
func EncodeArgs(input, output string, format dispatch.Format) []string {
	codec := format.Codec
	if codec == "" {
		codec = dispatch.DefaultFormat.Codec
	}
	args := []string{"encode", "-f", codec, "-type", "2d"}
	if format.Quality > 0 {
		args = append(args, "-quality", strconv.Itoa(format.Quality))
	}
	if format.Supercompression != "" {
		args = append(args, "-"+format.Supercompression, strconv.Itoa(format.Level))
	}
	return append(args, "-i", input, "-o", output)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stderr.String(), &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
				Err:    err,
			}
		}
		return stderr.String(), fmt.Errorf("run %s: %w", binary, err)
	}
	return stderr.String(), nil
}
