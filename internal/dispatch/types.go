package dispatch

import (
	"context"
	"errors"
	"time"
)

// Format describes the target GPU texture encoding.
type Format struct {
	Codec            string
	Container        string
	Supercompression string
	Level            int
	Quality          int
}

// DefaultFormat is BC7 in a KTX2 container with zstd level 0 supercompression.
var DefaultFormat = Format{
	Codec:            "bc7",
	Container:        "ktx2",
	Supercompression: "zstd",
	Level:            0,
	Quality:          100,
}

// Extension returns the output file extension for the format's container.
func (f Format) Extension() string {
	if f.Container == "" {
		return ".ktx2"
	}
	return "." + f.Container
}

// Compressor converts a single image into a GPU texture container.
//
// Errors may implement ExitCode() int and Diagnostic() string to surface the
// subprocess exit status and captured stderr.
type Compressor interface {
	Compress(ctx context.Context, input, output string, format Format) error
}

// CompressorFunc adapts a function to the Compressor interface.
type CompressorFunc func(ctx context.Context, input, output string, format Format) error

func (f CompressorFunc) Compress(ctx context.Context, input, output string, format Format) error {
	return f(ctx, input, output, format)
}

// Job is one unit of conversion work for a distinct source texture.
type Job struct {
	Source string
	Output string
	Format Format
}

// State is a job's position in the conversion state machine.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Result is the outcome of a Job. Exactly one Result exists per Job.
type Result struct {
	Job        Job
	State      State
	Attempts   int
	ExitCode   int
	Diagnostic string
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
}

// Succeeded reports whether the job produced its output.
func (r Result) Succeeded() bool {
	return r.State == StateSucceeded
}

// Transition records one state change, reported to observers.
type Transition struct {
	Job     Job
	From    State
	To      State
	Attempt int
	Err     error
}

// exitCoder and diagnoser let tool-specific errors surface details without
// the dispatcher importing the tool package.
type exitCoder interface{ ExitCode() int }

type diagnoser interface{ Diagnostic() string }

func describeFailure(err error) (int, string) {
	code := -1
	diagnostic := err.Error()
	var ec exitCoder
	if errors.As(err, &ec) {
		code = ec.ExitCode()
	}
	var dg diagnoser
	if errors.As(err, &dg) {
		if text := dg.Diagnostic(); text != "" {
			diagnostic = text
		}
	}
	return code, diagnostic
}
