package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrTimeout = errors.New("process timed out")
	ErrStart   = errors.New("process failed")
)

// DefaultMaxOutput caps each captured stream.
const DefaultMaxOutput = 8 << 20

type Status int

const (
	StatusNormal Status = iota
	StatusTimeout
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusTimeout:
		return "timeout"
	default:
		return "error"
	}
}

type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Status   Status
	Duration time.Duration
	// Truncated is set when either stream went over the capture limit.
	Truncated bool
}

// Runner launches subprocesses in their own process group so that a timeout
// kills the whole tree, not only the direct child.
type Runner struct {
	logger    *zerolog.Logger
	maxOutput int
	waitDelay time.Duration
}

func NewRunner(logger *zerolog.Logger) *Runner {
	return &Runner{
		logger:    logger,
		maxOutput: DefaultMaxOutput,
		waitDelay: 2 * time.Second,
	}
}

// WithMaxOutput returns a copy of the runner capturing at most n bytes per stream.
func (r *Runner) WithMaxOutput(n int) *Runner {
	cp := *r
	cp.maxOutput = n
	return &cp
}

// Run executes argv with an absolute timeout. A non-zero exit is not an error:
// it is reported through Output.ExitCode. The returned error wraps ErrTimeout
// when the deadline fired and ErrStart when the process could not be run.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, argv ...string) (*Output, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrStart)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = r.waitDelay

	stdout := &cappedBuffer{limit: r.maxOutput}
	stderr := &cappedBuffer{limit: r.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	line := strings.Join(argv, " ")
	r.logger.Debug().Str("cmd", line).Dur("timeout", timeout).Msg("running process")

	start := time.Now()
	err := cmd.Run()
	out := &Output{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated || stderr.truncated,
	}
	if out.Truncated {
		r.logger.Warn().Str("cmd", line).Int("limit", r.maxOutput).Msg("process output truncated")
	}

	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out.Status = StatusError
		out.ExitCode = -1
		return out, fmt.Errorf("%w: %s: %v", ErrStart, line, ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out.Status = StatusTimeout
		out.ExitCode = -1
		r.logger.Warn().Str("cmd", line).Dur("timeout", timeout).Msg("process timed out, process group killed")
		return out, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, line)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.Status = StatusNormal
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		out.Status = StatusError
		out.ExitCode = -1
		return out, fmt.Errorf("%w: %s: %v", ErrStart, line, err)
	}

	out.Status = StatusNormal
	return out, nil
}

type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
