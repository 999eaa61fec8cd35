package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itstheanurag/judge/internal/apperr"
	"github.com/itstheanurag/judge/internal/cleanup"
	"github.com/itstheanurag/judge/internal/execution"
	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/itstheanurag/judge/internal/process"
	"github.com/itstheanurag/judge/internal/sandbox"
	"github.com/itstheanurag/judge/internal/verdict"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	TimeLimitExceededMessage = "The execution exceeded the time limit"
	MemoryLimitMessage       = "The execution exceeded the memory limit"
	WrongAnswerMessage       = "The output does not match the expected output"
	OutputTruncatedMessage   = "The output exceeded the capture limit and was truncated"
)

// CPUShare reports the CPU share granted to each execution container.
type CPUShare interface {
	MaxCPUs() float64
}

type Options struct {
	// ExecutionTimeout is the lower bound of the hard per test case timeout.
	ExecutionTimeout time.Duration
}

// Strategy builds one image per execution and runs its test cases in order
// against it, stopping at the first test case that is not accepted.
type Strategy struct {
	runtime sandbox.ContainerRuntime
	cpu     CPUShare
	engine  verdict.Engine
	pool    *cleanup.Pool
	active  *sandbox.ActiveImages
	metrics *metrics.Registry
	logger  *zerolog.Logger
	opts    Options
}

func New(
	runtime sandbox.ContainerRuntime,
	cpu CPUShare,
	engine verdict.Engine,
	pool *cleanup.Pool,
	active *sandbox.ActiveImages,
	m *metrics.Registry,
	logger *zerolog.Logger,
	opts Options,
) *Strategy {
	if active == nil {
		active = sandbox.NewActiveImages()
	}
	return &Strategy{
		runtime: runtime,
		cpu:     cpu,
		engine:  engine,
		pool:    pool,
		active:  active,
		metrics: m,
		logger:  logger,
		opts:    opts,
	}
}

// Compilation is the outcome of the image build. Verdict is Accepted when the
// build succeeded and CompilationError otherwise.
type Compilation struct {
	Verdict  verdict.Verdict
	Error    string
	Duration time.Duration
}

// Compile writes the entrypoint scripts and builds the execution image. A
// build that ran and failed, or hung, is a compilation error. A build that
// could not start, or failed while the engine is down, is returned as a
// dependency failure.
func (s *Strategy) Compile(ctx context.Context, e *execution.Execution) (*Compilation, error) {
	if err := e.CreateEntrypointFiles(); err != nil {
		return nil, err
	}

	start := time.Now()
	timer := prometheus.NewTimer(s.metrics.BuildDuration)
	_, err := s.runtime.BuildImage(ctx, e.Path, e.ImageName, execution.DockerfileName)
	timer.ObserveDuration()
	elapsed := time.Since(start)

	switch {
	case err == nil:
		return &Compilation{Verdict: verdict.Accepted, Duration: elapsed}, nil
	case errors.Is(err, process.ErrStart):
		return nil, err
	case apperr.Is(err, apperr.KindDependencyFailure), apperr.Is(err, apperr.KindOperationTimeout):
		if !s.runtime.IsUp(ctx) {
			s.logger.Error().Err(err).Str("execution_id", e.ID).Msg("build failed while the container engine is down")
			return nil, apperr.DependencyFailure("container engine is not available", err)
		}
		s.logger.Info().Str("execution_id", e.ID).Str("image", e.ImageName).Msg("compilation failed")
		return &Compilation{Verdict: verdict.CompilationError, Error: compilationMessage(err), Duration: elapsed}, nil
	default:
		return nil, fmt.Errorf("build image %s: %w", e.ImageName, err)
	}
}

// Run compiles the execution and judges its test cases. When deleteImage is
// set the image is removed in the background once the run is over.
func (s *Strategy) Run(ctx context.Context, e *execution.Execution, deleteImage bool) (*Response, error) {
	log := s.logger.With().Str("execution_id", e.ID).Str("image", e.ImageName).Logger()

	s.active.Track(e.ImageName)
	defer func() {
		if deleteImage {
			s.deleteImage(e.ImageName)
		} else {
			s.active.Untrack(e.ImageName)
		}
	}()

	response := &Response{
		TestCasesResult: NewResults(),
		MemoryLimit:     e.MemoryLimit,
		TimeLimit:       e.TimeLimit,
		Language:        e.Language.ID,
		DateTime:        time.Now(),
	}

	compilation, err := s.Compile(ctx, e)
	if err != nil {
		return nil, err
	}
	response.CompilationDuration = compilation.Duration.Milliseconds()
	if compilation.Verdict != verdict.Accepted {
		response.Verdict = compilation.Verdict
		response.Error = compilation.Error
		s.metrics.Verdicts.WithLabelValues(compilation.Verdict.MetricLabel()).Inc()
		return response, nil
	}

	response.Verdict = verdict.Accepted
	var total int64
	for _, tc := range e.TestCases {
		result, err := s.runTestCase(ctx, e, tc, &log)
		if err != nil {
			return nil, err
		}

		response.TestCasesResult.Add(tc.ID(), *result)
		total += result.ExecutionDuration
		s.metrics.Verdicts.WithLabelValues(result.Verdict.MetricLabel()).Inc()
		s.metrics.TestCaseDuration.WithLabelValues(e.Language.ID).Observe(float64(result.ExecutionDuration))

		response.Verdict = result.Verdict
		if result.Verdict != verdict.Accepted {
			response.Error = result.Error
			log.Info().Str("test_case_id", tc.ID()).Str("verdict", result.Verdict.Label()).Msg("test case failed, stopping run")
			break
		}
	}

	if n := response.TestCasesResult.Len(); n > 0 {
		response.AverageExecutionDuration = total / int64(n)
	}

	log.Info().Str("verdict", response.Verdict.Label()).Int("test_cases", response.TestCasesResult.Len()).Msg("execution finished")
	return response, nil
}

func (s *Strategy) runTestCase(ctx context.Context, e *execution.Execution, tc *execution.TestCase, log *zerolog.Logger) (*TestCaseResult, error) {
	expected, err := tc.ExpectedOutput()
	if err != nil {
		return nil, fmt.Errorf("test case %s: %w", tc.ID(), err)
	}
	tc.Free()

	name := e.ContainerName(tc)
	env := map[string]string{"TEST_CASE_ID": tc.ID()}

	timer := prometheus.NewTimer(s.metrics.RunDuration)
	out, runErr := s.runtime.RunContainer(ctx, e.ImageName, name, e.HardTimeout(s.opts.ExecutionTimeout), s.cpu.MaxCPUs(), env)
	timer.ObserveDuration()

	defer s.deleteContainer(name)

	result := &TestCaseResult{ExpectedOutput: expected}
	switch {
	case apperr.Is(runErr, apperr.KindOperationTimeout):
		log.Warn().Str("test_case_id", tc.ID()).Str("container", name).Msg("hard timeout reached")
		result.Verdict = verdict.TimeLimitExceeded
		result.Error = TimeLimitExceededMessage
	case runErr != nil:
		log.Error().Err(runErr).Str("test_case_id", tc.ID()).Str("container", name).Msg("container run failed")
		return nil, runErr
	default:
		result.Output = out.Stdout
		result.Verdict = s.engine.Evaluate(out.ExitCode, false, verdict.Compare(out.Stdout, expected))
		result.Error = errorText(result.Verdict, out.Stderr, out.ExitCode)
		if out.Truncated {
			log.Warn().Str("test_case_id", tc.ID()).Str("container", name).Msg("program output truncated")
			if result.Verdict == verdict.WrongAnswer {
				result.Error = OutputTruncatedMessage
			}
		}
	}

	// Killed by the hard timeout: the engine timestamps are meaningless, so
	// the declared limit plus one second is reported, in milliseconds. A
	// program stopped by the in-container timeout keeps its measured duration.
	result.ExecutionDuration = s.duration(ctx, name, out, log)
	if result.Verdict == verdict.TimeLimitExceeded && runErr != nil {
		result.ExecutionDuration = int64(e.TimeLimit+1) * 1000
	}

	return result, nil
}

// duration prefers the engine's own start and finish timestamps and falls
// back to the wall time of the run command.
func (s *Strategy) duration(ctx context.Context, containerName string, out *process.Output, log *zerolog.Logger) int64 {
	info, err := s.runtime.Inspect(ctx, containerName)
	if err != nil {
		log.Warn().Err(err).Str("container", containerName).Msg("inspect failed, using process duration")
	} else if d, ok := info.Duration(); ok {
		return max(d.Milliseconds(), 1)
	}
	if out == nil {
		return 0
	}
	return max(out.Duration.Milliseconds(), 1)
}

func (s *Strategy) deleteContainer(name string) {
	s.pool.Submit("container", name, func(ctx context.Context) error {
		return s.runtime.DeleteContainer(ctx, name)
	})
}

func (s *Strategy) deleteImage(name string) {
	queued := s.pool.Submit("image", name, func(ctx context.Context) error {
		defer s.active.Untrack(name)
		return s.runtime.DeleteImage(ctx, name)
	})
	if !queued {
		s.active.Untrack(name)
	}
}

func errorText(v verdict.Verdict, stderr string, exitCode int) string {
	stderr = strings.TrimSpace(stderr)
	switch v {
	case verdict.Accepted:
		return ""
	case verdict.TimeLimitExceeded:
		return TimeLimitExceededMessage
	case verdict.OutOfMemory:
		if stderr != "" {
			return stderr
		}
		return MemoryLimitMessage
	case verdict.RuntimeError:
		if stderr != "" {
			return stderr
		}
		return fmt.Sprintf("The program exited with code %d", exitCode)
	default:
		if stderr != "" {
			return stderr
		}
		return WrongAnswerMessage
	}
}

func compilationMessage(err error) string {
	if apperr.Is(err, apperr.KindOperationTimeout) {
		return "Compilation exceeded the build time limit"
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && strings.TrimSpace(appErr.Message) != "" {
		return strings.TrimSpace(appErr.Message)
	}
	return strings.TrimSpace(err.Error())
}
