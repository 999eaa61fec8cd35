package strategy_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/itstheanurag/judge/internal/apperr"
	"github.com/itstheanurag/judge/internal/cleanup"
	"github.com/itstheanurag/judge/internal/execution"
	"github.com/itstheanurag/judge/internal/languages"
	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/itstheanurag/judge/internal/process"
	"github.com/itstheanurag/judge/internal/resources"
	"github.com/itstheanurag/judge/internal/sandbox"
	"github.com/itstheanurag/judge/internal/sandbox/mocks"
	"github.com/itstheanurag/judge/internal/strategy"
	"github.com/itstheanurag/judge/internal/verdict"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	runtime  *mocks.MockContainerRuntime
	strategy *strategy.Strategy
	metrics  *metrics.Registry
	pool     *cleanup.Pool
	active   *sandbox.ActiveImages
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	logger := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	pool := cleanup.NewPool(cleanup.Options{MinWorkers: 1, MaxWorkers: 2, QueueSize: 32}, &logger, m)
	// Registered after the controller so the pool drains before expectations are checked.
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	rt := mocks.NewMockContainerRuntime(ctrl)
	active := sandbox.NewActiveImages()
	s := strategy.New(rt, resources.New(10, 0.5), verdict.NewEngine(139, 124), pool, active, m, &logger,
		strategy.Options{ExecutionTimeout: 20 * time.Second})

	return &fixture{runtime: rt, strategy: s, metrics: m, pool: pool, active: active}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.pool.Shutdown(context.Background()))
}

func newExecution(t *testing.T, timeLimit int, cases ...*execution.TestCase) *execution.Execution {
	t.Helper()
	lang, err := languages.NewRegistry().Get("PYTHON")
	require.NoError(t, err)

	e := execution.NewWithID("e1", execution.Options{
		Workdir:     t.TempDir(),
		Language:    lang,
		SourceCode:  "print('hello')",
		TimeLimit:   timeLimit,
		MemoryLimit: 64,
		TestCases:   cases,
	})
	require.NoError(t, e.Stage())
	return e
}

func inspected(ms int) *sandbox.ContainerInfo {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &sandbox.ContainerInfo{
		Status:    "exited",
		StartTime: start.Format(time.RFC3339Nano),
		EndTime:   start.Add(time.Duration(ms) * time.Millisecond).Format(time.RFC3339Nano),
	}
}

func (f *fixture) expectBuild(e *execution.Execution) {
	f.runtime.EXPECT().
		BuildImage(gomock.Any(), e.Path, e.ImageName, execution.DockerfileName).
		Return(&process.Output{}, nil)
}

func (f *fixture) expectRun(e *execution.Execution, tc *execution.TestCase, out *process.Output, err error) {
	name := e.ContainerName(tc)
	f.runtime.EXPECT().
		RunContainer(gomock.Any(), e.ImageName, name, gomock.Any(), 0.5, map[string]string{"TEST_CASE_ID": tc.ID()}).
		Return(out, err)
	f.runtime.EXPECT().Inspect(gomock.Any(), name).Return(inspected(120), nil)
	f.runtime.EXPECT().DeleteContainer(gomock.Any(), name).Return(nil)
}

func TestAcceptedSingleTestCase(t *testing.T) {
	f := newFixture(t)
	tc := execution.NewTestCase("t1", "", "hello")
	e := newExecution(t, 2, tc)

	f.expectBuild(e)
	f.expectRun(e, tc, &process.Output{Stdout: "hello\n", Duration: 300 * time.Millisecond}, nil)
	f.runtime.EXPECT().DeleteImage(gomock.Any(), e.ImageName).Return(nil)

	resp, err := f.strategy.Run(context.Background(), e, true)
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, verdict.Accepted, resp.Verdict)
	assert.Empty(t, resp.Error)
	require.Equal(t, 1, resp.TestCasesResult.Len())

	res, ok := resp.TestCasesResult.Get("t1")
	require.True(t, ok)
	assert.Equal(t, verdict.Accepted, res.Verdict)
	assert.Equal(t, int64(120), res.ExecutionDuration)
	assert.Positive(t, res.ExecutionDuration)
	assert.Equal(t, "hello", res.ExpectedOutput)
	assert.Equal(t, int64(120), resp.AverageExecutionDuration)
	assert.True(t, tc.Released())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verdicts.WithLabelValues("accepted")))
	assert.Equal(t, 0, f.active.Len())
}

func TestHardTimeoutIsTimeLimitExceeded(t *testing.T) {
	f := newFixture(t)
	tc := execution.NewTestCase("t1", "", "")
	e := newExecution(t, 2, tc)
	name := e.ContainerName(tc)

	f.expectBuild(e)
	f.runtime.EXPECT().
		RunContainer(gomock.Any(), e.ImageName, name, 20*time.Second, 0.5, gomock.Any()).
		Return(&process.Output{Status: process.StatusTimeout, ExitCode: -1}, apperr.OperationTimeout("run container timed out", process.ErrTimeout))
	f.runtime.EXPECT().Inspect(gomock.Any(), name).Return(nil, apperr.DependencyFailure("no such container", nil))
	f.runtime.EXPECT().DeleteContainer(gomock.Any(), name).Return(nil)

	resp, err := f.strategy.Run(context.Background(), e, false)
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, verdict.TimeLimitExceeded, resp.Verdict)
	assert.Equal(t, strategy.TimeLimitExceededMessage, resp.Error)

	res, _ := resp.TestCasesResult.Get("t1")
	assert.Equal(t, int64(3000), res.ExecutionDuration, "declared limit plus one second")
	assert.Empty(t, res.Output)
}

func TestCompilationErrorRunsNothing(t *testing.T) {
	f := newFixture(t)
	e := newExecution(t, 2, execution.NewTestCase("t1", "", "x"), execution.NewTestCase("t2", "", "y"))

	f.runtime.EXPECT().
		BuildImage(gomock.Any(), e.Path, e.ImageName, execution.DockerfileName).
		Return(&process.Output{ExitCode: 1}, apperr.DependencyFailure("SyntaxError: invalid syntax", nil))
	f.runtime.EXPECT().IsUp(gomock.Any()).Return(true)
	f.runtime.EXPECT().DeleteImage(gomock.Any(), e.ImageName).Return(nil)

	resp, err := f.strategy.Run(context.Background(), e, true)
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, verdict.CompilationError, resp.Verdict)
	assert.Equal(t, 0, resp.TestCasesResult.Len())
	assert.Equal(t, "SyntaxError: invalid syntax", resp.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verdicts.WithLabelValues("compilation_error")))
}

func TestBuildTimeoutIsCompilationError(t *testing.T) {
	f := newFixture(t)
	e := newExecution(t, 2, execution.NewTestCase("t1", "", "x"))

	f.runtime.EXPECT().
		BuildImage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperr.OperationTimeout("build timed out", process.ErrTimeout))
	f.runtime.EXPECT().IsUp(gomock.Any()).Return(true)

	resp, err := f.strategy.Run(context.Background(), e, false)
	require.NoError(t, err)
	assert.Equal(t, verdict.CompilationError, resp.Verdict)
	assert.NotEmpty(t, resp.Error)
}

func TestMissingDockerBinaryIsNotCompilationError(t *testing.T) {
	f := newFixture(t)
	e := newExecution(t, 2, execution.NewTestCase("t1", "", "x"))

	// No IsUp expectation: a command that never started says nothing about the source.
	f.runtime.EXPECT().
		BuildImage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&process.Output{ExitCode: -1}, apperr.DependencyFailure("could not run docker image build",
			fmt.Errorf("%w: docker build: exec: \"docker\": executable file not found in $PATH", process.ErrStart)))

	resp, err := f.strategy.Run(context.Background(), e, false)
	f.drain(t)

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, apperr.Is(err, apperr.KindDependencyFailure))
	assert.ErrorIs(t, err, process.ErrStart)
	assert.Zero(t, testutil.ToFloat64(f.metrics.Verdicts.WithLabelValues("compilation_error")))
}

func TestBuildFailureWithEngineDown(t *testing.T) {
	for name, buildErr := range map[string]error{
		"daemon unreachable": apperr.DependencyFailure("Cannot connect to the Docker daemon at unix:///var/run/docker.sock", nil),
		"daemon hung":        apperr.OperationTimeout("build timed out", process.ErrTimeout),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			e := newExecution(t, 2, execution.NewTestCase("t1", "", "x"))

			f.runtime.EXPECT().
				BuildImage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
				Return(&process.Output{ExitCode: 1}, buildErr)
			f.runtime.EXPECT().IsUp(gomock.Any()).Return(false)

			resp, err := f.strategy.Run(context.Background(), e, false)
			f.drain(t)

			require.Error(t, err)
			assert.Nil(t, resp)
			assert.True(t, apperr.Is(err, apperr.KindDependencyFailure))
			assert.ErrorIs(t, err, buildErr)
		})
	}
}

func TestInContainerTimeoutKeepsMeasuredDuration(t *testing.T) {
	f := newFixture(t)
	tc := execution.NewTestCase("t1", "", "")
	e := newExecution(t, 2, tc)
	name := e.ContainerName(tc)

	f.expectBuild(e)
	f.runtime.EXPECT().RunContainer(gomock.Any(), e.ImageName, name, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&process.Output{ExitCode: 124}, nil)
	f.runtime.EXPECT().Inspect(gomock.Any(), name).Return(inspected(2100), nil)
	f.runtime.EXPECT().DeleteContainer(gomock.Any(), name).Return(nil)

	resp, err := f.strategy.Run(context.Background(), e, false)
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, verdict.TimeLimitExceeded, resp.Verdict)
	res, _ := resp.TestCasesResult.Get("t1")
	assert.Equal(t, int64(2100), res.ExecutionDuration)
}

func TestTruncatedOutputIsReported(t *testing.T) {
	f := newFixture(t)
	tc := execution.NewTestCase("t1", "", "2")
	e := newExecution(t, 1, tc)

	f.expectBuild(e)
	f.expectRun(e, tc, &process.Output{Stdout: "1", Truncated: true}, nil)

	resp, err := f.strategy.Run(context.Background(), e, false)
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, verdict.WrongAnswer, resp.Verdict)
	assert.Equal(t, strategy.OutputTruncatedMessage, resp.Error)
}

func TestWrongAnswerOnThirdTestCase(t *testing.T) {
	f := newFixture(t)
	cases := []*execution.TestCase{
		execution.NewTestCase("a", "1", "1"),
		execution.NewTestCase("b", "2", "2"),
		execution.NewTestCase("c", "3", "3"),
	}
	e := newExecution(t, 1, cases...)

	f.expectBuild(e)
	gomock.InOrder(
		f.runtime.EXPECT().RunContainer(gomock.Any(), e.ImageName, e.ContainerName(cases[0]), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&process.Output{Stdout: "1\n"}, nil),
		f.runtime.EXPECT().RunContainer(gomock.Any(), e.ImageName, e.ContainerName(cases[1]), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&process.Output{Stdout: "2"}, nil),
		f.runtime.EXPECT().RunContainer(gomock.Any(), e.ImageName, e.ContainerName(cases[2]), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&process.Output{Stdout: "4"}, nil),
	)
	f.runtime.EXPECT().Inspect(gomock.Any(), gomock.Any()).Return(inspected(10), nil).Times(3)
	f.runtime.EXPECT().DeleteContainer(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	resp, err := f.strategy.Run(context.Background(), e, false)
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, verdict.WrongAnswer, resp.Verdict)
	assert.Equal(t, []string{"a", "b", "c"}, resp.TestCasesResult.IDs())
	assert.Equal(t, strategy.WrongAnswerMessage, resp.Error)

	for _, id := range []string{"a", "b"} {
		res, _ := resp.TestCasesResult.Get(id)
		assert.Equal(t, verdict.Accepted, res.Verdict, id)
		assert.Empty(t, res.Error, id)
	}
	res, _ := resp.TestCasesResult.Get("c")
	assert.Equal(t, "4", res.Output)
}

func TestStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	cases := []*execution.TestCase{
		execution.NewTestCase("t1", "", "ok"),
		execution.NewTestCase("t2", "", "ok"),
		execution.NewTestCase("t3", "", "ok"),
		execution.NewTestCase("t4", "", "ok"),
	}
	e := newExecution(t, 1, cases...)

	f.expectBuild(e)
	f.expectRun(e, cases[0], &process.Output{Stdout: "ok"}, nil)
	f.expectRun(e, cases[1], &process.Output{Stderr: "Traceback: ZeroDivisionError", ExitCode: 1}, nil)

	resp, err := f.strategy.Run(context.Background(), e, false)
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, verdict.RuntimeError, resp.Verdict)
	assert.Equal(t, []string{"t1", "t2"}, resp.TestCasesResult.IDs())
	assert.Equal(t, "Traceback: ZeroDivisionError", resp.Error)
	assert.False(t, cases[2].Released(), "later test cases are never touched")
}

func TestOutOfMemoryExitCode(t *testing.T) {
	f := newFixture(t)
	tc := execution.NewTestCase("t1", "", "")
	e := newExecution(t, 1, tc)

	f.expectBuild(e)
	f.expectRun(e, tc, &process.Output{ExitCode: 139}, nil)

	resp, err := f.strategy.Run(context.Background(), e, false)
	require.NoError(t, err)
	assert.Equal(t, verdict.OutOfMemory, resp.Verdict)
	assert.Equal(t, strategy.MemoryLimitMessage, resp.Error)
}

func TestHardTimeoutGrowsWithTimeLimit(t *testing.T) {
	f := newFixture(t)
	tc := execution.NewTestCase("t1", "", "")
	e := newExecution(t, 30, tc)
	name := e.ContainerName(tc)

	f.expectBuild(e)
	f.runtime.EXPECT().
		RunContainer(gomock.Any(), e.ImageName, name, 35*time.Second, 0.5, gomock.Any()).
		Return(&process.Output{}, nil)
	f.runtime.EXPECT().Inspect(gomock.Any(), name).Return(inspected(5), nil)
	f.runtime.EXPECT().DeleteContainer(gomock.Any(), name).Return(nil)

	_, err := f.strategy.Run(context.Background(), e, false)
	require.NoError(t, err)
}

func TestEngineFailureAbortsRun(t *testing.T) {
	f := newFixture(t)
	tc := execution.NewTestCase("t1", "", "")
	e := newExecution(t, 1, tc, execution.NewTestCase("t2", "", ""))
	name := e.ContainerName(tc)

	f.expectBuild(e)
	f.runtime.EXPECT().
		RunContainer(gomock.Any(), gomock.Any(), name, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&process.Output{ExitCode: 125}, apperr.DependencyFailure("docker: conflict", nil))
	f.runtime.EXPECT().DeleteContainer(gomock.Any(), name).Return(nil)
	f.runtime.EXPECT().DeleteImage(gomock.Any(), e.ImageName).Return(nil)

	resp, err := f.strategy.Run(context.Background(), e, true)
	f.drain(t)

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, apperr.Is(err, apperr.KindDependencyFailure))
}

func TestFailingCleanupDoesNotAffectResult(t *testing.T) {
	f := newFixture(t)
	tc := execution.NewTestCase("t1", "", "ok")
	e := newExecution(t, 1, tc)
	name := e.ContainerName(tc)

	f.expectBuild(e)
	f.runtime.EXPECT().RunContainer(gomock.Any(), gomock.Any(), name, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&process.Output{Stdout: "ok"}, nil)
	f.runtime.EXPECT().Inspect(gomock.Any(), name).Return(inspected(10), nil)
	f.runtime.EXPECT().DeleteContainer(gomock.Any(), name).Return(apperr.DependencyFailure("daemon unavailable", nil))
	f.runtime.EXPECT().DeleteImage(gomock.Any(), e.ImageName).Return(fmt.Errorf("already gone"))

	resp, err := f.strategy.Run(context.Background(), e, true)
	require.NoError(t, err)
	f.drain(t)

	assert.Equal(t, verdict.Accepted, resp.Verdict)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CleanupTasks.WithLabelValues("container", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CleanupTasks.WithLabelValues("image", "failed")))
}

func TestResponseJSONKeepsOrder(t *testing.T) {
	results := strategy.NewResults()
	results.Add("z", strategy.TestCaseResult{Verdict: verdict.Accepted, ExecutionDuration: 5})
	results.Add("a", strategy.TestCaseResult{Verdict: verdict.WrongAnswer, Output: "1", ExpectedOutput: "2"})

	resp := &strategy.Response{
		Verdict:         verdict.WrongAnswer,
		TestCasesResult: results,
		Error:           "mismatch",
		TimeLimit:       2,
		MemoryLimit:     64,
		Language:        "PYTHON",
		DateTime:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"verdict":"Wrong Answer"`)
	assert.Contains(t, s, `"verdictStatusCode":200`)
	assert.Contains(t, s, `"dateTime":"2024-05-01T10:00:00Z"`)
	assert.Contains(t, s, `"testCasesResult":{"z":{"verdict":"Accepted","verdictStatusCode":100,"output":"","error":"","expectedOutput":"","executionDuration":5},"a":`)
}
