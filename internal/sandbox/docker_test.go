package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/itstheanurag/judge/internal/apperr"
	"github.com/itstheanurag/judge/internal/process"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	timeout time.Duration
	argv    []string
}

type fakeRunner struct {
	calls []call
	out   *process.Output
	err   error
}

func (f *fakeRunner) Run(_ context.Context, timeout time.Duration, argv ...string) (*process.Output, error) {
	f.calls = append(f.calls, call{timeout: timeout, argv: argv})
	out := f.out
	if out == nil {
		out = &process.Output{}
	}
	return out, f.err
}

func newDocker(r *fakeRunner) *DockerCLI {
	logger := zerolog.Nop()
	return NewDockerCLI(r, &logger, DockerOptions{})
}

func TestBuildImageArguments(t *testing.T) {
	r := &fakeRunner{}
	d := newDocker(r)

	_, err := d.BuildImage(context.Background(), "/tmp/exec", "image-1", "Dockerfile")
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	assert.Equal(t, DefaultBuildTimeout, r.calls[0].timeout)
	assert.Equal(t, []string{"docker", "image", "build", "-q", "-f", "/tmp/exec/Dockerfile", "-t", "image-1", "/tmp/exec"}, r.calls[0].argv)
}

func TestRunContainerArguments(t *testing.T) {
	r := &fakeRunner{out: &process.Output{Stdout: "42", Stderr: "warning from program", ExitCode: 1}}
	d := newDocker(r)

	out, err := d.RunContainer(context.Background(), "image-1", "execution-t1-image-1", 7*time.Second, 0.5,
		map[string]string{"TEST_CASE_ID": "t1", "A": "b"})
	require.NoError(t, err, "program stderr and exit codes are not engine failures")
	assert.Equal(t, "42", out.Stdout)
	assert.Equal(t, 1, out.ExitCode)

	assert.Equal(t, 7*time.Second, r.calls[0].timeout)
	assert.Equal(t, []string{"docker", "run", "--name", "execution-t1-image-1", "-e", "A=b", "-e", "TEST_CASE_ID=t1", "--cpus=0.5", "image-1"}, r.calls[0].argv)
}

func TestRunContainerWithVolumeArguments(t *testing.T) {
	r := &fakeRunner{}
	d := newDocker(r)

	_, err := d.RunContainerWithVolume(context.Background(), "image-1", "c1", time.Second, "/host:/app:ro", "/app", "main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"docker", "run", "--name", "c1", "-v", "/host:/app:ro", "-e", "EXECUTION_PATH=/app", "-e", "SOURCE_CODE_FILE_NAME=main.py", "image-1"}, r.calls[0].argv)
}

func TestRunContainerEngineFailure(t *testing.T) {
	r := &fakeRunner{out: &process.Output{Stderr: "docker: Error response from daemon: Conflict.", ExitCode: 125}}
	d := newDocker(r)

	_, err := d.RunContainer(context.Background(), "image-1", "c1", time.Second, 0, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDependencyFailure))
}

func TestRunContainerTimeout(t *testing.T) {
	r := &fakeRunner{
		out: &process.Output{Status: process.StatusTimeout, ExitCode: -1},
		err: fmt.Errorf("%w after 1s", process.ErrTimeout),
	}
	d := newDocker(r)

	out, err := d.RunContainer(context.Background(), "image-1", "c1", time.Second, 0, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindOperationTimeout))
	assert.ErrorIs(t, err, process.ErrTimeout)
	assert.Equal(t, process.StatusTimeout, out.Status)
}

func TestCommandStderrIsDependencyFailure(t *testing.T) {
	r := &fakeRunner{out: &process.Output{Stdout: "CONTAINER ID", Stderr: "permission denied", ExitCode: 0}}
	d := newDocker(r)

	_, err := d.RunningContainers(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDependencyFailure))
	assert.Equal(t, "permission denied", err.Error())
	assert.False(t, d.IsUp(context.Background()))
}

func TestCommandStartFailure(t *testing.T) {
	r := &fakeRunner{err: fmt.Errorf("%w: docker: executable file not found", process.ErrStart)}
	d := newDocker(r)

	_, err := d.Images(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDependencyFailure))
}

func TestDeleteIsIdempotent(t *testing.T) {
	r := &fakeRunner{out: &process.Output{Stderr: "Error response from daemon: No such container: c1", ExitCode: 1}}
	d := newDocker(r)
	assert.NoError(t, d.DeleteContainer(context.Background(), "c1"))
	assert.Equal(t, []string{"docker", "container", "rm", "-f", "c1"}, r.calls[0].argv)

	r = &fakeRunner{out: &process.Output{Stderr: "Error: No such image: image-1", ExitCode: 1}}
	d = newDocker(r)
	assert.NoError(t, d.DeleteImage(context.Background(), "image-1"))
	assert.Equal(t, []string{"docker", "rmi", "-f", "image-1"}, r.calls[0].argv)

	r = &fakeRunner{out: &process.Output{Stderr: "Cannot connect to the Docker daemon", ExitCode: 1}}
	d = newDocker(r)
	assert.Error(t, d.DeleteImage(context.Background(), "image-1"))
}

func TestInspectParsesState(t *testing.T) {
	r := &fakeRunner{out: &process.Output{Stdout: `{"status":"exited","creationTime":"2024-05-01T10:00:00.000000000Z","startTime":"2024-05-01T10:00:01.000000000Z","endTime":"2024-05-01T10:00:01.250000000Z","exitCode":139,"error":"oom \"killed\""}` + "\n"}}
	d := newDocker(r)

	info, err := d.Inspect(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "exited", info.Status)
	assert.Equal(t, 139, info.ExitCode)
	assert.Equal(t, `oom "killed"`, info.Error)

	dur, ok := info.Duration()
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, dur)

	argv := r.calls[0].argv
	assert.Equal(t, []string{"docker", "container", "inspect"}, argv[:3])
	assert.Contains(t, argv[3], "--format=")
	assert.Equal(t, "c1", argv[4])
	assert.Equal(t, DefaultCommandTimeout, r.calls[0].timeout)
}

func TestInspectRejectsGarbage(t *testing.T) {
	r := &fakeRunner{out: &process.Output{Stdout: "not json"}}
	d := newDocker(r)

	_, err := d.Inspect(context.Background(), "c1")
	assert.True(t, apperr.Is(err, apperr.KindDependencyFailure))
}

func TestContainerInfoDurationFallbacks(t *testing.T) {
	var nilInfo *ContainerInfo
	_, ok := nilInfo.Duration()
	assert.False(t, ok)

	_, ok = (&ContainerInfo{StartTime: "0001-01-01T00:00:00Z", EndTime: "0001-01-01T00:00:00Z"}).Duration()
	assert.False(t, ok)

	_, ok = (&ContainerInfo{StartTime: "garbage", EndTime: "2024-05-01T10:00:01Z"}).Duration()
	assert.False(t, ok)
}

func TestStatsFlags(t *testing.T) {
	r := &fakeRunner{out: &process.Output{Stdout: "stats"}}
	d := newDocker(r)

	out, err := d.ContainersStats(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "stats", out)
	assert.Equal(t, []string{"docker", "stats", "--no-stream", "--all"}, r.calls[0].argv)
}

func TestActiveImages(t *testing.T) {
	a := NewActiveImages()
	a.Track("image-1")

	assert.True(t, a.Contains("image-1"))
	assert.True(t, a.Contains("image-1:latest"))
	assert.Equal(t, 1, a.Len())

	a.Untrack("image-1")
	assert.False(t, a.Contains("image-1"))
}

func TestExecutionNameHelpers(t *testing.T) {
	assert.True(t, hasExecutionName([]string{"/execution-t1-image-1"}))
	assert.False(t, hasExecutionName([]string{"/my-execution-db"}))
	assert.False(t, hasExecutionName(nil))

	assert.Equal(t, "image-1", executionTag([]string{"other:1", "image-1:latest"}))
	assert.Equal(t, "", executionTag([]string{"<none>:<none>"}))
}
