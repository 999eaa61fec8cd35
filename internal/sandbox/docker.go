package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/itstheanurag/judge/internal/apperr"
	"github.com/itstheanurag/judge/internal/process"
	"github.com/rs/zerolog"
)

const (
	DefaultBuildTimeout   = 60 * time.Second
	DefaultCommandTimeout = 10 * time.Second

	// dockerRunFailure is the exit code `docker run` uses when the engine,
	// not the contained program, failed.
	dockerRunFailure = 125

	inspectFormat = `{"status":{{json .State.Status}},"creationTime":{{json .Created}},"startTime":{{json .State.StartedAt}},"endTime":{{json .State.FinishedAt}},"exitCode":{{.State.ExitCode}},"error":{{json .State.Error}}}`
)

// CommandRunner is the subprocess layer the CLI runtime drives.
type CommandRunner interface {
	Run(ctx context.Context, timeout time.Duration, argv ...string) (*process.Output, error)
}

type DockerOptions struct {
	Binary         string
	BuildTimeout   time.Duration
	CommandTimeout time.Duration
}

// DockerCLI implements ContainerRuntime by shelling out to the docker binary.
type DockerCLI struct {
	runner         CommandRunner
	logger         *zerolog.Logger
	binary         string
	buildTimeout   time.Duration
	commandTimeout time.Duration
}

func NewDockerCLI(runner CommandRunner, logger *zerolog.Logger, opts DockerOptions) *DockerCLI {
	d := &DockerCLI{
		runner:         runner,
		logger:         logger,
		binary:         opts.Binary,
		buildTimeout:   opts.BuildTimeout,
		commandTimeout: opts.CommandTimeout,
	}
	if d.binary == "" {
		d.binary = "docker"
	}
	if d.buildTimeout <= 0 {
		d.buildTimeout = DefaultBuildTimeout
	}
	if d.commandTimeout <= 0 {
		d.commandTimeout = DefaultCommandTimeout
	}
	return d
}

// BuildImage builds the execution image. Compilation happens inside the
// build, so compiler diagnostics come back as a DependencyFailure message.
func (d *DockerCLI) BuildImage(ctx context.Context, contextPath, imageName, dockerfileName string) (*process.Output, error) {
	return d.execute(ctx, d.buildTimeout,
		"image", "build", "-q",
		"-f", filepath.Join(contextPath, dockerfileName),
		"-t", imageName,
		contextPath,
	)
}

// RunContainer runs the image once. The program's own stderr and exit code
// are returned untouched; only engine failures become errors.
func (d *DockerCLI) RunContainer(ctx context.Context, imageName, containerName string, timeout time.Duration, cpus float64, env map[string]string) (*process.Output, error) {
	args := []string{"run", "--name", containerName}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}

	if cpus > 0 {
		args = append(args, "--cpus="+strconv.FormatFloat(cpus, 'f', -1, 64))
	}
	args = append(args, imageName)

	return d.run(ctx, timeout, containerName, args...)
}

func (d *DockerCLI) RunContainerWithVolume(ctx context.Context, imageName, containerName string, timeout time.Duration, volumeMount, executionPath, sourceFileName string) (*process.Output, error) {
	return d.run(ctx, timeout, containerName,
		"run", "--name", containerName,
		"-v", volumeMount,
		"-e", "EXECUTION_PATH="+executionPath,
		"-e", "SOURCE_CODE_FILE_NAME="+sourceFileName,
		imageName,
	)
}

func (d *DockerCLI) run(ctx context.Context, timeout time.Duration, containerName string, args ...string) (*process.Output, error) {
	argv := append([]string{d.binary}, args...)

	out, err := d.runner.Run(ctx, timeout, argv...)
	if err != nil {
		return out, d.classify(err, "run container "+containerName)
	}
	if out.ExitCode == dockerRunFailure && strings.TrimSpace(out.Stderr) != "" {
		d.logger.Error().Str("container", containerName).Str("stderr", strings.TrimSpace(out.Stderr)).Msg("container engine failed to run container")
		return out, apperr.DependencyFailure(strings.TrimSpace(out.Stderr), nil)
	}
	return out, nil
}

func (d *DockerCLI) Inspect(ctx context.Context, containerName string) (*ContainerInfo, error) {
	out, err := d.execute(ctx, d.commandTimeout, "container", "inspect", "--format="+inspectFormat, containerName)
	if err != nil {
		return nil, err
	}

	var info ContainerInfo
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.Stdout)), &info); err != nil {
		return nil, apperr.DependencyFailure("unexpected inspect output for "+containerName, err)
	}
	return &info, nil
}

// DeleteContainer force-removes the container. A container that is already
// gone is not an error.
func (d *DockerCLI) DeleteContainer(ctx context.Context, containerName string) error {
	_, err := d.execute(ctx, d.commandTimeout, "container", "rm", "-f", containerName)
	if err != nil && isAbsent(err) {
		return nil
	}
	return err
}

// DeleteImage force-removes the image. An image that is already gone is not
// an error.
func (d *DockerCLI) DeleteImage(ctx context.Context, imageName string) error {
	_, err := d.execute(ctx, d.commandTimeout, "rmi", "-f", imageName)
	if err != nil && isAbsent(err) {
		return nil
	}
	return err
}

func (d *DockerCLI) IsUp(ctx context.Context) bool {
	_, err := d.execute(ctx, d.commandTimeout, "ps")
	return err == nil
}

func (d *DockerCLI) RunningContainers(ctx context.Context) (string, error) {
	return d.stdout(d.execute(ctx, d.commandTimeout, "ps"))
}

func (d *DockerCLI) ContainersStats(ctx context.Context, all bool) (string, error) {
	args := []string{"stats", "--no-stream"}
	if all {
		args = append(args, "--all")
	}
	return d.stdout(d.execute(ctx, d.commandTimeout, args...))
}

func (d *DockerCLI) Images(ctx context.Context) (string, error) {
	return d.stdout(d.execute(ctx, d.commandTimeout, "images"))
}

func (d *DockerCLI) stdout(out *process.Output, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return out.Stdout, nil
}

// execute runs an engine command. Anything written to stderr, even with a
// zero exit code, is a DependencyFailure.
func (d *DockerCLI) execute(ctx context.Context, timeout time.Duration, args ...string) (*process.Output, error) {
	argv := append([]string{d.binary}, args...)
	line := strings.Join(argv, " ")

	out, err := d.runner.Run(ctx, timeout, argv...)
	if err != nil {
		return out, d.classify(err, line)
	}

	if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
		d.logger.Warn().Str("cmd", line).Int("exit_code", out.ExitCode).Str("stderr", stderr).Msg("container engine reported an error")
		return out, apperr.DependencyFailure(stderr, nil)
	}
	if out.ExitCode != 0 {
		d.logger.Warn().Str("cmd", line).Int("exit_code", out.ExitCode).Msg("container engine command failed")
		return out, apperr.DependencyFailure(fmt.Sprintf("%s exited with code %d", line, out.ExitCode), nil)
	}
	return out, nil
}

func (d *DockerCLI) classify(err error, what string) error {
	if errors.Is(err, process.ErrTimeout) {
		d.logger.Warn().Err(err).Msg("container engine command timed out")
		return apperr.OperationTimeout(what+" timed out", err)
	}
	d.logger.Error().Err(err).Msg("container engine command could not be started")
	return apperr.DependencyFailure("could not run "+what, err)
}

func isAbsent(err error) bool {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindDependencyFailure {
		return false
	}
	msg := strings.ToLower(appErr.Message)
	return strings.Contains(msg, "no such container") || strings.Contains(msg, "no such image")
}
