package sandbox

import (
	"context"
	"time"

	"github.com/itstheanurag/judge/internal/process"
)

//go:generate mockgen -destination=mocks/mock_runtime.go -package=mocks github.com/itstheanurag/judge/internal/sandbox ContainerRuntime

// ContainerRuntime builds, runs, inspects and removes execution containers.
// It carries no judging logic.
type ContainerRuntime interface {
	BuildImage(ctx context.Context, contextPath, imageName, dockerfileName string) (*process.Output, error)
	RunContainer(ctx context.Context, imageName, containerName string, timeout time.Duration, cpus float64, env map[string]string) (*process.Output, error)
	RunContainerWithVolume(ctx context.Context, imageName, containerName string, timeout time.Duration, volumeMount, executionPath, sourceFileName string) (*process.Output, error)
	Inspect(ctx context.Context, containerName string) (*ContainerInfo, error)
	DeleteContainer(ctx context.Context, containerName string) error
	DeleteImage(ctx context.Context, imageName string) error
	IsUp(ctx context.Context) bool

	RunningContainers(ctx context.Context) (string, error)
	ContainersStats(ctx context.Context, all bool) (string, error)
	Images(ctx context.Context) (string, error)
}

// ContainerInfo is a snapshot of `docker container inspect`.
type ContainerInfo struct {
	Status       string `json:"status"`
	CreationTime string `json:"creationTime"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	ExitCode     int    `json:"exitCode"`
	Error        string `json:"error"`
}

// Duration is the time between start and finish as reported by the engine.
// It is false when either timestamp is missing or the span is not positive.
func (c *ContainerInfo) Duration() (time.Duration, bool) {
	if c == nil {
		return 0, false
	}
	start, err := time.Parse(time.RFC3339Nano, c.StartTime)
	if err != nil {
		return 0, false
	}
	end, err := time.Parse(time.RFC3339Nano, c.EndTime)
	if err != nil {
		return 0, false
	}
	d := end.Sub(start)
	if d <= 0 {
		return 0, false
	}
	return d, true
}
