package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	containerPrefix = "execution-"
	imagePrefix     = "image-"
)

// ActiveImages is the set of execution images currently in use. The janitor
// never removes an image in this set or a container created from one.
type ActiveImages struct {
	set mapset.Set[string]
}

func NewActiveImages() *ActiveImages {
	return &ActiveImages{set: mapset.NewSet[string]()}
}

func (a *ActiveImages) Track(imageName string)   { a.set.Add(imageName) }
func (a *ActiveImages) Untrack(imageName string) { a.set.Remove(imageName) }

func (a *ActiveImages) Contains(imageName string) bool {
	return a.set.Contains(strings.TrimSuffix(imageName, ":latest"))
}

func (a *ActiveImages) Len() int { return a.set.Cardinality() }

type SweepReport struct {
	Containers int
	Images     int
	Failed     int
}

// Janitor talks to the engine API directly to find execution containers and
// images that outlived their run, typically after a crash.
type Janitor struct {
	cli    *client.Client
	logger *zerolog.Logger
	active *ActiveImages
}

func NewJanitor(logger *zerolog.Logger, active *ActiveImages) (*Janitor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if active == nil {
		active = NewActiveImages()
	}
	return &Janitor{cli: cli, logger: logger, active: active}, nil
}

func (j *Janitor) Ping(ctx context.Context) (string, error) {
	ping, err := j.cli.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("ping docker daemon: %w", err)
	}
	return ping.APIVersion, nil
}

// Sweep removes execution containers and images older than minAge that are
// not tracked as active.
func (j *Janitor) Sweep(ctx context.Context, minAge time.Duration) (SweepReport, error) {
	var report SweepReport
	cutoff := time.Now().Add(-minAge).Unix()

	containers, err := j.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", containerPrefix)),
	})
	if err != nil {
		return report, fmt.Errorf("list containers: %w", err)
	}

	var removedContainers, removedImages, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, c := range containers {
		if !hasExecutionName(c.Names) || c.Created > cutoff || j.active.Contains(c.Image) {
			continue
		}
		id, name := c.ID, strings.TrimPrefix(c.Names[0], "/")
		g.Go(func() error {
			if err := j.cli.ContainerRemove(gctx, id, container.RemoveOptions{Force: true}); err != nil {
				failed.Add(1)
				j.logger.Warn().Err(err).Str("container", name).Msg("failed to remove stale container")
				return nil
			}
			removedContainers.Add(1)
			j.logger.Info().Str("container", name).Msg("removed stale container")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	images, err := j.cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", imagePrefix+"*")),
	})
	if err != nil {
		return report, fmt.Errorf("list images: %w", err)
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, img := range images {
		tag := executionTag(img.RepoTags)
		if tag == "" || img.Created > cutoff || j.active.Contains(tag) {
			continue
		}
		id := img.ID
		g.Go(func() error {
			if _, err := j.cli.ImageRemove(gctx, id, image.RemoveOptions{Force: true, PruneChildren: true}); err != nil {
				failed.Add(1)
				j.logger.Warn().Err(err).Str("image", tag).Msg("failed to remove stale image")
				return nil
			}
			removedImages.Add(1)
			j.logger.Info().Str("image", tag).Msg("removed stale image")
			return nil
		})
	}
	err = g.Wait()

	report.Containers = int(removedContainers.Load())
	report.Images = int(removedImages.Load())
	report.Failed = int(failed.Load())
	return report, err
}

func (j *Janitor) Close() error {
	return j.cli.Close()
}

func hasExecutionName(names []string) bool {
	return len(names) > 0 && strings.HasPrefix(strings.TrimPrefix(names[0], "/"), containerPrefix)
}

func executionTag(tags []string) string {
	for _, t := range tags {
		if strings.HasPrefix(t, imagePrefix) {
			return strings.TrimSuffix(t, ":latest")
		}
	}
	return ""
}
