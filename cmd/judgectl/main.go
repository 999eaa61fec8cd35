package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/itstheanurag/judge/internal/config"
	"github.com/itstheanurag/judge/internal/languages"
	"github.com/itstheanurag/judge/internal/process"
	"github.com/itstheanurag/judge/internal/sandbox"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

type health int

const (
	healthOK health = iota
	healthWarn
	healthError
)

func (h health) String() string {
	switch h {
	case healthOK:
		return "OKAY"
	case healthWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

type feedbackRow struct {
	unit    string
	health  health
	message string
}

type app struct {
	conf    *config.Config
	logger  zerolog.Logger
	runtime *sandbox.DockerCLI
	out     io.Writer
}

func main() {
	a := &app{out: os.Stdout}

	cmd := &cli.Command{
		Name:  "judgectl",
		Usage: "inspect and clean the docker host used by the judge",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log docker commands"},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			{
				Name:  "health",
				Usage: "check docker, the engine API, the workdir and a running judge",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server", Usage: "base URL of a running judge", Value: ""},
				},
				Action: a.health,
			},
			{
				Name:   "ps",
				Usage:  "list running containers",
				Action: a.ps,
			},
			{
				Name:  "stats",
				Usage: "show container resource usage",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "include stopped containers"},
				},
				Action: a.stats,
			},
			{
				Name:   "images",
				Usage:  "list images",
				Action: a.images,
			},
			{
				Name:  "sweep",
				Usage: "remove leftover execution containers and images",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Value: 10 * time.Minute, Usage: "only remove resources older than this"},
				},
				Action: a.sweep,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func (a *app) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	conf, err := config.LoadConfig()
	if err != nil {
		return ctx, err
	}
	a.conf = conf

	level := zerolog.WarnLevel
	if cmd.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	a.runtime = sandbox.NewDockerCLI(process.NewRunner(&a.logger), &a.logger, sandbox.DockerOptions{
		Binary:         conf.Judge.DockerBinary,
		CommandTimeout: conf.Judge.CommandTimeout(),
	})
	return ctx, nil
}

func (a *app) health(ctx context.Context, cmd *cli.Command) error {
	rows := []feedbackRow{a.checkDocker(ctx), a.checkEngine(ctx), a.checkWorkdir()}

	rows = append(rows, feedbackRow{
		unit:    "Languages",
		health:  healthOK,
		message: strconv.Itoa(len(languages.NewRegistry().List())) + " registered",
	})

	server := cmd.String("server")
	if server == "" {
		server = "http://localhost:" + strconv.Itoa(a.conf.Server.Port)
	}
	rows = append(rows, checkServer(ctx, server))

	renderFeedback(a.out, rows)
	for _, r := range rows {
		if r.health == healthError {
			return cli.Exit("", 2)
		}
	}
	return nil
}

func (a *app) checkDocker(ctx context.Context) feedbackRow {
	if !a.runtime.IsUp(ctx) {
		return feedbackRow{unit: "Docker CLI", health: healthError, message: a.conf.Judge.DockerBinary + " ps failed"}
	}
	return feedbackRow{unit: "Docker CLI", health: healthOK, message: a.conf.Judge.DockerBinary}
}

func (a *app) checkEngine(ctx context.Context) feedbackRow {
	janitor, err := sandbox.NewJanitor(&a.logger, nil)
	if err != nil {
		return feedbackRow{unit: "Docker Engine", health: healthError, message: err.Error()}
	}
	defer janitor.Close()

	version, err := janitor.Ping(ctx)
	if err != nil {
		return feedbackRow{unit: "Docker Engine", health: healthError, message: err.Error()}
	}
	return feedbackRow{unit: "Docker Engine", health: healthOK, message: "API " + version}
}

func (a *app) checkWorkdir() feedbackRow {
	info, err := os.Stat(a.conf.Judge.Workdir)
	switch {
	case os.IsNotExist(err):
		return feedbackRow{unit: "Workdir", health: healthWarn, message: a.conf.Judge.Workdir + " does not exist yet"}
	case err != nil:
		return feedbackRow{unit: "Workdir", health: healthError, message: err.Error()}
	case !info.IsDir():
		return feedbackRow{unit: "Workdir", health: healthError, message: a.conf.Judge.Workdir + " is not a directory"}
	}
	return feedbackRow{unit: "Workdir", health: healthOK, message: a.conf.Judge.Workdir}
}

func checkServer(ctx context.Context, baseURL string) feedbackRow {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return feedbackRow{unit: "Judge", health: healthError, message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return feedbackRow{unit: "Judge", health: healthWarn, message: "not reachable at " + baseURL}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return feedbackRow{unit: "Judge", health: healthError, message: baseURL + " answered " + resp.Status}
	}
	return feedbackRow{unit: "Judge", health: healthOK, message: baseURL}
}

func renderFeedback(w io.Writer, feedback []feedbackRow) {
	t := prettytable.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(prettytable.Row{"Unit", "Health", "Message"})
	for _, row := range feedback {
		t.AppendRow(prettytable.Row{row.unit, row.health.String(), row.message})
	}
	t.SetStyle(prettytable.StyleColoredDark)

	textColor := text.Transformer(func(s interface{}) string {
		switch s.(string) {
		case "OKAY":
			return text.FgHiGreen.Sprint(s)
		case "WARN":
			return text.FgHiYellow.Sprint(s)
		case "ERROR":
			return text.FgHiRed.Sprint(s)
		}
		return ""
	})
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Name: "Health", Transformer: textColor, Align: text.AlignCenter},
	})
	t.Render()
}

func (a *app) ps(ctx context.Context, _ *cli.Command) error {
	return a.print(a.runtime.RunningContainers(ctx))
}

func (a *app) stats(ctx context.Context, cmd *cli.Command) error {
	return a.print(a.runtime.ContainersStats(ctx, cmd.Bool("all")))
}

func (a *app) images(ctx context.Context, _ *cli.Command) error {
	return a.print(a.runtime.Images(ctx))
}

func (a *app) print(out string, err error) error {
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(a.out, out)
	return err
}

func (a *app) sweep(ctx context.Context, cmd *cli.Command) error {
	janitor, err := sandbox.NewJanitor(&a.logger, nil)
	if err != nil {
		return err
	}
	defer janitor.Close()

	olderThan := cmd.Duration("older-than")
	report, err := janitor.Sweep(ctx, olderThan)
	if err != nil {
		return err
	}

	printSweep(a.out, olderThan, report)
	if report.Failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func printSweep(w io.Writer, olderThan time.Duration, report sandbox.SweepReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "removed %s containers and %s images older than %s\n",
		green(report.Containers), green(report.Images), olderThan)
	if report.Failed > 0 {
		fmt.Fprintf(w, "%s removals failed, see the log for details\n", red(report.Failed))
	}
}
