package proxy

import (
	"context"
	"regexp"

	"github.com/itstheanurag/judge/internal/apperr"
	"github.com/itstheanurag/judge/internal/execution"
	"github.com/itstheanurag/judge/internal/hooks"
	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/itstheanurag/judge/internal/notify"
	"github.com/itstheanurag/judge/internal/queue"
	"github.com/itstheanurag/judge/internal/resources"
	"github.com/itstheanurag/judge/internal/strategy"
	"github.com/rs/zerolog"
)

const (
	MaxFileLength = 50
	FileNameRegex = `^[a-zA-Z0-9_-]+\.[a-zA-Z0-9]+$`
	TestCaseRegex = `^[a-zA-Z0-9_-]{1,50}$`

	ThrottledMessage = "Request has been throttled, service reached maximum resources usage"
)

var (
	fileNamePattern = regexp.MustCompile(FileNameRegex)
	testCasePattern = regexp.MustCompile(TestCaseRegex)
)

type Limits struct {
	MaxTestCases int
	MinTime      int
	MaxTime      int
	MinMemory    int
	MaxMemory    int
}

type Runner interface {
	Run(ctx context.Context, e *execution.Execution, deleteImage bool) (*strategy.Response, error)
}

type Deferrer interface {
	Submit(job *queue.Job) error
}

// Result is either a finished response or the acknowledgement that the
// execution was handed to the deferred pool.
type Result struct {
	ExecutionID string
	Deferred    bool
	Response    *strategy.Response
}

// Proxy is the entry gate in front of the execution strategy.
type Proxy struct {
	limits      Limits
	resources   *resources.Resources
	runner      Runner
	deferred    Deferrer
	hooks       hooks.Store
	publisher   notify.Publisher
	metrics     *metrics.Registry
	logger      *zerolog.Logger
	deleteImage bool
}

type Options struct {
	Limits      Limits
	DeleteImage bool
}

func New(
	opts Options,
	res *resources.Resources,
	runner Runner,
	deferred Deferrer,
	store hooks.Store,
	publisher notify.Publisher,
	m *metrics.Registry,
	logger *zerolog.Logger,
) *Proxy {
	if publisher == nil {
		publisher = notify.NopPublisher()
	}
	return &Proxy{
		limits:      opts.Limits,
		resources:   res,
		runner:      runner,
		deferred:    deferred,
		hooks:       store,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
		deleteImage: opts.DeleteImage,
	}
}

// Execute validates e, admits it and either runs it or defers it when a
// callback was registered for its id. The admission slot is always released.
func (p *Proxy) Execute(ctx context.Context, e *execution.Execution) (*Result, error) {
	log := p.logger.With().Str("execution_id", e.ID).Logger()

	if err := p.Validate(e); err != nil {
		log.Info().Err(err).Msg("invalid input data")
		return nil, err
	}

	if !p.resources.AllowNewExecution() {
		p.metrics.Throttled.Inc()
		log.Warn().Int("max_requests", p.resources.MaxRequests()).Msg(ThrottledMessage)
		return nil, apperr.Throttled(ThrottledMessage)
	}

	count := p.resources.ReserveResources()
	defer p.resources.Cleanup()
	log.Info().Int("in_flight", count).Int("max_requests", p.resources.MaxRequests()).Msg("new request")

	deferred, err := p.hooks.Contains(ctx, e.ID)
	if err != nil {
		return nil, apperr.DependencyFailure("could not read callback registrations", err)
	}

	if err := e.Stage(); err != nil {
		_ = e.RemoveDirectory()
		return nil, err
	}
	p.metrics.ExecutionsTotal.WithLabelValues(e.Language.ID).Inc()

	if deferred {
		return p.enqueue(ctx, e, &log)
	}
	return p.runNow(ctx, e, &log)
}

func (p *Proxy) runNow(ctx context.Context, e *execution.Execution, log *zerolog.Logger) (*Result, error) {
	log.Info().Msg("start short running execution")
	defer func() {
		if err := e.RemoveDirectory(); err != nil {
			log.Warn().Err(err).Msg("failed to remove execution directory")
		}
	}()

	// A run is only ever stopped by its own timeouts, never by the caller
	// going away.
	ctx = context.WithoutCancel(ctx)

	resp, err := p.runner.Run(ctx, e, p.deleteImage)
	if err != nil {
		return nil, err
	}

	if err := p.publisher.Publish(ctx, notify.Event{ExecutionID: e.ID, Result: resp}); err != nil {
		log.Warn().Err(err).Msg("failed to publish execution event")
	}
	return &Result{ExecutionID: e.ID, Response: resp}, nil
}

func (p *Proxy) enqueue(ctx context.Context, e *execution.Execution, log *zerolog.Logger) (*Result, error) {
	url, err := p.hooks.Get(ctx, e.ID)
	if err != nil {
		_ = e.RemoveDirectory()
		return nil, err
	}

	log.Info().Str("url", url).Msg("start long running execution")
	err = p.deferred.Submit(&queue.Job{
		ID:          e.ID,
		Execution:   e,
		CallbackURL: url,
		DeleteImage: p.deleteImage,
	})
	if err != nil {
		_ = e.RemoveDirectory()
		if apperr.Is(err, apperr.KindThrottled) {
			p.metrics.Throttled.Inc()
		}
		return nil, err
	}
	return &Result{ExecutionID: e.ID, Deferred: true}, nil
}

// Validate checks every request constraint and reports the first violation.
func (p *Proxy) Validate(e *execution.Execution) error {
	n := len(e.TestCases)
	if n == 0 || n > p.limits.MaxTestCases {
		return apperr.BadRequest("Number of test cases should be between 1 and %d", p.limits.MaxTestCases)
	}

	seen := make(map[string]struct{}, n)
	for _, tc := range e.TestCases {
		if !testCasePattern.MatchString(tc.ID()) {
			return apperr.BadRequest("Bad request, test case id must match the following regex %s, provided : %s", TestCaseRegex, tc.ID())
		}
		if _, dup := seen[tc.ID()]; dup {
			return apperr.BadRequest("Bad request, duplicate test case id : %s", tc.ID())
		}
		seen[tc.ID()] = struct{}{}
	}

	if !checkFileName(e.SourceFileName) {
		return apperr.BadRequest("Bad request, sourcecode file must match the following regex %s", FileNameRegex)
	}

	if !e.Language.HasExtension(e.SourceFileName) {
		return apperr.BadRequest("Bad request, sourcecode file extension is not correct, it should be: %s", e.Language.Extension)
	}

	if e.TimeLimit < p.limits.MinTime || e.TimeLimit > p.limits.MaxTime {
		return apperr.BadRequest("Bad request, time limit must be between %d Sec and %d Sec, provided : %d",
			p.limits.MinTime, p.limits.MaxTime, e.TimeLimit)
	}

	if e.MemoryLimit < p.limits.MinMemory || e.MemoryLimit > p.limits.MaxMemory {
		return apperr.BadRequest("Bad request, memory limit must be between %d MB and %d MB, provided : %d",
			p.limits.MinMemory, p.limits.MaxMemory, e.MemoryLimit)
	}

	return nil
}

func checkFileName(name string) bool {
	return name != "" && len(name) <= MaxFileLength && fileNamePattern.MatchString(name)
}
