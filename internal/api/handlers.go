package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/itstheanurag/judge/internal/apperr"
	"github.com/itstheanurag/judge/internal/execution"
	"github.com/itstheanurag/judge/internal/hooks"
	"github.com/itstheanurag/judge/internal/languages"
	"github.com/itstheanurag/judge/internal/proxy"
	"github.com/itstheanurag/judge/internal/sandbox"
	"github.com/rs/zerolog"
)

// CallbackHeader carries the webhook URL of a deferred execution.
const CallbackHeader = "Url"

const maxBodyBytes = 10 << 20

type Executor interface {
	Execute(ctx context.Context, e *execution.Execution) (*proxy.Result, error)
}

// Pinger reports the docker engine version. The janitor implements it.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

type TestCaseRequest struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

type NamedTestCase struct {
	ID string
	TestCaseRequest
}

// TestCases keeps the key order of the JSON object it was decoded from.
type TestCases []NamedTestCase

func (tc *TestCases) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*tc = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("testCases must be an object keyed by test case id")
	}

	var out TestCases
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var body TestCaseRequest
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("test case %s: %w", key, err)
		}
		out = append(out, NamedTestCase{ID: key, TestCaseRequest: body})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*tc = out
	return nil
}

type ExecutionRequest struct {
	Language           string    `json:"language"`
	SourceCode         string    `json:"sourcecode"`
	SourceCodeFileName string    `json:"sourceCodeFileName"`
	TimeLimit          int       `json:"timeLimit"`
	MemoryLimit        int       `json:"memoryLimit"`
	TestCases          TestCases `json:"testCases"`
}

type Handler struct {
	registry *languages.Registry
	executor Executor
	hooks    hooks.Store
	runtime  sandbox.ContainerRuntime
	engine   Pinger
	workdir  string
	logger   *zerolog.Logger
}

// NewHandler wires the HTTP surface. engine may be nil when the docker SDK
// client could not be created.
func NewHandler(
	registry *languages.Registry,
	executor Executor,
	store hooks.Store,
	runtime sandbox.ContainerRuntime,
	engine Pinger,
	workdir string,
	logger *zerolog.Logger,
) *Handler {
	return &Handler{
		registry: registry,
		executor: executor,
		hooks:    store,
		runtime:  runtime,
		engine:   engine,
		workdir:  workdir,
		logger:   logger,
	}
}

func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	var req ExecutionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, apperr.BadRequest("Bad request, invalid request body : %v", err))
		return
	}

	e, err := h.newExecution(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx := r.Context()
	callback := r.Header.Get(CallbackHeader)
	if callback != "" {
		if err := hooks.ValidateURL(callback); err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.hooks.Register(ctx, e.ID, callback); err != nil {
			h.writeError(w, apperr.DependencyFailure("could not register callback", err))
			return
		}
	}

	result, err := h.executor.Execute(ctx, e)
	if err != nil {
		if callback != "" {
			if rmErr := h.hooks.Remove(context.WithoutCancel(ctx), e.ID); rmErr != nil {
				h.logger.Warn().Err(rmErr).Str("execution_id", e.ID).Msg("failed to remove callback")
			}
		}
		h.writeError(w, err)
		return
	}

	if result.Deferred {
		writeJSON(w, http.StatusAccepted, map[string]string{"executionId": result.ExecutionID})
		return
	}
	writeJSON(w, http.StatusOK, result.Response)
}

func (h *Handler) newExecution(req *ExecutionRequest) (*execution.Execution, error) {
	lang, err := h.registry.Get(req.Language)
	if err != nil {
		return nil, apperr.BadRequest("Bad request, language %q is not supported", req.Language)
	}

	testCases := make([]*execution.TestCase, 0, len(req.TestCases))
	for _, tc := range req.TestCases {
		testCases = append(testCases, execution.NewTestCase(tc.ID, tc.Input, tc.ExpectedOutput))
	}

	return execution.New(execution.Options{
		Workdir:        h.workdir,
		Language:       lang,
		SourceCode:     req.SourceCode,
		SourceFileName: req.SourceCodeFileName,
		TimeLimit:      req.TimeLimit,
		MemoryLimit:    req.MemoryLimit,
		TestCases:      testCases,
	}), nil
}

type languageInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Extension         string `json:"extension"`
	DefaultSourceFile string `json:"defaultSourceFile"`
}

func (h *Handler) Languages(w http.ResponseWriter, _ *http.Request) {
	list := h.registry.List()
	out := make([]languageInfo, 0, len(list))
	for _, l := range list {
		out = append(out, languageInfo{
			ID:                l.ID,
			Name:              l.Name,
			Extension:         l.Extension,
			DefaultSourceFile: l.DefaultSourceFile,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type healthStatus struct {
	Status string `json:"status"`
	Docker bool   `json:"docker"`
	Engine string `json:"engine,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Docker: h.runtime.IsUp(r.Context())}

	if h.engine != nil {
		version, err := h.engine.Ping(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("docker engine ping failed")
			status.Docker = false
		}
		status.Engine = version
	}

	if !status.Docker {
		status.Status = "DOWN"
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status.Status = "UP"
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) Containers(w http.ResponseWriter, r *http.Request) {
	h.writeText(w, func() (string, error) { return h.runtime.RunningContainers(r.Context()) })
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	h.writeText(w, func() (string, error) { return h.runtime.ContainersStats(r.Context(), all) })
}

func (h *Handler) Images(w http.ResponseWriter, r *http.Request) {
	h.writeText(w, func() (string, error) { return h.runtime.Images(r.Context()) })
}

func (h *Handler) writeText(w http.ResponseWriter, fetch func() (string, error)) {
	out, err := fetch()
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindThrottled:
		return http.StatusTooManyRequests
	case apperr.KindDependencyFailure:
		return http.StatusFailedDependency
	case apperr.KindOperationTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError || status == http.StatusFailedDependency {
		h.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: apperr.KindOf(err).String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
