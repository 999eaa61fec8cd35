package strategy

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/itstheanurag/judge/internal/verdict"
)

type TestCaseResult struct {
	Verdict           verdict.Verdict
	Output            string
	Error             string
	ExpectedOutput    string
	ExecutionDuration int64 // ms, limit+1s when the hard timeout fired
}

func (r TestCaseResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Verdict           string `json:"verdict"`
		VerdictStatusCode int    `json:"verdictStatusCode"`
		Output            string `json:"output"`
		Error             string `json:"error"`
		ExpectedOutput    string `json:"expectedOutput"`
		ExecutionDuration int64  `json:"executionDuration"`
	}{
		Verdict:           r.Verdict.Label(),
		VerdictStatusCode: r.Verdict.StatusCode(),
		Output:            r.Output,
		Error:             r.Error,
		ExpectedOutput:    r.ExpectedOutput,
		ExecutionDuration: r.ExecutionDuration,
	})
}

// Results maps test case ids to results and remembers insertion order.
type Results struct {
	ids  []string
	byID map[string]TestCaseResult
}

func NewResults() *Results {
	return &Results{byID: make(map[string]TestCaseResult)}
}

func (r *Results) Add(id string, res TestCaseResult) {
	if _, ok := r.byID[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.byID[id] = res
}

func (r *Results) Get(id string) (TestCaseResult, bool) {
	res, ok := r.byID[id]
	return res, ok
}

func (r *Results) IDs() []string {
	return append([]string(nil), r.ids...)
}

func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}

func (r *Results) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.byID[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Response is the judged execution. Durations are milliseconds and limits are
// seconds and megabytes, as in the request.
type Response struct {
	Verdict                  verdict.Verdict
	TestCasesResult          *Results
	Error                    string
	CompilationDuration      int64 // ms
	AverageExecutionDuration int64 // ms
	MemoryLimit              int
	TimeLimit                int
	Language                 string
	DateTime                 time.Time
}

func (r *Response) MarshalJSON() ([]byte, error) {
	results := r.TestCasesResult
	if results == nil {
		results = NewResults()
	}
	return json.Marshal(struct {
		Verdict                  string   `json:"verdict"`
		VerdictStatusCode        int      `json:"verdictStatusCode"`
		TestCasesResult          *Results `json:"testCasesResult"`
		Error                    string   `json:"error"`
		CompilationDuration      int64    `json:"compilationDuration"`
		AverageExecutionDuration int64    `json:"averageExecutionDuration"`
		MemoryLimit              int      `json:"memoryLimit"`
		TimeLimit                int      `json:"timeLimit"`
		Language                 string   `json:"language"`
		DateTime                 string   `json:"dateTime"`
	}{
		Verdict:                  r.Verdict.Label(),
		VerdictStatusCode:        r.Verdict.StatusCode(),
		TestCasesResult:          results,
		Error:                    r.Error,
		CompilationDuration:      r.CompilationDuration,
		AverageExecutionDuration: r.AverageExecutionDuration,
		MemoryLimit:              r.MemoryLimit,
		TimeLimit:                r.TimeLimit,
		Language:                 r.Language,
		DateTime:                 r.DateTime.Format(time.RFC3339),
	})
}
