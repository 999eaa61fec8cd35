package verdict

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Verdict is the categorical outcome of a test case or of a whole execution.
type Verdict int

const (
	Accepted Verdict = iota + 1
	WrongAnswer
	CompilationError
	RuntimeError
	TimeLimitExceeded
	OutOfMemory
)

// All lists every verdict in declaration order.
var All = []Verdict{Accepted, WrongAnswer, CompilationError, RuntimeError, TimeLimitExceeded, OutOfMemory}

func (v Verdict) Label() string {
	switch v {
	case Accepted:
		return "Accepted"
	case WrongAnswer:
		return "Wrong Answer"
	case CompilationError:
		return "Compilation Error"
	case RuntimeError:
		return "Runtime Error"
	case TimeLimitExceeded:
		return "Time Limit Exceeded"
	case OutOfMemory:
		return "Out Of Memory"
	default:
		return "Unknown"
	}
}

func (v Verdict) StatusCode() int {
	switch v {
	case Accepted:
		return 100
	case WrongAnswer:
		return 200
	case CompilationError:
		return 300
	case OutOfMemory:
		return 400
	case TimeLimitExceeded:
		return 500
	case RuntimeError:
		return 600
	default:
		return 0
	}
}

// MetricLabel is the value used for the verdict label of the verdict counter.
func (v Verdict) MetricLabel() string {
	return strings.ReplaceAll(strings.ToLower(v.Label()), " ", "_")
}

func (v Verdict) String() string {
	return v.Label()
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Label())
}

func (v *Verdict) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	parsed, err := Parse(label)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func Parse(label string) (Verdict, error) {
	for _, v := range All {
		if v.Label() == label {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown verdict %q", label)
}
