package verdict

// Exit codes written by the generated entrypoint script.
const (
	DefaultOOMExitCode     = 139
	DefaultTimeoutExitCode = 124
)

// Engine maps the observable outcome of one container run to a Verdict.
// It performs no I/O and holds only the exit code convention.
type Engine struct {
	OOMExitCode     int
	TimeoutExitCode int
}

func NewEngine(oomExitCode, timeoutExitCode int) Engine {
	return Engine{OOMExitCode: oomExitCode, TimeoutExitCode: timeoutExitCode}
}

// Evaluate applies the precedence timeout > out of memory > abnormal exit >
// output mismatch > accepted.
func (e Engine) Evaluate(exitCode int, timedOut bool, outputsMatch bool) Verdict {
	switch {
	case timedOut || (e.TimeoutExitCode != 0 && exitCode == e.TimeoutExitCode):
		return TimeLimitExceeded
	case exitCode == e.OOMExitCode:
		return OutOfMemory
	case exitCode != 0:
		return RuntimeError
	case !outputsMatch:
		return WrongAnswer
	default:
		return Accepted
	}
}
