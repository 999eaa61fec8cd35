package languages

import (
	"path"
	"strings"
)

// Language is one row of the capability table. Everything a language needs to
// differ on lives here as data; there is no per-language type.
type Language struct {
	ID        string
	Name      string
	Folder    string
	Extension string

	// DefaultSourceFile is used when the request does not name the file.
	DefaultSourceFile string

	// Dockerfile is a text/template rendered with DockerfileData. The image
	// build compiles the program, so a failing build is a compilation error.
	Dockerfile string

	// Command returns the program invocation without stdin redirection.
	Command func(sourceFile string, memoryLimitMB int) string

	// LimitAddressSpace enables `ulimit -v` in the entrypoint. Managed
	// runtimes size their own heap from the command instead.
	LimitAddressSpace bool

	// ExtraFiles are written next to the source before the build.
	ExtraFiles map[string]string
}

type DockerfileData struct {
	SourceFile string
	ClassName  string
}

// EntrypointParams are the values substituted into the entrypoint script.
type EntrypointParams struct {
	TimeLimit         int
	MemoryLimit       int
	MemoryLimitKb     int
	LimitAddressSpace bool
	ExecutionCommand  string
}

// Params builds the entrypoint parameters for one test case. An empty
// inputFile means the program runs without stdin.
func (l Language) Params(sourceFile string, timeLimit, memoryLimit int, inputFile string) EntrypointParams {
	command := l.Command(sourceFile, memoryLimit)
	if inputFile != "" {
		command = command + " < " + inputFile
	}
	return EntrypointParams{
		TimeLimit:         timeLimit,
		MemoryLimit:       memoryLimit,
		MemoryLimitKb:     memoryLimit * 1024,
		LimitAddressSpace: l.LimitAddressSpace,
		ExecutionCommand:  command,
	}
}

func (l Language) HasExtension(fileName string) bool {
	return strings.HasSuffix(fileName, l.Extension)
}

func className(sourceFile string) string {
	return strings.TrimSuffix(path.Base(sourceFile), path.Ext(sourceFile))
}

func DockerfileDataFor(sourceFile string) DockerfileData {
	return DockerfileData{SourceFile: sourceFile, ClassName: className(sourceFile)}
}
