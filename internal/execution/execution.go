package execution

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/itstheanurag/judge/internal/languages"
)

const DockerfileName = "Dockerfile"

// Execution is one judge request. It owns its test cases and its working
// directory for the whole run.
type Execution struct {
	ID             string
	Language       languages.Language
	SourceCode     string
	SourceFileName string
	TimeLimit      int // seconds
	MemoryLimit    int // MB
	TestCases      []*TestCase
	CreatedAt      time.Time

	Path      string
	ImageName string
}

type Options struct {
	Workdir        string
	Language       languages.Language
	SourceCode     string
	SourceFileName string
	TimeLimit      int
	MemoryLimit    int
	TestCases      []*TestCase
}

// New assigns an identifier and derives the working directory and image
// name from it. Nothing touches the filesystem until Stage.
func New(opts Options) *Execution {
	return NewWithID(uuid.NewString(), opts)
}

func NewWithID(id string, opts Options) *Execution {
	sourceFile := opts.SourceFileName
	if sourceFile == "" {
		sourceFile = opts.Language.DefaultSourceFile
	}

	return &Execution{
		ID:             id,
		Language:       opts.Language,
		SourceCode:     opts.SourceCode,
		SourceFileName: sourceFile,
		TimeLimit:      opts.TimeLimit,
		MemoryLimit:    opts.MemoryLimit,
		TestCases:      opts.TestCases,
		CreatedAt:      time.Now(),
		Path:           filepath.Join(opts.Workdir, opts.Language.Folder, "execution-"+id),
		ImageName:      "image-" + id,
	}
}

func (e *Execution) ContainerName(tc *TestCase) string {
	return "execution-" + tc.ID() + "-" + e.ImageName
}

func (e *Execution) HardTimeout(floor time.Duration) time.Duration {
	limit := time.Duration(e.TimeLimit)*time.Second + 5*time.Second
	if floor > limit {
		return floor
	}
	return limit
}
