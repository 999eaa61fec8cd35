package execution

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/itstheanurag/judge/internal/languages"
)

var entrypointTemplate = template.Must(template.New("entrypoint").Parse(`#!/bin/sh
{{- if .LimitAddressSpace }}
ulimit -v {{ .MemoryLimitKb }}
{{- end }}
timeout {{ .TimeLimit }}s {{ .ExecutionCommand }}
exit $?
`))

// Stage creates the working directory and writes the source file, the test
// case inputs, the language's extra files and the Dockerfile.
func (e *Execution) Stage() error {
	if err := os.MkdirAll(e.Path, 0o755); err != nil {
		return fmt.Errorf("create execution directory: %w", err)
	}

	if err := e.writeFile(e.SourceFileName, e.SourceCode, 0o644); err != nil {
		return err
	}

	for _, tc := range e.TestCases {
		if !tc.HasInput() {
			continue
		}
		input, err := tc.Input()
		if err != nil {
			return fmt.Errorf("stage input of test case %s: %w", tc.ID(), err)
		}
		if err := e.writeFile(tc.InputFileName(), input, 0o644); err != nil {
			return err
		}
	}

	for name, content := range e.Language.ExtraFiles {
		if err := e.writeFile(name, content, 0o644); err != nil {
			return err
		}
	}

	dockerfile, err := renderDockerfile(e.Language, e.SourceFileName)
	if err != nil {
		return err
	}
	return e.writeFile(DockerfileName, dockerfile, 0o644)
}

// CreateEntrypointFiles writes one entrypoint script per test case.
func (e *Execution) CreateEntrypointFiles() error {
	for _, tc := range e.TestCases {
		script, err := e.Entrypoint(tc)
		if err != nil {
			return err
		}
		if err := e.writeFile(tc.EntrypointFileName(), script, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (e *Execution) Entrypoint(tc *TestCase) (string, error) {
	params := e.Language.Params(e.SourceFileName, e.TimeLimit, e.MemoryLimit, tc.InputFileName())

	var buf bytes.Buffer
	if err := entrypointTemplate.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render entrypoint for test case %s: %w", tc.ID(), err)
	}
	return buf.String(), nil
}

func (e *Execution) RemoveDirectory() error {
	if err := os.RemoveAll(e.Path); err != nil {
		return fmt.Errorf("remove execution directory: %w", err)
	}
	return nil
}

func (e *Execution) writeFile(name, content string, perm os.FileMode) error {
	if err := os.WriteFile(filepath.Join(e.Path, name), []byte(content), perm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func renderDockerfile(lang languages.Language, sourceFile string) (string, error) {
	tmpl, err := template.New(lang.ID).Parse(lang.Dockerfile)
	if err != nil {
		return "", fmt.Errorf("parse %s dockerfile: %w", lang.ID, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, languages.DockerfileDataFor(sourceFile)); err != nil {
		return "", fmt.Errorf("render %s dockerfile: %w", lang.ID, err)
	}
	return buf.String(), nil
}
