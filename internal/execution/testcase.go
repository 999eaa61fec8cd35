package execution

import (
	"errors"
)

var ErrTestCaseReleased = errors.New("test case payload already released")

// TestCase is one (input, expected output) pair. Its payloads can be released
// once they are no longer needed; reading them afterwards is an error.
type TestCase struct {
	id             string
	input          string
	hasInput       bool
	expectedOutput string
	released       bool
}

// NewTestCase builds a test case. An empty input means the program runs
// without stdin.
func NewTestCase(id, input, expectedOutput string) *TestCase {
	return &TestCase{
		id:             id,
		input:          input,
		hasInput:       input != "",
		expectedOutput: expectedOutput,
	}
}

func (tc *TestCase) ID() string {
	return tc.id
}

func (tc *TestCase) HasInput() bool {
	return tc.hasInput
}

func (tc *TestCase) Input() (string, error) {
	if tc.released {
		return "", ErrTestCaseReleased
	}
	return tc.input, nil
}

func (tc *TestCase) ExpectedOutput() (string, error) {
	if tc.released {
		return "", ErrTestCaseReleased
	}
	return tc.expectedOutput, nil
}

// Free drops both payloads. HasInput and the file names stay valid.
func (tc *TestCase) Free() {
	tc.input = ""
	tc.expectedOutput = ""
	tc.released = true
}

func (tc *TestCase) Released() bool {
	return tc.released
}

func (tc *TestCase) InputFileName() string {
	if !tc.hasInput {
		return ""
	}
	return tc.id + "-input.txt"
}

func (tc *TestCase) EntrypointFileName() string {
	return "entrypoint-" + tc.id + ".sh"
}
