package verdict

import "strings"

// Compare reports whether the program output matches the expected output.
// Both sides are normalized the same way: CRLF becomes LF, trailing spaces
// and tabs are dropped from every line and trailing newlines are dropped from
// the end. Everything else must match byte for byte.
func Compare(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}

func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
