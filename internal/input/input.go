// Package input expands repeatable flag values that read from stdin ("-")
// or a file ("@path"), one value per line.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ExpandFlagValues expands values that use - (stdin) or @file syntax. Stdin
// can be consumed once; stdinUsed carries that across flags. Blank lines and
// lines starting with # are skipped.
func ExpandFlagValues(values []string, stdin io.Reader, stdinUsed bool) ([]string, bool, error) {
	var result []string
	for _, v := range values {
		switch {
		case v == "-":
			if stdinUsed {
				return nil, stdinUsed, fmt.Errorf("stdin can only be read by one flag")
			}
			stdinUsed = true
			lines, err := ReadLines(stdin)
			if err != nil {
				return nil, stdinUsed, fmt.Errorf("read stdin: %w", err)
			}
			result = append(result, lines...)
		case strings.HasPrefix(v, "@"):
			path := strings.TrimPrefix(v, "@")
			file, err := os.Open(path)
			if err != nil {
				return nil, stdinUsed, err
			}
			lines, err := ReadLines(file)
			file.Close()
			if err != nil {
				return nil, stdinUsed, fmt.Errorf("read %s: %w", path, err)
			}
			result = append(result, lines...)
		default:
			result = append(result, v)
		}
	}
	return result, stdinUsed, nil
}

// ReadLines reads the non-empty, non-comment lines of r.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
