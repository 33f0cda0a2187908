package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errUserAborted = errors.New("aborted by user")

const applyQuestion = "Are you sure you want to automatically apply changes? No backup of the previous titles will be done outside of the logs."

// confirm asks a yes/no question on w and reads the answer from r. Anything
// other than y or yes, including end of input, is a no.
func confirm(r io.Reader, w io.Writer, question string) (bool, error) {
	fmt.Fprintf(w, "%s [y/N] ", question)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
