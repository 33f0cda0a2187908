// Package extract decodes the model's two-line reply into a title and an
// optional amount.
package extract

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NoAmount is the second-line marker for documents without an amount.
const NoAmount = "-"

// ErrMalformedOutput is matched by every *MalformedOutputError.
var ErrMalformedOutput = errors.New("malformed model output")

// MalformedOutputError describes a reply that does not follow the two-line
// format.
type MalformedOutputError struct {
	Reason string
	Raw    string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %s: %q", ErrMalformedOutput, e.Reason, e.Raw)
}

func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}

// Result is the decoded reply.
type Result struct {
	Title  string
	Amount *float64
}

// Parse validates raw and decodes it. The reply must have exactly two lines:
// a non-empty title, then either "-" or a decimal amount. A trailing newline
// does not count as an extra line and "\r\n" line endings are accepted.
func Parse(raw string) (Result, error) {
	lines := splitLines(raw)
	if len(lines) != 2 {
		return Result{}, &MalformedOutputError{
			Reason: fmt.Sprintf("expected 2 lines, got %d", len(lines)),
			Raw:    raw,
		}
	}

	title, amount := lines[0], lines[1]
	if title == "" {
		return Result{}, &MalformedOutputError{Reason: "empty title", Raw: raw}
	}

	if amount == NoAmount {
		return Result{Title: title}, nil
	}

	v, err := strconv.ParseFloat(amount, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Result{}, &MalformedOutputError{
			Reason: fmt.Sprintf("invalid amount %q", amount),
			Raw:    raw,
		}
	}
	return Result{Title: title, Amount: &v}, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
