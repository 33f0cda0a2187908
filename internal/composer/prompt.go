// Package composer assembles the system and user messages sent to the model
// for one document, keeping the document text within the context window.
package composer

import (
	_ "embed"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// CharsPerToken is the heuristic used to convert a token budget into a
	// byte budget. No tokenizer is consulted.
	CharsPerToken = 2.5

	// ReservedOutput is subtracted from the budget for the model's answer.
	ReservedOutput = 50

	currencyPlaceholder = "CURRENCY"
)

// DefaultTemplate is the system prompt. Every occurrence of CURRENCY is
// replaced with the configured currency code.
//
//go:embed prompt.txt
var DefaultTemplate string

// Grammar is the GBNF grammar constraining the reply to a title line and an
// amount line.
//
//go:embed grammar.gbnf
var Grammar string

// Prompt is the message pair for one document.
type Prompt struct {
	System string
	User   string

	// Truncated reports whether User is a prefix of the document text.
	Truncated    bool
	OriginalLen  int
	TruncatedLen int
}

// Budget returns the number of bytes of document text that fit next to a
// system message of systemLen bytes in a context of nCtx tokens. The result
// may be zero or negative.
func Budget(nCtx, systemLen int) int {
	return int(math.Ceil(float64(nCtx)*CharsPerToken - float64(systemLen) - ReservedOutput))
}

// EstimateTokens returns the heuristic token count of text.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / CharsPerToken))
}

// Assemble fills the template with currency and bounds content to the byte
// budget left by nCtx. Content within budget is returned unmodified; longer
// content is cut at the last rune boundary at or before the budget.
func Assemble(template, currency string, nCtx int, content string) Prompt {
	system := strings.ReplaceAll(template, currencyPlaceholder, currency)
	budget := Budget(nCtx, len(system))

	p := Prompt{
		System:       system,
		User:         content,
		OriginalLen:  len(content),
		TruncatedLen: len(content),
	}
	if len(content) <= max(budget, 0) {
		return p
	}

	p.User = truncate(content, budget)
	p.Truncated = true
	p.TruncatedLen = len(p.User)
	return p
}

// truncate returns the longest prefix of s that is at most n bytes and does
// not split a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
