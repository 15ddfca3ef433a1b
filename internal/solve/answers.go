// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package solve

import (
	"math"
	"strconv"
	"strings"

	"github.com/scoresummit/exam-engine/pkg/types"
)

// numericTolerance is the absolute tolerance for numeric answer equality.
const numericTolerance = 1e-3

// Normalize canonicalizes an answer string for comparison: whitespace and
// currency/thousands markers are stripped, lone choice letters are
// uppercased.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 1 && s[0] >= 'a' && s[0] <= 'z' {
		return strings.ToUpper(s)
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}

// ParseNumeric parses a decimal or a simple fraction "p/q".
func ParseNumeric(s string) (float64, bool) {
	s = Normalize(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0, false
	}
	n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
	d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0, false
	}
	return n / d, true
}

// Equivalent reports whether two answers denote the same value: exact
// match after normalization, numeric equality within 1e-3, or
// fraction/decimal equivalence ("1/2" vs "0.5").
func Equivalent(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.EqualFold(na, nb) {
		return true
	}
	fa, oka := ParseNumeric(na)
	fb, okb := ParseNumeric(nb)
	if oka && okb {
		return math.Abs(fa-fb) <= numericTolerance
	}
	return false
}

// AnswerValue maps a vote's answer to the value it denotes: for a
// multiple-choice question a letter resolves to its choice text,
// everything else passes through.
func AnswerValue(q types.Question, answer string) string {
	norm := Normalize(answer)
	if q.IsFillIn() || len(norm) != 1 {
		return norm
	}
	idx := int(norm[0] - 'A')
	if idx < 0 || idx >= len(q.Choices) {
		return norm
	}
	return q.Choices[idx]
}

// matchChoice returns the letter of the choice equivalent to value, or
// "" when no choice matches.
func matchChoice(q types.Question, value string) string {
	for i, choice := range q.Choices {
		if Equivalent(choice, value) {
			return q.ChoiceLetter(i)
		}
	}
	return ""
}

// canonicalAnswer normalizes a parsed backend answer for a question: a
// raw value matching one of the choices becomes that choice's letter.
func canonicalAnswer(q types.Question, answer string) string {
	norm := Normalize(answer)
	if q.IsFillIn() {
		return norm
	}
	if len(norm) == 1 && norm[0] >= 'A' && norm[0] <= 'Z' {
		return norm
	}
	if letter := matchChoice(q, norm); letter != "" {
		return letter
	}
	return norm
}

// DefaultAnswer is the placeholder used for fallback votes and degraded
// resolutions.
func DefaultAnswer(q types.Question) string {
	if q.IsFillIn() {
		return "0"
	}
	return "A"
}
