// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"sort"
	"strings"

	"github.com/scoresummit/exam-engine/pkg/types"
)

// mathIndicators are tokens that strongly suggest a math question.
var mathIndicators = []string{
	"solve", "equation", "value of x", "value of y", "function",
	"graph of", "slope", "percent", "probability", "triangle", "angle",
	"integer", "polynomial", "exponent", "median", "mean of", "radius",
	"perimeter", "area of", "volume", "=", "≤", "≥", "√", "π", "x^", "f(x)",
}

// readingIndicators map reading/writing questions to subdomains.
var readingIndicators = map[string][]string{
	"grammar": {
		"underlined", "punctuation", "comma", "semicolon", "verb tense",
		"subject-verb", "conjunction", "which choice completes",
	},
	"comprehension": {
		"passage", "the author", "main purpose", "best evidence",
		"central idea", "the narrator",
	},
	"vocabulary": {"most nearly means", "as used in", "logically precise word"},
}

// mathSubdomains refine a math classification.
var mathSubdomains = map[string][]string{
	"geometry":      {"triangle", "angle", "circle", "radius", "perimeter", "area of", "volume", "parallel", "polygon"},
	"statistics":    {"median", "mean of", "average", "probability", "standard deviation", "data set", "survey", "scatterplot"},
	"advanced-math": {"polynomial", "quadratic", "exponential", "f(x)", "function", "radical", "x^2"},
}

// figureIndicators suggest the question depends on a missing visual.
var figureIndicators = []string{
	"figure", "diagram", "graph shown", "graph above", "graph below",
	"table above", "table below", "scatterplot", "shown above", "shown below",
	"in the picture",
}

// Heuristic classifies a question from keywords alone. Deterministic and
// allocation-light; it is both the fallback and the test oracle for the
// backend classifier.
func Heuristic(q types.Question) types.ClassifiedQuestion {
	text := strings.ToLower(q.Prompt)

	mathScore := 0
	for _, tok := range mathIndicators {
		if strings.Contains(text, tok) {
			mathScore++
		}
	}
	// Numeric fill-ins are almost always math even when the prompt is
	// light on operator tokens.
	if q.IsFillIn() && mathScore > 0 {
		mathScore += 2
	}

	cq := types.ClassifiedQuestion{
		Question:  q,
		HasFigure: hasFigure(q, text),
	}

	if mathScore >= 2 {
		cq.Section = types.SectionMath
		cq.Subdomain = pickSubdomain(text, mathSubdomains, "algebra")
		return cq
	}

	cq.Section = types.SectionReadingWriting
	cq.Subdomain = pickSubdomain(text, readingIndicators, "comprehension")
	return cq
}

func pickSubdomain(text string, table map[string][]string, def string) string {
	subs := make([]string, 0, len(table))
	for sub := range table {
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	best, bestHits := def, 0
	for _, sub := range subs {
		toks := table[sub]
		hits := 0
		for _, tok := range toks {
			if strings.Contains(text, tok) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = sub, hits
		}
	}
	return best
}

func hasFigure(q types.Question, text string) bool {
	if q.FigureRef != "" {
		return true
	}
	for _, tok := range figureIndicators {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
