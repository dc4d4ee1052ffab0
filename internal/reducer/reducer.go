// Package reducer fits an exported HCL configuration document into the
// context window of the upstream model. The document is minified, cut to a
// character budget, and measured; any truncation at all means the caller must
// refuse the query rather than answer from partial configuration.
package reducer

import (
	"math"
	"strings"
)

// RefusalResponse is returned to the user instead of an answer whenever the
// minified document does not fit the budget. Partial context produces
// confidently wrong answers, so the trade is precision over completeness.
const RefusalResponse = "Your query was too broad. Please ask a more specific question."

// Result is the outcome of sizing a document against a character budget.
type Result struct {
	// Text is the minified document, cut to the budget.
	Text string
	// TruncatedPercent is how much of the minified document was cut,
	// rounded to two decimals. 0 when everything fit.
	TruncatedPercent float64
	// Refused reports whether any truncation occurred.
	Refused bool
}

// Minify compacts an HCL document without changing its meaning: full-line
// comments, blank lines, indentation, and trailing whitespace are removed.
func Minify(doc string) string {
	lines := strings.Split(doc, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// Reduce minifies the document and cuts it to the first budget characters.
// A budget of zero or less keeps nothing.
func Reduce(doc string, budget int) Result {
	minified := Minify(doc)
	if budget < 0 {
		budget = 0
	}

	runes := []rune(minified)
	truncated := runes
	if len(runes) > budget {
		truncated = runes[:budget]
	}

	percent := 0.0
	if len(runes) != 0 {
		percent = float64(len(runes)-len(truncated)) / float64(len(runes)) * 100
		percent = math.Round(percent*100) / 100
	}

	return Result{
		Text:             string(truncated),
		TruncatedPercent: percent,
		Refused:          percent > 0,
	}
}
