package grading

import (
	"math"
	"regexp"
	"strconv"
)

// ScoreExtractor pulls normalized scores out of a free-form text report.
// Both methods return a 0-100 value and whether the row was found.
type ScoreExtractor interface {
	Row(text, label string) (float64, bool)
	Total(text string) (float64, bool)
}

// MarkdownTableExtractor reads rows shaped like "| Label | 7/10 |".
type MarkdownTableExtractor struct{}

const fractionPattern = `(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)`

var rxTotal = regexp.MustCompile(`\|\s*\*\*TOTAL\*\*\s*\|\s*\*\*` + fractionPattern + `\*\*\s*\|`)

func (MarkdownTableExtractor) Row(text, label string) (float64, bool) {
	rx, err := regexp.Compile(`\|\s*` + regexp.QuoteMeta(label) + `\s*\|\s*` + fractionPattern + `\s*\|`)
	if err != nil {
		return 0, false
	}
	return matchFraction(rx, text)
}

func (MarkdownTableExtractor) Total(text string) (float64, bool) {
	return matchFraction(rxTotal, text)
}

func matchFraction(rx *regexp.Regexp, text string) (float64, bool) {
	m := rx.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	den, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, false
	}
	return NormalizeFraction(num, den), true
}

// NormalizeFraction maps num/den onto 0-100 as round(100*num/den).
// A zero or negative denominator yields 0.
func NormalizeFraction(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	v := math.Round(100 * num / den)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
