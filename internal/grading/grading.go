// Package grading turns per-question scores into a percentage and a letter grade.
package grading

import "math"

// DefaultMaxScore is the per-question maximum used when none is configured.
const DefaultMaxScore = 10.0

// Breakpoint maps a minimum percentage to a letter grade.
type Breakpoint struct {
	Min   int
	Grade string
}

// Breakpoints is ordered from highest to lowest. Anything below the last entry fails.
var Breakpoints = []Breakpoint{
	{Min: 90, Grade: "A+"},
	{Min: 85, Grade: "A"},
	{Min: 80, Grade: "B+"},
	{Min: 75, Grade: "B"},
	{Min: 70, Grade: "C+"},
	{Min: 65, Grade: "C"},
	{Min: 60, Grade: "D"},
}

// FailGrade is returned below the lowest breakpoint.
const FailGrade = "F"

// Letter maps a percentage to its letter grade.
func Letter(percentage int) string {
	for _, b := range Breakpoints {
		if percentage >= b.Min {
			return b.Grade
		}
	}
	return FailGrade
}

// Percentage returns round(100 * total / max), or 0 when max is not positive.
func Percentage(total, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(100 * total / max))
}

// Summary is the aggregate of one evaluation.
type Summary struct {
	TotalScore float64
	MaxScore   float64
	Percentage int
	Grade      string
}

// Summarize sums scores and derives percentage and grade. The maximum is
// len(scores) * perQuestionMax.
func Summarize(scores []float64, perQuestionMax float64) Summary {
	var total float64
	for _, s := range scores {
		total += s
	}
	max := float64(len(scores)) * perQuestionMax
	pct := Percentage(total, max)
	return Summary{
		TotalScore: total,
		MaxScore:   max,
		Percentage: pct,
		Grade:      Letter(pct),
	}
}
