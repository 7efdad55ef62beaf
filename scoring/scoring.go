// Package scoring turns raw answers into scores and scores into verdicts.
package scoring

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mbolis/survey-builder/model"
)

// Score computes the score of a single raw answer. Rating answers are
// clamped into the question range, yes/no answers score max only for the
// literal "yes", multiple choice answers score the chosen option's value.
// Answers that do not parse as numbers count as 0 before clamping.
func Score(q model.Question, raw string) float64 {
	switch q.Type {
	case model.TypeRating:
		return clamp(number(raw), q.MinScore, q.MaxScore)
	case model.TypeYesNo:
		if raw == "yes" {
			return q.MaxScore
		}
		return q.MinScore
	case model.TypeMultipleChoice:
		return number(raw)
	}
	return 0
}

func number(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Total sums the scores. The survey scoring method is not consulted: totals
// are always sums.
func Total(scores ...float64) float64 {
	var total float64
	for _, s := range scores {
		total += s
	}
	return total
}

// Answer pairs an answered question with its computed score.
type Answer struct {
	Question model.Question
	Value    string
	Score    float64
}

// Evaluate scores the answers to the given questions, in question order.
// Unanswered questions and answers to unknown questions are skipped.
func Evaluate(questions []model.Question, answers map[int64]string) ([]Answer, float64) {
	scored := make([]Answer, 0, len(answers))
	scores := make([]float64, 0, len(answers))
	for _, q := range questions {
		raw, ok := answers[q.ID]
		if !ok {
			continue
		}
		s := Score(q, raw)
		scored = append(scored, Answer{Question: q, Value: raw, Score: s})
		scores = append(scores, s)
	}
	return scored, Total(scores...)
}

// InterpretationMax is the maximum score the verdict bands are computed
// against, whatever the actual maximum of the survey.
const InterpretationMax = 100

type Band int

const (
	BelowAverage Band = iota
	Average
	Good
	Excellent
)

// Interpret maps a total score to its band.
func Interpret(total float64) Band {
	pct := total / InterpretationMax * 100
	switch {
	case pct >= 80:
		return Excellent
	case pct >= 60:
		return Good
	case pct >= 40:
		return Average
	}
	return BelowAverage
}

func (b Band) String() string {
	switch b {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Average:
		return "average"
	}
	return "below_average"
}

func (b Band) Message() string {
	switch b {
	case Excellent:
		return "Excellent! You scored in the top range."
	case Good:
		return "Good score! You're above average."
	case Average:
		return "Average score. There's room for improvement."
	}
	return "Below average. Consider areas for development."
}

// BucketWidth is the width of the score distribution buckets.
const BucketWidth = 10

// Distribution counts scores per bucket of BucketWidth, lowest bucket first.
func Distribution(scores []float64) []model.Bucket {
	counts := map[int]int{}
	for _, s := range scores {
		counts[int(math.Floor(s/BucketWidth))*BucketWidth]++
	}
	buckets := make([]model.Bucket, 0, len(counts))
	for from, n := range counts {
		buckets = append(buckets, model.Bucket{From: from, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].From < buckets[j].From })
	return buckets
}

// Mean is the arithmetic mean of scores, 0 for none.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	return Total(scores...) / float64(len(scores))
}

// Format renders a score without trailing zeros.
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
