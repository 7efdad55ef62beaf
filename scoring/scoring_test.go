package scoring

import (
	"testing"

	"github.com/mbolis/survey-builder/model"
	"github.com/stretchr/testify/assert"
)

func rating(min, max float64) model.Question {
	return model.Question{ID: 1, Type: model.TypeRating, MinScore: min, MaxScore: max}
}

func TestScoreRating(t *testing.T) {
	q := rating(0, 10)

	tests := []struct {
		raw  string
		want float64
	}{
		{"7", 7},
		{"7.5", 7.5},
		{"15", 10},
		{"-3", 0},
		{"abc", 0},
		{"", 0},
		{" 4 ", 4},
		{"NaN", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(q, tt.raw))
		})
	}
}

func TestScoreRatingUnparsableClampsZeroIntoRange(t *testing.T) {
	assert.Equal(t, 1.0, Score(rating(1, 5), "abc"))
}

func TestScoreYesNo(t *testing.T) {
	q := model.Question{Type: model.TypeYesNo, MinScore: 0, MaxScore: 1}

	assert.Equal(t, 1.0, Score(q, "yes"))
	assert.Equal(t, 0.0, Score(q, "no"))
	assert.Equal(t, 0.0, Score(q, "Yes"))
	assert.Equal(t, 0.0, Score(q, "YES"))
	assert.Equal(t, 0.0, Score(q, ""))
}

func TestScoreMultipleChoice(t *testing.T) {
	q := model.Question{Type: model.TypeMultipleChoice, MinScore: 0, MaxScore: 1}

	assert.Equal(t, 3.0, Score(q, "3"))
	assert.Equal(t, 0.0, Score(q, "three"))
}

func TestScoreUnknownType(t *testing.T) {
	assert.Equal(t, 0.0, Score(model.Question{Type: "slider", MaxScore: 10}, "9"))
}

func TestTotalIsSum(t *testing.T) {
	assert.Equal(t, 0.0, Total())
	assert.Equal(t, 13.5, Total(8, 1, 4.5))
}

func TestEvaluate(t *testing.T) {
	questions := []model.Question{
		{ID: 10, Type: model.TypeRating, MinScore: 0, MaxScore: 10},
		{ID: 11, Type: model.TypeYesNo, MinScore: 0, MaxScore: 1},
		{ID: 12, Type: model.TypeRating, MinScore: 0, MaxScore: 10},
	}

	answers, total := Evaluate(questions, map[int64]string{10: "8", 11: "yes", 99: "5"})

	assert.Equal(t, 9.0, total)
	if assert.Len(t, answers, 2) {
		assert.Equal(t, int64(10), answers[0].Question.ID)
		assert.Equal(t, 8.0, answers[0].Score)
		assert.Equal(t, int64(11), answers[1].Question.ID)
		assert.Equal(t, 1.0, answers[1].Score)
	}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		total float64
		want  Band
	}{
		{100, Excellent},
		{80, Excellent},
		{79.9, Good},
		{60, Good},
		{40, Average},
		{39, BelowAverage},
		{0, BelowAverage},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Interpret(tt.total), "total %v", tt.total)
	}

	assert.Equal(t, "Excellent! You scored in the top range.", Excellent.Message())
	assert.Equal(t, "Below average. Consider areas for development.", BelowAverage.Message())
}

func TestDistribution(t *testing.T) {
	buckets := Distribution([]float64{3, 9.5, 12, 55, 58, 100})

	assert.Equal(t, []model.Bucket{
		{From: 0, Count: 2},
		{From: 10, Count: 1},
		{From: 50, Count: 2},
		{From: 100, Count: 1},
	}, buckets)
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 5.0, Mean([]float64{4, 6}))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "9", Format(9))
	assert.Equal(t, "7.5", Format(7.5))
}
