// Package grading aggregates quiz results into weighted column averages and
// course grades.
package grading

import (
	"sort"

	"github.com/shopspring/decimal"

	"quizhub-service/internal/domain"
)

// WeightTolerance is the slack allowed when weights must sum to 100.
const WeightTolerance = 0.01

var hundred = decimal.NewFromInt(100)

// NormalizeWeights rescales weights proportionally so they sum to 100.
// Non-positive totals are returned unchanged.
func NormalizeWeights(weights []float64) []float64 {
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(decimal.NewFromFloat(w))
	}
	out := make([]float64, len(weights))
	if !sum.IsPositive() {
		copy(out, weights)
		return out
	}
	for i, w := range weights {
		out[i], _ = decimal.NewFromFloat(w).Mul(hundred).Div(sum).Float64()
	}
	return out
}

// ColumnAverage averages a user's scores over the quizzes of one column.
// scores maps quiz id to the user's grade score. It returns nil when the user
// has no result for any assigned quiz.
func ColumnAverage(assignments []domain.ColumnQuiz, scores map[int64]float64) *float64 {
	var weightedIDs []int64
	var raw []float64
	for _, a := range assignments {
		if a.WeightPercentage != nil {
			weightedIDs = append(weightedIDs, a.QuizID)
			raw = append(raw, *a.WeightPercentage)
		}
	}
	weights := make(map[int64]decimal.Decimal, len(weightedIDs))
	for i, w := range NormalizeWeights(raw) {
		weights[weightedIDs[i]] = decimal.NewFromFloat(w)
	}

	plainSum, plainCount := decimal.Zero, 0
	weightedSum, weightSum := decimal.Zero, decimal.Zero
	for _, a := range assignments {
		s, ok := scores[a.QuizID]
		if !ok {
			continue
		}
		score := decimal.NewFromFloat(s)
		plainSum = plainSum.Add(score)
		plainCount++
		if w, ok := weights[a.QuizID]; ok && w.IsPositive() {
			weightedSum = weightedSum.Add(score.Mul(w))
			weightSum = weightSum.Add(w)
		}
	}
	if plainCount == 0 {
		return nil
	}
	if weightSum.IsPositive() {
		return round(weightedSum.Div(weightSum))
	}
	return round(plainSum.Div(decimal.NewFromInt(int64(plainCount))))
}

// ProcessAverage rolls column averages up by column weight. Columns without an
// average are excluded from both numerator and denominator.
func ProcessAverage(columns []domain.GradeColumn, averages map[int64]*float64) (map[int64]domain.ColumnScore, *float64) {
	sorted := append([]domain.GradeColumn(nil), columns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	scores := make(map[int64]domain.ColumnScore, len(sorted))
	num, den := decimal.Zero, decimal.Zero
	for _, col := range sorted {
		if !col.Active {
			continue
		}
		avg := averages[col.ID]
		scores[col.ID] = domain.ColumnScore{
			ColumnID: col.ID,
			Name:     col.Name,
			Average:  avg,
			Weight:   col.WeightPercentage,
		}
		if avg == nil || col.WeightPercentage <= 0 {
			continue
		}
		w := decimal.NewFromFloat(col.WeightPercentage)
		num = num.Add(decimal.NewFromFloat(*avg).Mul(w))
		den = den.Add(w)
	}
	if !den.IsPositive() {
		return scores, nil
	}
	return scores, round(num.Div(den))
}

// FinalGrade combines the process average and the final exam with the course
// weights. It returns nil unless both operands are present.
func FinalGrade(processAverage, finalExam *float64, cfg domain.GradeConfig) *float64 {
	if processAverage == nil || finalExam == nil {
		return nil
	}
	pw := decimal.NewFromFloat(cfg.ProcessWeight).Div(hundred)
	fw := decimal.NewFromFloat(cfg.FinalExamWeight).Div(hundred)
	total := decimal.NewFromFloat(*processAverage).Mul(pw).Add(decimal.NewFromFloat(*finalExam).Mul(fw))
	return round(total)
}

type band struct {
	min    float64
	letter string
}

// bands on the 10-point scale, descending.
var bands = []band{
	{9.0, "A+"},
	{8.5, "A"},
	{8.0, "B+"},
	{7.0, "B"},
	{6.5, "C+"},
	{5.5, "C"},
	{5.0, "D+"},
	{4.0, "D"},
}

// LetterGrade maps a 100-point total to a letter. Nil totals have no letter.
func LetterGrade(total *float64) string {
	if total == nil {
		return ""
	}
	ten := decimal.NewFromFloat(*total).Div(decimal.NewFromInt(10))
	for _, b := range bands {
		if ten.GreaterThanOrEqual(decimal.NewFromFloat(b.min)) {
			return b.letter
		}
	}
	return "F"
}

func round(d decimal.Decimal) *float64 {
	f, _ := d.Round(2).Float64()
	return &f
}
