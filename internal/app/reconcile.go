package app

import (
	"math"
	"time"

	"quizhub-service/internal/domain"
)

// Reconcile projects a participant's realtime record onto its durable result.
// Terminal results are returned unchanged, so finalizing twice is a no-op.
// A nil record means the realtime state was lost; the result is then
// terminated with whatever the durable row already holds.
func Reconcile(rec *domain.ParticipantRecord, durable domain.QuizResult, quiz domain.Quiz, now time.Time) (domain.QuizResult, bool) {
	if durable.Status.Terminal() {
		return durable, false
	}

	out := durable
	out.QuizID = quiz.ID
	if out.TotalQuestions == 0 {
		out.TotalQuestions = len(quiz.QuestionIDs)
	}
	out.UpdatedAt = now

	if rec == nil {
		out.Status = domain.ResultTerminated
		out.GradeScore = gradeScore(out.CorrectAnswers, out.TotalQuestions)
		out.CompletionTime = elapsedSeconds(startOf(quiz, durable), now)
		return out, true
	}

	out.UserID = rec.UserID
	out.Score = rec.CurrentScore
	out.CorrectAnswers = rec.CorrectAnswers
	out.Status = domain.ResultCompleted
	out.GradeScore = gradeScore(out.CorrectAnswers, out.TotalQuestions)

	finishedAt := now
	if rec.Status == domain.ParticipantCompleted && !rec.LastAccessed.IsZero() {
		finishedAt = rec.LastAccessed
	}
	out.CompletionTime = elapsedSeconds(startOf(quiz, durable), finishedAt)
	return out, true
}

func startOf(quiz domain.Quiz, durable domain.QuizResult) time.Time {
	if quiz.StartTime != nil && durable.CreatedAt.Before(*quiz.StartTime) {
		return *quiz.StartTime
	}
	return durable.CreatedAt
}

func elapsedSeconds(from, to time.Time) int64 {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int64(to.Sub(from) / time.Second)
}

// gradeScore is the 0-100 score used by grade aggregation.
func gradeScore(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)*10000/float64(total)) / 100
}
