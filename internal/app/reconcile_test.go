package app_test

import (
	"testing"
	"time"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

func TestReconcile(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	quiz := domain.Quiz{ID: 3, QuestionIDs: []int64{1, 2, 3}, StartTime: &start}
	inProgress := domain.QuizResult{ID: 11, QuizID: 3, UserID: 7, Status: domain.ResultInProgress, Version: 4, CreatedAt: start.Add(-time.Minute)}

	t.Run("terminal rows are left alone", func(t *testing.T) {
		done := inProgress
		done.Status = domain.ResultCompleted
		done.Score = 42
		got, changed := app.Reconcile(&domain.ParticipantRecord{UserID: 7, CurrentScore: 99}, done, quiz, now)
		if changed || got != done {
			t.Fatalf("expected unchanged row, got %+v", got)
		}
	})

	t.Run("completed record", func(t *testing.T) {
		rec := &domain.ParticipantRecord{
			UserID:         7,
			Status:         domain.ParticipantCompleted,
			CurrentScore:   120,
			CorrectAnswers: 2,
			LastAccessed:   start.Add(90 * time.Second),
		}
		got, changed := app.Reconcile(rec, inProgress, quiz, now)
		if !changed || got.Status != domain.ResultCompleted {
			t.Fatalf("expected completed, got %+v", got)
		}
		if got.Score != 120 || got.CorrectAnswers != 2 || got.TotalQuestions != 3 || got.GradeScore != 66.67 {
			t.Fatalf("unexpected projection %+v", got)
		}
		// measured from the quiz start, not the earlier join
		if got.CompletionTime != 90 {
			t.Fatalf("expected 90s completion, got %d", got.CompletionTime)
		}
		if got.ID != inProgress.ID || got.Version != inProgress.Version {
			t.Fatalf("expected identity and version kept for the optimistic write")
		}
	})

	t.Run("in progress record uses now", func(t *testing.T) {
		rec := &domain.ParticipantRecord{UserID: 7, Status: domain.ParticipantInProgress, LastAccessed: start.Add(time.Second)}
		got, _ := app.Reconcile(rec, inProgress, quiz, now)
		if got.Status != domain.ResultCompleted || got.CompletionTime != 300 {
			t.Fatalf("unexpected projection %+v", got)
		}
	})

	t.Run("lost record terminates", func(t *testing.T) {
		partial := inProgress
		partial.CorrectAnswers = 1
		got, changed := app.Reconcile(nil, partial, quiz, now)
		if !changed || got.Status != domain.ResultTerminated || got.GradeScore != 33.33 {
			t.Fatalf("expected terminated, got %+v", got)
		}
	})

	t.Run("empty quiz scores zero", func(t *testing.T) {
		got, _ := app.Reconcile(&domain.ParticipantRecord{UserID: 7}, domain.QuizResult{UserID: 7}, domain.Quiz{ID: 3}, now)
		if got.GradeScore != 0 || got.CompletionTime != 0 {
			t.Fatalf("expected zero grade, got %+v", got)
		}
	})
}
