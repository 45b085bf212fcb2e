package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

func TestFinishSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	quiz := h.createQuiz(t, domain.ModeAssessment)
	joined := h.join(t, quiz, 7)

	if _, err := h.svc.FinishSession(ctx, joined.Session.ID); !errors.Is(err, domain.ErrQuizNotActive) {
		t.Fatalf("expected pending quiz rejected, got %v", err)
	}
	if _, err := h.svc.FinishSession(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected unknown session, got %v", err)
	}

	h.start(t, quiz)
	h.answer(t, quiz, 7, 101, right(101))

	first, err := h.svc.FinishSession(ctx, joined.Session.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if first.Idempotent || first.Result.Status != domain.ResultCompleted || first.Result.Score != 10 || first.Result.GradeScore != 33.33 {
		t.Fatalf("unexpected first finish %+v", first)
	}

	second, err := h.svc.FinishSession(ctx, joined.Session.ID)
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if !second.Idempotent || second.Result.ID != first.Result.ID || second.Result.Version != first.Result.Version {
		t.Fatalf("expected idempotent replay of %+v, got %+v", first.Result, second)
	}

	rec, _, _ := h.registry.Participant(ctx, quiz.ID, 7)
	if rec.Status != domain.ParticipantCompleted {
		t.Fatalf("expected registry record completed, got %s", rec.Status)
	}
	if _, err := h.svc.SubmitAnswer(ctx, app.AnswerInput{QuizID: quiz.ID, QuestionID: 102, AnswerID: right(102), UserID: 7}); !errors.Is(err, domain.ErrSessionCompleted) {
		t.Fatalf("expected answers rejected after finish, got %v", err)
	}

	// ending the quiz leaves the finished result untouched
	end, err := h.svc.EndQuiz(ctx, quiz.ID, app.TriggerManual)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := resultOf(t, end.Results, 7); got.Version != first.Result.Version || got.Score != 10 {
		t.Fatalf("expected finished result kept, got %+v", got)
	}
}

func TestEndQuizConcurrentSweepAndManualFinalizeOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *app.Deps) { d.Config.FinalizeDelay = 10 * time.Millisecond })
	quiz := h.createQuiz(t, domain.ModeAssessment)
	h.join(t, quiz, 7)
	h.start(t, quiz)
	h.answer(t, quiz, 7, 101, right(101))
	h.clock.Advance(11 * time.Minute)

	var (
		wg        sync.WaitGroup
		manualErr error
		ended     int
		sweepErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, manualErr = h.svc.EndQuiz(ctx, quiz.ID, app.TriggerManual)
	}()
	go func() {
		defer wg.Done()
		ended, sweepErr = h.svc.ExpireOverdue(ctx)
	}()
	wg.Wait()

	if sweepErr != nil {
		t.Fatalf("sweep: %v", sweepErr)
	}
	if manualErr != nil && !errors.Is(manualErr, domain.ErrQuizNotActive) {
		t.Fatalf("manual end: %v", manualErr)
	}
	successes := ended
	if manualErr == nil {
		successes++
	}
	if successes != 1 {
		t.Fatalf("expected exactly one finalization, manual=%v swept=%d", manualErr, ended)
	}
	if n := h.events.count(domain.QuizRoom(quiz.ID), domain.EventQuizEnded); n != 1 {
		t.Fatalf("expected one quizEnded, got %d", n)
	}

	results, _ := h.store.Results(ctx, quiz.ID)
	if len(results) != 1 || results[0].Status != domain.ResultCompleted || results[0].Score != 10 {
		t.Fatalf("expected a single completed result, got %+v", results)
	}
	stored, _ := h.store.Quiz(ctx, quiz.ID)
	if stored.Status != domain.QuizFinished || stored.EndTime == nil || stored.EndTime.After(h.clock.Now()) {
		t.Fatalf("unexpected finished quiz %+v", stored)
	}
}

func TestEndQuizTerminatesLostParticipants(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	quiz := h.createQuiz(t, domain.ModeAssessment)
	h.join(t, quiz, 7)
	h.join(t, quiz, 9)
	h.start(t, quiz)
	h.answer(t, quiz, 7, 101, right(101))

	if err := h.registry.RemoveParticipant(ctx, quiz.ID, 9); err != nil {
		t.Fatalf("remove: %v", err)
	}
	end, err := h.svc.EndQuiz(ctx, quiz.ID, app.TriggerManual)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := resultOf(t, end.Results, 9); got.Status != domain.ResultTerminated || got.Score != 0 || got.GradeScore != 0 {
		t.Fatalf("expected lost participant terminated, got %+v", got)
	}
	if got := resultOf(t, end.Results, 7); got.Status != domain.ResultCompleted {
		t.Fatalf("expected live participant completed, got %+v", got)
	}
}

func TestEndQuizForcesStaleResultWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *app.Deps) { d.Store = &staleRepo{Repository: d.Store} })
	quiz := h.createQuiz(t, domain.ModeAssessment)
	h.join(t, quiz, 7)
	h.start(t, quiz)
	h.answer(t, quiz, 7, 101, right(101))

	if _, err := h.svc.EndQuiz(ctx, quiz.ID, app.TriggerManual); err != nil {
		t.Fatalf("end: %v", err)
	}
	got, err := h.store.Result(ctx, quiz.ID, 7)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if got.Status != domain.ResultCompleted || got.Score != 10 || got.Version != 2 {
		t.Fatalf("expected forced completed write, got %+v", got)
	}
}

func TestEndQuizKeepsConcurrentlyFinalizedResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *app.Deps) {
		d.Store = &staleRepo{
			Repository: d.Store,
			onStale: func(ctx context.Context, tx app.Repository, res domain.QuizResult) {
				res.Status = domain.ResultTerminated
				res.Score = 99
				_ = tx.ForceUpdateResult(ctx, &res)
			},
		}
	})
	quiz := h.createQuiz(t, domain.ModeAssessment)
	h.join(t, quiz, 7)
	h.start(t, quiz)
	h.answer(t, quiz, 7, 101, right(101))

	end, err := h.svc.EndQuiz(ctx, quiz.ID, app.TriggerManual)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := resultOf(t, end.Results, 7); got.Status != domain.ResultTerminated || got.Score != 99 {
		t.Fatalf("expected the terminal row to win, got %+v", got)
	}
}

func TestAllCompletedEndsQuizEarly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *app.Deps) { d.Config.CompletionGrace = 20 * time.Millisecond })
	quiz := h.createQuiz(t, domain.ModeAssessment)
	h.join(t, quiz, 7)
	h.start(t, quiz)

	h.answer(t, quiz, 7, 101, right(101))
	h.answer(t, quiz, 7, 102, right(102))
	last := h.answer(t, quiz, 7, 103, right(103))
	if !last.Completed || len(last.PerfectBonuses) != 4 {
		t.Fatalf("expected completion with every perfect bonus, got %+v", last)
	}
	if last.Score != 30+50+30+40+100 {
		t.Fatalf("expected bonuses added to the score, got %d", last.Score)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, _ := h.store.Quiz(ctx, quiz.ID)
		if stored.Status == domain.QuizFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected quiz to end once everyone completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	res, _ := h.store.Result(ctx, quiz.ID, 7)
	if res.Status != domain.ResultCompleted || res.Score != last.Score || res.GradeScore != 100 {
		t.Fatalf("unexpected final result %+v", res)
	}
}

func TestExpireOverdueSkipsRunningQuizzes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	overdue := h.createQuiz(t, domain.ModeAssessment)
	h.start(t, overdue)
	h.clock.Advance(11 * time.Minute)
	running := h.createQuiz(t, domain.ModeAssessment)
	h.start(t, running)

	ended, err := h.svc.ExpireOverdue(ctx)
	if err != nil || ended != 1 {
		t.Fatalf("expected one quiz ended, got %d %v", ended, err)
	}
	if q, _ := h.store.Quiz(ctx, running.ID); q.Status != domain.QuizActive {
		t.Fatalf("expected running quiz untouched, got %s", q.Status)
	}
	if ended, _ := h.svc.ExpireOverdue(ctx); ended != 0 {
		t.Fatalf("expected nothing left to expire, got %d", ended)
	}
}
