package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

func TestCompletionSchedulerReplacesPendingTask(t *testing.T) {
	s := app.NewCompletionScheduler()
	defer s.Stop()

	var first, second atomic.Int32
	done := make(chan struct{})
	s.Schedule(1, 30*time.Millisecond, func() { first.Add(1) })
	s.Schedule(1, 10*time.Millisecond, func() { second.Add(1); close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("rescheduled task never ran")
	}
	time.Sleep(50 * time.Millisecond)
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("expected only the replacement to run, got %d and %d", first.Load(), second.Load())
	}
	if s.Pending(1) {
		t.Fatalf("expected no pending task after run")
	}
}

func TestCompletionSchedulerCancel(t *testing.T) {
	s := app.NewCompletionScheduler()
	var ran atomic.Bool
	s.Schedule(2, 20*time.Millisecond, func() { ran.Store(true) })
	if !s.Pending(2) {
		t.Fatalf("expected pending task")
	}
	if !s.Cancel(2) {
		t.Fatalf("expected cancel to find the task")
	}
	if s.Cancel(2) {
		t.Fatalf("expected second cancel to report nothing")
	}
	time.Sleep(40 * time.Millisecond)
	if ran.Load() {
		t.Fatalf("cancelled task ran")
	}
}

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireOverdue(context.Context) (int, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestSweeperRunOnce(t *testing.T) {
	target := &countingExpirer{}
	sweeper, err := app.NewSweeper(target, "", zap.NewNop())
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	if ended := sweeper.RunOnce(context.Background()); ended != 2 {
		t.Fatalf("expected 2 ended, got %d", ended)
	}

	target.err = errors.New("database down")
	if ended := sweeper.RunOnce(context.Background()); ended != 2 || target.calls.Load() != 2 {
		t.Fatalf("expected partial count reported on error, got %d", ended)
	}

	if _, err := app.NewSweeper(target, "every tuesday", zap.NewNop()); err == nil {
		t.Fatalf("expected invalid schedule to fail")
	}
}

func TestSweeperEndsOverdueQuiz(t *testing.T) {
	h := newHarness(t)
	quiz := h.createQuiz(t, domain.ModeAssessment)
	h.join(t, quiz, 7)
	h.start(t, quiz)
	h.clock.Advance(11 * time.Minute)

	sweeper, err := app.NewSweeper(h.svc, "@every 1h", zap.NewNop())
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop(context.Background())

	if ended := sweeper.RunOnce(context.Background()); ended != 1 {
		t.Fatalf("expected one quiz ended, got %d", ended)
	}
	stored, _ := h.store.Quiz(context.Background(), quiz.ID)
	if stored.Status != domain.QuizFinished {
		t.Fatalf("expected finished quiz, got %s", stored.Status)
	}
}
