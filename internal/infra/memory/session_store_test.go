package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizhub-service/internal/domain"
)

func TestSessionCacheQuestionsFillOnce(t *testing.T) {
	cache := NewSessionCache(time.Minute, time.Minute)
	calls := 0
	load := func(context.Context) ([]domain.Question, error) {
		calls++
		return []domain.Question{{ID: 1, Text: "2+2?"}}, nil
	}

	for i := 0; i < 3; i++ {
		qs, err := cache.Questions(context.Background(), 5, load)
		if err != nil {
			t.Fatalf("questions: %v", err)
		}
		if len(qs) != 1 {
			t.Fatalf("expected 1 question, got %d", len(qs))
		}
	}
	if calls != 1 {
		t.Fatalf("expected loader once, got %d", calls)
	}

	_ = cache.PurgeQuiz(context.Background(), 5)
	_, _ = cache.Questions(context.Background(), 5, load)
	if calls != 2 {
		t.Fatalf("expected reload after purge, got %d", calls)
	}
}

func TestSessionCacheSessionExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache := NewSessionCacheWithClock(time.Hour, time.Hour, func() time.Time { return now })
	ctx := context.Background()

	s := domain.Session{ID: "s1", QuizID: 5, UserID: 7, Answers: map[int64]domain.SessionAnswer{}}
	if err := cache.SaveSession(ctx, s, 10*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := cache.Session(ctx, "s1"); err != nil {
		t.Fatalf("expected session present: %v", err)
	}

	now = now.Add(11 * time.Minute)
	if _, err := cache.Session(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session expired, got %v", err)
	}
}

func TestSessionCachePurgeDropsQuizSessions(t *testing.T) {
	cache := NewSessionCache(time.Hour, time.Hour)
	ctx := context.Background()
	_ = cache.SaveSession(ctx, domain.Session{ID: "a", QuizID: 1}, time.Hour)
	_ = cache.SaveSession(ctx, domain.Session{ID: "b", QuizID: 2}, time.Hour)
	_ = cache.SaveState(ctx, domain.QuizState{QuizID: 1, CurrentIndex: 3})
	_ = cache.SaveQuizList(ctx, "quizzes:1:10:all:all::", domain.QuizPage{Total: 1})

	_ = cache.PurgeQuiz(ctx, 1)
	_ = cache.InvalidateQuizLists(ctx)

	if _, err := cache.Session(ctx, "a"); err == nil {
		t.Fatalf("expected quiz 1 session purged")
	}
	if _, err := cache.Session(ctx, "b"); err != nil {
		t.Fatalf("expected quiz 2 session kept: %v", err)
	}
	if _, ok, _ := cache.State(ctx, 1); ok {
		t.Fatalf("expected state purged")
	}
	if _, ok, _ := cache.QuizList(ctx, "quizzes:1:10:all:all::"); ok {
		t.Fatalf("expected list cache invalidated")
	}
}
