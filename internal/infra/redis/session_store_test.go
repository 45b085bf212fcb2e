package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quizhub-service/internal/domain"
)

func TestSessionCacheSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSessionCache(newClient(mr), time.Hour, time.Minute)

	if _, err := cache.Session(ctx, "s-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	session := domain.Session{ID: "s-1", QuizID: 5, UserID: 9, Status: domain.ResultInProgress}
	if err := cache.SaveSession(ctx, session, 10*time.Minute); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if !mr.Exists("quiz_session:s-1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz_session:s-1"); ttl != 10*time.Minute {
		t.Fatalf("expected session ttl 10m, got %s", ttl)
	}
	got, err := cache.Session(ctx, "s-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if got.UserID != 9 || got.Answers == nil {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := cache.DeleteSession(ctx, "s-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if mr.Exists("quiz_session:s-1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestSessionCacheState(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSessionCache(newClient(mr), time.Hour, time.Minute)

	if _, ok, err := cache.State(ctx, 5); err != nil || ok {
		t.Fatalf("expected no state, got ok=%v err=%v", ok, err)
	}
	state := domain.QuizState{QuizID: 5, CurrentIndex: 1, CurrentQuestionID: 12, TotalQuestions: 3}
	if err := cache.SaveState(ctx, state); err != nil {
		t.Fatalf("save state: %v", err)
	}
	got, ok, err := cache.State(ctx, 5)
	if err != nil || !ok {
		t.Fatalf("expected state, got ok=%v err=%v", ok, err)
	}
	if got.CurrentQuestionID != 12 || got.TotalQuestions != 3 {
		t.Fatalf("unexpected state %+v", got)
	}

	mr.Set("quiz:6:state", "{not json")
	if _, _, err := cache.State(ctx, 6); err == nil {
		t.Fatalf("expected decode error for corrupt state")
	}
}

func TestSessionCachePurgeQuiz(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSessionCache(newClient(mr), time.Hour, time.Minute)

	load := (&countingLoader{questions: sampleQuestions()}).load
	if _, err := cache.Questions(ctx, 5, load); err != nil {
		t.Fatalf("questions: %v", err)
	}
	_ = cache.SaveState(ctx, domain.QuizState{QuizID: 5})
	_ = cache.SaveSession(ctx, domain.Session{ID: "a", QuizID: 5}, time.Minute)
	_ = cache.SaveSession(ctx, domain.Session{ID: "b", QuizID: 5}, time.Minute)
	_ = cache.SaveSession(ctx, domain.Session{ID: "c", QuizID: 6}, time.Minute)

	if err := cache.PurgeQuiz(ctx, 5); err != nil {
		t.Fatalf("purge: %v", err)
	}
	for _, key := range []string{"quiz:5:questions", "quiz:5:state", "quiz:5:sessions", "quiz_session:a", "quiz_session:b"} {
		if mr.Exists(key) {
			t.Fatalf("expected %s purged", key)
		}
	}
	if !mr.Exists("quiz_session:c") {
		t.Fatalf("expected other quiz session kept")
	}
}

func TestSessionCacheQuizLists(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSessionCache(newClient(mr), time.Hour, time.Minute)

	page := domain.QuizPage{Items: []domain.Quiz{{ID: 1, Name: "Loops"}}, Page: 1, Limit: 10, Total: 1, TotalPages: 1}
	keys := []string{"quizzes:1:10:all:all::", "quizzes:2:10:active:3:loops:name"}
	for _, key := range keys {
		if err := cache.SaveQuizList(ctx, key, page); err != nil {
			t.Fatalf("save list: %v", err)
		}
	}
	got, ok, err := cache.QuizList(ctx, keys[0])
	if err != nil || !ok {
		t.Fatalf("expected cached list, got ok=%v err=%v", ok, err)
	}
	if got.Total != 1 || got.Items[0].Name != "Loops" {
		t.Fatalf("unexpected page %+v", got)
	}
	mr.Set("quiz:9:state", "{}")

	if err := cache.InvalidateQuizLists(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	for _, key := range keys {
		if mr.Exists(key) {
			t.Fatalf("expected %s invalidated", key)
		}
	}
	if !mr.Exists("quiz:9:state") {
		t.Fatalf("expected unrelated keys kept")
	}
	if err := cache.InvalidateQuizLists(ctx); err != nil {
		t.Fatalf("invalidate with nothing cached: %v", err)
	}
}
