package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quizhub-service/internal/domain"
)

func TestQuestionsCachedInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewSessionCache(newClient(mr), time.Hour, time.Minute)
	loader := &countingLoader{questions: sampleQuestions()}

	qs, err := cache.Questions(context.Background(), 1, loader.load)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 2 || !qs[0].Answers[0].Correct {
		t.Fatalf("unexpected questions %+v", qs)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}

	// Second call should hit cache, loader not incremented.
	if _, err := cache.Questions(context.Background(), 1, loader.load); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}

	ttl := mr.TTL("quiz:1:questions")
	if ttl < time.Hour || ttl > time.Hour+6*time.Minute {
		t.Fatalf("expected jittered ttl within 10%% of an hour, got %s", ttl)
	}
}

func TestQuestionsConcurrentMissLoadsOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewSessionCache(newClient(mr), time.Hour, time.Minute)
	release := make(chan struct{})
	loader := &countingLoader{questions: sampleQuestions(), gate: release}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Questions(context.Background(), 2, loader.load); err != nil {
				t.Errorf("questions: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single fill, got %d", loader.calls.Load())
	}
}

func TestQuestionsLoadErrorNotCached(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewSessionCache(newClient(mr), time.Hour, time.Minute)
	boom := errors.New("bank unavailable")
	_, err = cache.Questions(context.Background(), 3, func(context.Context) ([]domain.Question, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if mr.Exists("quiz:3:questions") {
		t.Fatalf("expected nothing cached after a failed load")
	}
}

func TestTTLWithJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := ttlWithJitter(10 * time.Second)
		if got < 10*time.Second || got > 11*time.Second {
			t.Fatalf("jittered ttl out of range: %s", got)
		}
	}
	if ttlWithJitter(0) != 0 {
		t.Fatalf("expected zero ttl to stay zero")
	}
}

type countingLoader struct {
	questions []domain.Question
	gate      chan struct{}
	calls     atomic.Int32
}

func (l *countingLoader) load(context.Context) ([]domain.Question, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.questions, nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: 11, LOID: 1, Level: domain.LevelEasy, Text: "What is 2 + 2?",
			Answers: []domain.Answer{
				{ID: 111, QuestionID: 11, Text: "4", Correct: true},
				{ID: 112, QuestionID: 11, Text: "3"},
			},
		},
		{
			ID: 12, LOID: 1, Level: domain.LevelMedium, Text: "What is 3 * 3?",
			Answers: []domain.Answer{
				{ID: 121, QuestionID: 12, Text: "6"},
				{ID: 122, QuestionID: 12, Text: "9", Correct: true},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
