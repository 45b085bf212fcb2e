package redis

import (
	"context"
	"encoding/json"

	"quizhub-service/internal/domain"
)

// Questions returns the cached question list of a quiz. Misses are filled
// once per quiz through load, even under concurrent callers.
// The list is stored as JSON under quiz:{id}:questions.
func (c *SessionCache) Questions(ctx context.Context, quizID int64, load func(ctx context.Context) ([]domain.Question, error)) ([]domain.Question, error) {
	key := questionsKey(quizID)
	if qs, ok := c.cachedQuestions(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.cachedQuestions(ctx, key); ok {
			return qs, nil
		}
		qs, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(qs)
		if err != nil {
			return nil, err
		}
		_ = c.client.Set(ctx, key, raw, ttlWithJitter(c.questionTTL)).Err()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// cachedQuestions treats unreadable entries as misses.
func (c *SessionCache) cachedQuestions(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil || len(qs) == 0 {
		return nil, false
	}
	return qs, true
}
