package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizhub-service/internal/domain"
)

// SessionCache is the Redis app.SessionCache.
// Keys:
//   - quiz:{id}:questions  question list, jittered questionTTL
//   - quiz:{id}:state      teacher-driven progress, questionTTL
//   - quiz:{id}:sessions   set of session ids of the quiz
//   - quiz_session:{sid}   per-user session, TTL chosen by the caller
//   - quizzes:...          list pages, jittered listTTL
type SessionCache struct {
	client      *redis.Client
	questionTTL time.Duration
	listTTL     time.Duration
	sf          singleflight.Group
}

func NewSessionCache(client *redis.Client, questionTTL, listTTL time.Duration) *SessionCache {
	return &SessionCache{
		client:      client,
		questionTTL: questionTTL,
		listTTL:     listTTL,
	}
}

func (c *SessionCache) State(ctx context.Context, quizID int64) (domain.QuizState, bool, error) {
	var state domain.QuizState
	ok, err := c.getJSON(ctx, stateKey(quizID), &state)
	return state, ok, err
}

func (c *SessionCache) SaveState(ctx context.Context, state domain.QuizState) error {
	return c.setJSON(ctx, stateKey(state.QuizID), state, c.questionTTL)
}

func (c *SessionCache) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	var session domain.Session
	ok, err := c.getJSON(ctx, sessionKey(sessionID), &session)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if session.Answers == nil {
		session.Answers = map[int64]domain.SessionAnswer{}
	}
	return session, nil
}

func (c *SessionCache) SaveSession(ctx context.Context, session domain.Session, ttl time.Duration) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	index := quizSessionsKey(session.QuizID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), raw, ttl)
		pipe.SAdd(ctx, index, session.ID)
		pipe.Expire(ctx, index, maxDuration(ttl, c.questionTTL))
		return nil
	})
	return err
}

func (c *SessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKey(sessionID)).Err()
}

// PurgeQuiz deletes the questions, state and every session of a quiz.
func (c *SessionCache) PurgeQuiz(ctx context.Context, quizID int64) error {
	index := quizSessionsKey(quizID)
	ids, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return err
	}
	keys := []string{questionsKey(quizID), stateKey(quizID), index}
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *SessionCache) QuizList(ctx context.Context, key string) (domain.QuizPage, bool, error) {
	var page domain.QuizPage
	ok, err := c.getJSON(ctx, key, &page)
	return page, ok, err
}

func (c *SessionCache) SaveQuizList(ctx context.Context, key string, page domain.QuizPage) error {
	return c.setJSON(ctx, key, page, ttlWithJitter(c.listTTL))
}

// InvalidateQuizLists drops every cached list page.
func (c *SessionCache) InvalidateQuizLists(ctx context.Context) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, listKeyPattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *SessionCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *SessionCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
