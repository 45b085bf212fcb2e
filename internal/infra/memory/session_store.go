package memory

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizhub-service/internal/domain"
)

type expiring[T any] struct {
	value     T
	expiresAt time.Time // zero never expires
}

func (e expiring[T]) live(now time.Time) bool {
	return e.expiresAt.IsZero() || e.expiresAt.After(now)
}

// SessionCache is an in-memory app.SessionCache with TTLs.
type SessionCache struct {
	questionTTL time.Duration
	listTTL     time.Duration
	clock       func() time.Time
	sf          singleflight.Group

	mu        sync.RWMutex
	questions map[int64]expiring[[]domain.Question]
	states    map[int64]expiring[domain.QuizState]
	sessions  map[string]expiring[domain.Session]
	lists     map[string]expiring[domain.QuizPage]
}

func NewSessionCache(questionTTL, listTTL time.Duration) *SessionCache {
	return NewSessionCacheWithClock(questionTTL, listTTL, time.Now)
}

// NewSessionCacheWithClock is NewSessionCache with an injected clock.
func NewSessionCacheWithClock(questionTTL, listTTL time.Duration, clock func() time.Time) *SessionCache {
	return &SessionCache{
		questionTTL: questionTTL,
		listTTL:     listTTL,
		clock:       clock,
		questions:   make(map[int64]expiring[[]domain.Question]),
		states:      make(map[int64]expiring[domain.QuizState]),
		sessions:    make(map[string]expiring[domain.Session]),
		lists:       make(map[string]expiring[domain.QuizPage]),
	}
}

func (c *SessionCache) Questions(ctx context.Context, quizID int64, load func(ctx context.Context) ([]domain.Question, error)) ([]domain.Question, error) {
	if qs, ok := c.cachedQuestions(quizID); ok {
		return qs, nil
	}
	result, err, _ := c.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if qs, ok := c.cachedQuestions(quizID); ok {
			return qs, nil
		}
		qs, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.questions[quizID] = expiring[[]domain.Question]{value: qs, expiresAt: c.expiry(c.questionTTL)}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

func (c *SessionCache) cachedQuestions(quizID int64) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.questions[quizID]
	if !ok || !e.live(c.clock()) {
		return nil, false
	}
	return append([]domain.Question(nil), e.value...), true
}

func (c *SessionCache) State(_ context.Context, quizID int64) (domain.QuizState, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.states[quizID]
	if !ok || !e.live(c.clock()) {
		return domain.QuizState{}, false, nil
	}
	return e.value, true, nil
}

func (c *SessionCache) SaveState(_ context.Context, state domain.QuizState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[state.QuizID] = expiring[domain.QuizState]{value: state, expiresAt: c.expiry(c.questionTTL)}
	return nil
}

func (c *SessionCache) Session(_ context.Context, sessionID string) (domain.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.sessions[sessionID]
	if !ok || !e.live(c.clock()) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return copySession(e.value), nil
}

func (c *SessionCache) SaveSession(_ context.Context, session domain.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = c.clock().Add(ttl)
	}
	c.sessions[session.ID] = expiring[domain.Session]{value: copySession(session), expiresAt: exp}
	return nil
}

func (c *SessionCache) DeleteSession(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

func (c *SessionCache) PurgeQuiz(_ context.Context, quizID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.questions, quizID)
	delete(c.states, quizID)
	for id, e := range c.sessions {
		if e.value.QuizID == quizID {
			delete(c.sessions, id)
		}
	}
	return nil
}

func (c *SessionCache) QuizList(_ context.Context, key string) (domain.QuizPage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.lists[key]
	if !ok || !e.live(c.clock()) {
		return domain.QuizPage{}, false, nil
	}
	return e.value, true, nil
}

func (c *SessionCache) SaveQuizList(_ context.Context, key string, page domain.QuizPage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = expiring[domain.QuizPage]{value: page, expiresAt: c.expiry(c.listTTL)}
	return nil
}

func (c *SessionCache) InvalidateQuizLists(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists = make(map[string]expiring[domain.QuizPage])
	return nil
}

// expiry adds up to 10% jitter to spread expirations.
func (c *SessionCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	jitter := time.Duration(rand.Int64N(int64(ttl)/10 + 1))
	return c.clock().Add(ttl + jitter)
}

func copySession(s domain.Session) domain.Session {
	answers := make(map[int64]domain.SessionAnswer, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	s.Answers = answers
	return s
}
