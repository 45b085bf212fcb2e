package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
	"quizhub-service/internal/infra/memory"
	"quizhub-service/internal/scoring"
)

const courseID = int64(1)

type event struct {
	room    string
	name    string
	payload any
}

// recorder is a Broadcaster that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Broadcast(room, name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{room: room, name: name, payload: payload})
}

func (r *recorder) count(room, name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.room == room && e.name == name {
			n++
		}
	}
	return n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flatScorer awards ten points per correct answer.
type flatScorer struct{}

func (flatScorer) Score(ev scoring.Event) scoring.Breakdown {
	if !ev.Correct {
		return scoring.Breakdown{}
	}
	return scoring.Breakdown{Base: 10, Total: 10}
}

type harness struct {
	svc      *app.QuizService
	store    *memory.Store
	bank     *memory.QuestionBank
	cache    *memory.SessionCache
	registry *memory.Registry
	events   *recorder
	clock    *clock
}

func question(id, lo int64) domain.Question {
	return domain.Question{
		ID:    id,
		LOID:  lo,
		Level: domain.LevelMedium,
		Text:  "question",
		Answers: []domain.Answer{
			{ID: id*10 + 1, Text: "right", Correct: true},
			{ID: id*10 + 2, Text: "wrong"},
		},
	}
}

// right and wrong are the answer ids seeded by question.
func right(questionID int64) int64 { return questionID*10 + 1 }
func wrong(questionID int64) int64 { return questionID*10 + 2 }

func newHarness(t *testing.T, opts ...func(*app.Deps)) *harness {
	t.Helper()
	h := &harness{
		bank:     memory.NewQuestionBank(question(101, 1), question(102, 1), question(103, 1), question(104, 1)),
		registry: memory.NewRegistry(),
		events:   &recorder{},
		clock:    &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
	}
	h.store = memory.NewStore(h.bank)
	h.store.AddCourse(courseID, domain.GradeConfig{})
	h.cache = memory.NewSessionCacheWithClock(time.Hour, time.Minute, h.clock.Now)

	pins := 0

	deps := app.Deps{
		Store:       h.store,
		Bank:        h.bank,
		Cache:       h.cache,
		Registry:    h.registry,
		Broadcaster: h.events,
		Scorer:      flatScorer{},
		Clock:       h.clock.Now,
		PIN:         func() string { pins++; return fmt.Sprintf("%06d", pins) },
		Config:      app.Config{CompletionGrace: time.Hour},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = app.NewQuizService(deps)
	t.Cleanup(h.svc.Close)
	return h
}

func (h *harness) createQuiz(t *testing.T, mode domain.QuizMode, ids ...int64) domain.Quiz {
	t.Helper()
	if len(ids) == 0 {
		ids = []int64{101, 102, 103}
	}
	quiz, err := h.svc.CreateQuiz(context.Background(), app.CreateQuizInput{
		CourseID:    courseID,
		Name:        "Fractions",
		Duration:    10,
		Mode:        mode,
		QuestionIDs: ids,
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return quiz
}

func (h *harness) join(t *testing.T, quiz domain.Quiz, userID int64) app.JoinResult {
	t.Helper()
	res, err := h.svc.JoinQuiz(context.Background(), app.JoinInput{QuizID: quiz.ID, UserID: userID, PIN: quiz.PIN})
	if err != nil {
		t.Fatalf("join user %d: %v", userID, err)
	}
	return res
}

func (h *harness) start(t *testing.T, quiz domain.Quiz) {
	t.Helper()
	if _, err := h.svc.StartQuiz(context.Background(), quiz.ID); err != nil {
		t.Fatalf("start quiz: %v", err)
	}
}

func (h *harness) answer(t *testing.T, quiz domain.Quiz, userID, questionID, answerID int64) app.AnswerResult {
	t.Helper()
	res, err := h.svc.SubmitAnswer(context.Background(), app.AnswerInput{
		QuizID:     quiz.ID,
		QuestionID: questionID,
		AnswerID:   answerID,
		UserID:     userID,
	})
	if err != nil {
		t.Fatalf("answer %d by user %d: %v", questionID, userID, err)
	}
	return res
}

func resultOf(t *testing.T, results []domain.QuizResult, userID int64) domain.QuizResult {
	t.Helper()
	for _, r := range results {
		if r.UserID == userID {
			return r
		}
	}
	t.Fatalf("no result for user %d in %+v", userID, results)
	return domain.QuizResult{}
}

// staleRepo fails the first optimistic result update inside a transaction,
// running onStale first to simulate the concurrent writer.
type staleRepo struct {
	app.Repository
	onStale func(ctx context.Context, tx app.Repository, res domain.QuizResult)

	mu    sync.Mutex
	fired bool
}

func (r *staleRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	return r.Repository.RunInTx(ctx, func(ctx context.Context, tx app.Repository) error {
		return fn(ctx, &staleTx{Repository: tx, parent: r})
	})
}

type staleTx struct {
	app.Repository
	parent *staleRepo
}

func (t *staleTx) UpdateResult(ctx context.Context, res *domain.QuizResult) error {
	t.parent.mu.Lock()
	first := !t.parent.fired
	t.parent.fired = true
	t.parent.mu.Unlock()
	if !first {
		return t.Repository.UpdateResult(ctx, res)
	}
	if t.parent.onStale != nil {
		t.parent.onStale(ctx, t.Repository, *res)
	}
	return domain.ErrStaleWrite
}
