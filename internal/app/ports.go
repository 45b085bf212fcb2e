package app

import (
	"context"
	"time"

	"quizhub-service/internal/domain"
)

// Repository is the durable quiz store (bun/postgres, memory).
type Repository interface {
	// RunInTx runs fn in a transaction; any error rolls it back. Inside fn
	// only repo may be used.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	CourseExists(ctx context.Context, courseID int64) (bool, error)
	// PINInUse reports whether pin belongs to a quiz that has not finished.
	PINInUse(ctx context.Context, pin string) (bool, error)

	InsertQuiz(ctx context.Context, quiz *domain.Quiz) error
	Quiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	// LockQuiz reads a quiz and holds a row lock until the transaction ends.
	LockQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	UpdateQuiz(ctx context.Context, quiz *domain.Quiz) error
	ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, int, error)
	// OverdueQuizzes returns active quizzes whose end time is before now.
	OverdueQuizzes(ctx context.Context, now time.Time) ([]int64, error)

	// InsertQuestion stores an inline authored question with its answers.
	InsertQuestion(ctx context.Context, q *domain.Question) error

	Result(ctx context.Context, quizID, userID int64) (domain.QuizResult, error)
	// LockResult is Result with a row lock held until the transaction ends.
	LockResult(ctx context.Context, quizID, userID int64) (domain.QuizResult, error)
	Results(ctx context.Context, quizID int64) ([]domain.QuizResult, error)
	InsertResult(ctx context.Context, res *domain.QuizResult) error
	// UpdateResult writes res when the stored version equals res.Version and
	// increments it. A mismatch returns domain.ErrStaleWrite.
	UpdateResult(ctx context.Context, res *domain.QuizResult) error
	// ForceUpdateResult writes res without the version check.
	ForceUpdateResult(ctx context.Context, res *domain.QuizResult) error
	DeleteResult(ctx context.Context, resultID int64) error
}

// QuestionBank reads questions.
type QuestionBank interface {
	// QuestionPool returns every question of the given learning outcomes,
	// optionally restricted to one question type.
	QuestionPool(ctx context.Context, loIDs []int64, typeID *int64) ([]domain.Question, error)
	// Questions returns the questions in ids order. A missing id yields
	// domain.ErrQuestionNotFound.
	Questions(ctx context.Context, ids []int64) ([]domain.Question, error)
}

// SessionCache holds the in-flight quiz state with TTLs.
type SessionCache interface {
	// Questions returns the cached question list of a quiz, filling it with
	// load on a miss.
	Questions(ctx context.Context, quizID int64, load func(ctx context.Context) ([]domain.Question, error)) ([]domain.Question, error)
	State(ctx context.Context, quizID int64) (domain.QuizState, bool, error)
	SaveState(ctx context.Context, state domain.QuizState) error

	Session(ctx context.Context, sessionID string) (domain.Session, error)
	SaveSession(ctx context.Context, session domain.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string) error

	// PurgeQuiz drops every quiz-scoped entry: questions, state, sessions.
	PurgeQuiz(ctx context.Context, quizID int64) error

	QuizList(ctx context.Context, key string) (domain.QuizPage, bool, error)
	SaveQuizList(ctx context.Context, key string, page domain.QuizPage) error
	InvalidateQuizLists(ctx context.Context) error
}

// Registry is the realtime participant store.
type Registry interface {
	Participant(ctx context.Context, quizID, userID int64) (domain.ParticipantRecord, bool, error)
	Participants(ctx context.Context, quizID int64) ([]domain.ParticipantRecord, error)
	SaveParticipant(ctx context.Context, rec domain.ParticipantRecord) error
	// UpdateParticipant applies fn atomically to the stored record. A missing
	// record yields domain.ErrParticipantNotFound; an fn error aborts the write.
	UpdateParticipant(ctx context.Context, quizID, userID int64, fn func(rec *domain.ParticipantRecord) error) (domain.ParticipantRecord, error)
	RemoveParticipant(ctx context.Context, quizID, userID int64) error

	SetCurrentQuestion(ctx context.Context, quizID int64, cq domain.CurrentQuestion) error
	CurrentQuestion(ctx context.Context, quizID int64) (domain.CurrentQuestion, bool, error)
}

// Broadcaster delivers room-scoped events. Delivery is best-effort.
type Broadcaster interface {
	Broadcast(room, event string, payload any)
}

// MultiBroadcaster fans every event out to all of its members.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) Broadcast(room, event string, payload any) {
	for _, b := range m {
		b.Broadcast(room, event, payload)
	}
}

// NopBroadcaster drops every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, string, any) {}
