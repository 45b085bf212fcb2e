package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCourseNotFound indicates the referenced course does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerNotFound indicates a submitted answer ID is invalid for the question.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrResultNotFound is returned when a participant has no quiz result.
	ErrResultNotFound = errors.New("quiz result not found")
	// ErrSessionNotFound is returned when a quiz session is unknown or expired.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in quiz")
	// ErrColumnNotFound indicates the grade column does not exist.
	ErrColumnNotFound = errors.New("grade column not found")
	// ErrGradeNotFound is returned when a user has no computed course grade.
	ErrGradeNotFound = errors.New("course grade not found")

	// ErrInvalidRatio is returned when difficulty percentages do not sum to 100.
	ErrInvalidRatio = errors.New("difficulty ratio must sum to 100")
	// ErrInvalidPIN is returned when a join PIN does not match the quiz.
	ErrInvalidPIN = errors.New("invalid quiz pin")

	// ErrQuizNotPending is returned by operations that require a pending quiz.
	ErrQuizNotPending = errors.New("quiz is not pending")
	// ErrQuizNotActive is returned by operations that require an active quiz.
	ErrQuizNotActive = errors.New("quiz is not active")
	// ErrQuizNotJoinable is returned when a finished quiz is joined.
	ErrQuizNotJoinable = errors.New("quiz is not open for joining")
	// ErrAlreadyAnswered is returned when a question can no longer be answered.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrQuestionNotCurrent is returned when an answer targets a question other
	// than the participant's current one.
	ErrQuestionNotCurrent = errors.New("question is not the current question")
	// ErrSessionCompleted is returned when a completed session is mutated.
	ErrSessionCompleted = errors.New("quiz session already completed")
	// ErrStaleWrite is returned when an optimistic version check fails.
	ErrStaleWrite = errors.New("stale write: row version changed")

	// ErrRegistryUnavailable wraps realtime registry failures.
	ErrRegistryUnavailable = errors.New("realtime registry unavailable")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports an operation that is invalid in the current state.
// Hint carries an actionable alternative when one exists.
type ConflictError struct {
	Message string
	Hint    string
}

func (e *ConflictError) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + " (" + e.Hint + ")"
}

// InsufficientQuestionsError is returned when the question pool cannot satisfy
// coverage or count. LOID is zero when the shortfall is pool-wide.
type InsufficientQuestionsError struct {
	LOID      int64
	Needed    int
	Available int
}

func (e *InsufficientQuestionsError) Error() string {
	if e.LOID != 0 {
		return fmt.Sprintf("insufficient questions for learning outcome %d", e.LOID)
	}
	return fmt.Sprintf("insufficient questions: need %d, only %d available", e.Needed, e.Available)
}

// Kind classifies errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInsufficientData
	KindExternal
)

var (
	notFoundErrs = []error{
		ErrQuizNotFound, ErrCourseNotFound, ErrQuestionNotFound, ErrAnswerNotFound,
		ErrResultNotFound, ErrSessionNotFound, ErrParticipantNotFound, ErrColumnNotFound,
		ErrGradeNotFound,
	}
	validationErrs = []error{ErrInvalidRatio, ErrInvalidPIN}
	conflictErrs   = []error{
		ErrQuizNotPending, ErrQuizNotActive, ErrQuizNotJoinable, ErrAlreadyAnswered,
		ErrQuestionNotCurrent, ErrSessionCompleted, ErrStaleWrite,
	}
)

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return KindConflict
	}
	var ie *InsufficientQuestionsError
	if errors.As(err, &ie) {
		return KindInsufficientData
	}
	for _, target := range notFoundErrs {
		if errors.Is(err, target) {
			return KindNotFound
		}
	}
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return KindValidation
		}
	}
	for _, target := range conflictErrs {
		if errors.Is(err, target) {
			return KindConflict
		}
	}
	if errors.Is(err, ErrRegistryUnavailable) {
		return KindExternal
	}
	return KindInternal
}
