package domain

import "time"

// QuizStatus is the lifecycle state of a quiz.
type QuizStatus string

const (
	QuizPending  QuizStatus = "pending"
	QuizActive   QuizStatus = "active"
	QuizFinished QuizStatus = "finished"
)

// QuizMode controls attempt rules and realtime fan-out.
type QuizMode string

const (
	ModeAssessment   QuizMode = "assessment"
	ModePractice     QuizMode = "practice"
	ModeCodePractice QuizMode = "code_practice"
)

// Valid reports whether m is a known quiz mode.
func (m QuizMode) Valid() bool {
	switch m {
	case ModeAssessment, ModePractice, ModeCodePractice:
		return true
	}
	return false
}

// AllowsRetry reports whether a wrong answer may be retried.
func (m QuizMode) AllowsRetry() bool {
	return m == ModePractice || m == ModeCodePractice
}

// Level is a question difficulty label.
type Level string

const (
	LevelEasy   Level = "easy"
	LevelMedium Level = "medium"
	LevelHard   Level = "hard"
	LevelExpert Level = "expert"
)

// Levels lists the selectable difficulty levels in ascending order.
var Levels = []Level{LevelEasy, LevelMedium, LevelHard}

// Features are the per-quiz feature flags.
type Features struct {
	GamificationEnabled        bool `json:"gamification_enabled"`
	AvatarSystemEnabled        bool `json:"avatar_system_enabled"`
	RealTimeLeaderboardEnabled bool `json:"real_time_leaderboard_enabled"`
}

// Quiz is the durable quiz aggregate. QuestionIDs is ordered.
type Quiz struct {
	ID          int64      `json:"id"`
	CourseID    int64      `json:"course_id"`
	Name        string     `json:"name"`
	Duration    int        `json:"duration"` // minutes
	Status      QuizStatus `json:"status"`
	Mode        QuizMode   `json:"quiz_mode"`
	PIN         string     `json:"pin"`
	Features    Features   `json:"features"`
	QuestionIDs []int64    `json:"question_ids"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DurationTime returns the configured quiz duration.
func (q Quiz) DurationTime() time.Duration {
	return time.Duration(q.Duration) * time.Minute
}

// Remaining returns the time left before EndTime, or the full duration when not started.
func (q Quiz) Remaining(now time.Time) time.Duration {
	if q.EndTime == nil {
		return q.DurationTime()
	}
	left := q.EndTime.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Answer is one option of a question.
type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// Question belongs to exactly one learning outcome.
type Question struct {
	ID      int64    `json:"id"`
	LOID    int64    `json:"lo_id"`
	Level   Level    `json:"level"`
	TypeID  int64    `json:"type_id"`
	Text    string   `json:"text"`
	Answers []Answer `json:"answers"`
}

// Public strips correctness flags so the question can be sent to participants.
func (q Question) Public() Question {
	out := q
	out.Answers = make([]Answer, len(q.Answers))
	for i, a := range q.Answers {
		out.Answers[i] = Answer{ID: a.ID, QuestionID: a.QuestionID, Text: a.Text}
	}
	return out
}

// ResultStatus is the durable status of a quiz attempt.
type ResultStatus string

const (
	ResultInProgress ResultStatus = "in_progress"
	ResultCompleted  ResultStatus = "completed"
	ResultTerminated ResultStatus = "terminated"
)

// Terminal reports whether the status can no longer change.
func (s ResultStatus) Terminal() bool {
	return s == ResultCompleted || s == ResultTerminated
}

// QuizResult is the durable projection of a participant's attempt.
type QuizResult struct {
	ID             int64        `json:"id"`
	QuizID         int64        `json:"quiz_id"`
	UserID         int64        `json:"user_id"`
	Score          int          `json:"score"`
	CorrectAnswers int          `json:"correct_answers"`
	TotalQuestions int          `json:"total_questions"`
	GradeScore     float64      `json:"grade_score"`
	Status         ResultStatus `json:"status"`
	CompletionTime int64        `json:"completion_time"` // seconds
	Version        int          `json:"version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Session is the cache-resident per-user quiz session.
type Session struct {
	ID                string                  `json:"session_id"`
	QuizID            int64                   `json:"quiz_id"`
	UserID            int64                   `json:"user_id"`
	StartTime         time.Time               `json:"start_time"`
	EndTime           time.Time               `json:"end_time"`
	CurrentQuestion   int                     `json:"current_question"`
	QuestionStartedAt time.Time               `json:"question_started_at"`
	Answers           map[int64]SessionAnswer `json:"answers"`
	Status            ResultStatus            `json:"status"`
}

// SessionAnswer is the per-question answer state held in a session.
type SessionAnswer struct {
	AnswerID int64 `json:"answer_id"`
	Correct  bool  `json:"correct"`
	Attempts int   `json:"attempts"`
}

// QuizState is the cached quiz-level progress (teacher driven).
type QuizState struct {
	QuizID            int64     `json:"quiz_id"`
	CurrentIndex      int       `json:"current_index"`
	CurrentQuestionID int64     `json:"current_question_id"`
	QuestionStartedAt time.Time `json:"question_started_at"`
	TotalQuestions    int       `json:"total_questions"`
}

// AnswerLog is one question's entry in the realtime participant record.
type AnswerLog struct {
	AnswerID       int64     `json:"answer_id"`
	Correct        bool      `json:"is_correct"`
	Attempts       int       `json:"attempts"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	Points         int       `json:"points"`
	Timestamp      time.Time `json:"timestamp"`
}

// AttemptLog records a single answer attempt in submission order.
type AttemptLog struct {
	QuestionID     int64     `json:"question_id"`
	Correct        bool      `json:"is_correct"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// ParticipantStatus is the realtime status of a participant.
type ParticipantStatus string

const (
	ParticipantInProgress ParticipantStatus = "in_progress"
	ParticipantCompleted  ParticipantStatus = "completed"
)

// ParticipantRecord is the realtime system of record for live scoring.
type ParticipantRecord struct {
	QuizID            int64               `json:"quiz_id"`
	UserID            int64               `json:"user_id"`
	Status            ParticipantStatus   `json:"status"`
	CurrentScore      int                 `json:"current_score"`
	CorrectAnswers    int                 `json:"correct_answers"`
	TotalAnswers      int                 `json:"total_answers"`
	Answers           map[int64]AnswerLog `json:"answers"`
	History           []AttemptLog        `json:"history"`
	CurrentQuestionID int64               `json:"current_question_id"`
	SessionID         string              `json:"session_id"`
	LastAccessed      time.Time           `json:"last_accessed"`
}

// CurrentQuestion is the server-authoritative question start marker of a quiz.
type CurrentQuestion struct {
	StartTime     time.Time `json:"start_time"`
	QuestionIndex int       `json:"question_index"`
	QuestionID    int64     `json:"question_id"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Position       int    `json:"position"`
	UserID         int64  `json:"user_id"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correct_answers"`
	TotalAnswers   int    `json:"total_answers"`
	Status         string `json:"status"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	QuizID    int64              `json:"quiz_id"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// QuizFilter scopes quiz listing.
type QuizFilter struct {
	Page     int
	Limit    int
	Status   QuizStatus
	CourseID int64
	Search   string
	Sort     string
}

// QuizPage is one page of quizzes.
type QuizPage struct {
	Items      []Quiz `json:"items"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
}
