package domain

import "time"

// GradeConfig splits a course total between process work and the final exam.
type GradeConfig struct {
	ProcessWeight   float64 `json:"process_weight"`
	FinalExamWeight float64 `json:"final_exam_weight"`
}

// DefaultGradeConfig is used when a course has no explicit configuration.
var DefaultGradeConfig = GradeConfig{ProcessWeight: 50, FinalExamWeight: 50}

// GradeColumn is a weighted bucket of quizzes within a course.
type GradeColumn struct {
	ID               int64     `json:"id"`
	CourseID         int64     `json:"course_id"`
	Name             string    `json:"name"`
	WeightPercentage float64   `json:"weight_percentage"`
	Order            int       `json:"order"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ColumnQuiz assigns a quiz to a grade column, optionally weighted.
type ColumnQuiz struct {
	ColumnID         int64    `json:"column_id"`
	QuizID           int64    `json:"quiz_id"`
	WeightPercentage *float64 `json:"weight_percentage,omitempty"`
}

// ColumnScore is one column's contribution to a grade result.
type ColumnScore struct {
	ColumnID int64    `json:"column_id"`
	Name     string   `json:"name"`
	Average  *float64 `json:"average"`
	Weight   float64  `json:"weight"`
}

// CourseGradeResult is the computed grade of a user in a course.
type CourseGradeResult struct {
	ID             int64                 `json:"id"`
	CourseID       int64                 `json:"course_id"`
	UserID         int64                 `json:"user_id"`
	ColumnScores   map[int64]ColumnScore `json:"column_scores"`
	ProcessAverage *float64              `json:"process_average"`
	FinalExamScore *float64              `json:"final_exam_score"`
	TotalScore     *float64              `json:"total_score"`
	Grade          string                `json:"grade"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// CourseGradeHistory is an immutable snapshot taken before a grade result is overwritten.
type CourseGradeHistory struct {
	ID         int64             `json:"id"`
	ResultID   int64             `json:"result_id"`
	Snapshot   CourseGradeResult `json:"snapshot"`
	RecordedAt time.Time         `json:"recorded_at"`
}
