package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quizhub-service/internal/domain"
)

type courseModel struct {
	bun.BaseModel `bun:"table:courses"`

	ID              int64   `bun:"id,pk,autoincrement"`
	Name            string  `bun:"name"`
	ProcessWeight   float64 `bun:"process_weight"`
	FinalExamWeight float64 `bun:"final_exam_weight"`
}

type questionModel struct {
	bun.BaseModel `bun:"table:questions"`

	ID     int64  `bun:"id,pk,autoincrement"`
	LOID   int64  `bun:"lo_id"`
	Level  string `bun:"level"`
	TypeID int64  `bun:"type_id"`
	Text   string `bun:"question_text"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:answers"`

	ID         int64  `bun:"id,pk,autoincrement"`
	QuestionID int64  `bun:"question_id"`
	Text       string `bun:"answer_text"`
	Correct    bool   `bun:"is_correct"`
}

type quizModel struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID          int64           `bun:"id,pk,autoincrement"`
	CourseID    int64           `bun:"course_id"`
	Name        string          `bun:"name"`
	Duration    int             `bun:"duration"`
	Status      string          `bun:"status"`
	Mode        string          `bun:"quiz_mode"`
	PIN         string          `bun:"pin"`
	Features    domain.Features `bun:"features,type:jsonb"`
	QuestionIDs []int64         `bun:"question_ids,array"`
	StartTime   *time.Time      `bun:"start_time"`
	EndTime     *time.Time      `bun:"end_time"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newQuizModel(q *domain.Quiz) *quizModel {
	return &quizModel{
		ID:          q.ID,
		CourseID:    q.CourseID,
		Name:        q.Name,
		Duration:    q.Duration,
		Status:      string(q.Status),
		Mode:        string(q.Mode),
		PIN:         q.PIN,
		Features:    q.Features,
		QuestionIDs: q.QuestionIDs,
		StartTime:   q.StartTime,
		EndTime:     q.EndTime,
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
	}
}

func (m *quizModel) domain() domain.Quiz {
	ids := m.QuestionIDs
	if ids == nil {
		ids = []int64{}
	}
	return domain.Quiz{
		ID:          m.ID,
		CourseID:    m.CourseID,
		Name:        m.Name,
		Duration:    m.Duration,
		Status:      domain.QuizStatus(m.Status),
		Mode:        domain.QuizMode(m.Mode),
		PIN:         m.PIN,
		Features:    m.Features,
		QuestionIDs: ids,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type quizResultModel struct {
	bun.BaseModel `bun:"table:quiz_results"`

	ID             int64     `bun:"id,pk,autoincrement"`
	QuizID         int64     `bun:"quiz_id"`
	UserID         int64     `bun:"user_id"`
	Score          int       `bun:"score"`
	CorrectAnswers int       `bun:"correct_answers"`
	TotalQuestions int       `bun:"total_questions"`
	GradeScore     float64   `bun:"grade_score"`
	Status         string    `bun:"status"`
	CompletionTime int64     `bun:"completion_time"`
	Version        int       `bun:"version"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newResultModel(r *domain.QuizResult) *quizResultModel {
	return &quizResultModel{
		ID:             r.ID,
		QuizID:         r.QuizID,
		UserID:         r.UserID,
		Score:          r.Score,
		CorrectAnswers: r.CorrectAnswers,
		TotalQuestions: r.TotalQuestions,
		GradeScore:     r.GradeScore,
		Status:         string(r.Status),
		CompletionTime: r.CompletionTime,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (m *quizResultModel) domain() domain.QuizResult {
	return domain.QuizResult{
		ID:             m.ID,
		QuizID:         m.QuizID,
		UserID:         m.UserID,
		Score:          m.Score,
		CorrectAnswers: m.CorrectAnswers,
		TotalQuestions: m.TotalQuestions,
		GradeScore:     m.GradeScore,
		Status:         domain.ResultStatus(m.Status),
		CompletionTime: m.CompletionTime,
		Version:        m.Version,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type gradeColumnModel struct {
	bun.BaseModel `bun:"table:grade_columns"`

	ID               int64     `bun:"id,pk,autoincrement"`
	CourseID         int64     `bun:"course_id"`
	Name             string    `bun:"column_name"`
	WeightPercentage float64   `bun:"weight_percentage"`
	Order            int       `bun:"column_order"`
	Active           bool      `bun:"is_active"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newColumnModel(c *domain.GradeColumn) *gradeColumnModel {
	return &gradeColumnModel{
		ID:               c.ID,
		CourseID:         c.CourseID,
		Name:             c.Name,
		WeightPercentage: c.WeightPercentage,
		Order:            c.Order,
		Active:           c.Active,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func (m *gradeColumnModel) domain() domain.GradeColumn {
	return domain.GradeColumn{
		ID:               m.ID,
		CourseID:         m.CourseID,
		Name:             m.Name,
		WeightPercentage: m.WeightPercentage,
		Order:            m.Order,
		Active:           m.Active,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

type columnQuizModel struct {
	bun.BaseModel `bun:"table:grade_column_quizzes"`

	ColumnID         int64    `bun:"grade_column_id,pk"`
	QuizID           int64    `bun:"quiz_id,pk"`
	WeightPercentage *float64 `bun:"weight_percentage"`
}

type gradeResultModel struct {
	bun.BaseModel `bun:"table:course_grade_results"`

	ID             int64                        `bun:"id,pk,autoincrement"`
	CourseID       int64                        `bun:"course_id"`
	UserID         int64                        `bun:"user_id"`
	ColumnScores   map[int64]domain.ColumnScore `bun:"column_scores,type:jsonb"`
	ProcessAverage *float64                     `bun:"process_average"`
	FinalExamScore *float64                     `bun:"final_exam_score"`
	TotalScore     *float64                     `bun:"total_score"`
	Grade          string                       `bun:"grade"`
	CreatedAt      time.Time                    `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time                    `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newGradeResultModel(r *domain.CourseGradeResult) *gradeResultModel {
	return &gradeResultModel{
		ID:             r.ID,
		CourseID:       r.CourseID,
		UserID:         r.UserID,
		ColumnScores:   r.ColumnScores,
		ProcessAverage: r.ProcessAverage,
		FinalExamScore: r.FinalExamScore,
		TotalScore:     r.TotalScore,
		Grade:          r.Grade,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (m *gradeResultModel) domain() domain.CourseGradeResult {
	scores := m.ColumnScores
	if scores == nil {
		scores = map[int64]domain.ColumnScore{}
	}
	return domain.CourseGradeResult{
		ID:             m.ID,
		CourseID:       m.CourseID,
		UserID:         m.UserID,
		ColumnScores:   scores,
		ProcessAverage: m.ProcessAverage,
		FinalExamScore: m.FinalExamScore,
		TotalScore:     m.TotalScore,
		Grade:          m.Grade,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type gradeHistoryModel struct {
	bun.BaseModel `bun:"table:course_grade_history"`

	ID         int64                    `bun:"id,pk,autoincrement"`
	ResultID   int64                    `bun:"course_grade_result_id"`
	CourseID   int64                    `bun:"course_id"`
	UserID     int64                    `bun:"user_id"`
	Snapshot   domain.CourseGradeResult `bun:"snapshot,type:jsonb"`
	RecordedAt time.Time                `bun:"recorded_at,nullzero,notnull,default:current_timestamp"`
}
