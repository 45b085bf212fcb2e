package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizhub-service/internal/domain"
	"quizhub-service/internal/grading"
)

// GradeStore is the bun-backed grading.Repository.
type GradeStore struct {
	*gradeQueries
	db *bun.DB
}

func NewGradeStore(db *bun.DB) *GradeStore {
	return &GradeStore{gradeQueries: &gradeQueries{db: db}, db: db}
}

func (s *GradeStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repo grading.Repository) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &gradeTx{gradeQueries: &gradeQueries{db: tx}})
	})
}

type gradeTx struct {
	*gradeQueries
}

func (t *gradeTx) RunInTx(ctx context.Context, fn func(ctx context.Context, repo grading.Repository) error) error {
	return fn(ctx, t)
}

type gradeQueries struct {
	db bun.IDB
}

func (q *gradeQueries) CourseExists(ctx context.Context, courseID int64) (bool, error) {
	return q.db.NewSelect().Model((*courseModel)(nil)).Where("id = ?", courseID).Exists(ctx)
}

func (q *gradeQueries) GradeConfig(ctx context.Context, courseID int64) (domain.GradeConfig, error) {
	m := new(courseModel)
	if err := q.db.NewSelect().Model(m).Where("id = ?", courseID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GradeConfig{}, domain.ErrCourseNotFound
		}
		return domain.GradeConfig{}, fmt.Errorf("select course: %w", err)
	}
	if m.ProcessWeight == 0 && m.FinalExamWeight == 0 {
		return domain.DefaultGradeConfig, nil
	}
	return domain.GradeConfig{ProcessWeight: m.ProcessWeight, FinalExamWeight: m.FinalExamWeight}, nil
}

func (q *gradeQueries) Columns(ctx context.Context, courseID int64) ([]domain.GradeColumn, error) {
	var models []gradeColumnModel
	err := q.db.NewSelect().Model(&models).
		Where("course_id = ?", courseID).
		Order("column_order ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select columns: %w", err)
	}
	out := make([]domain.GradeColumn, 0, len(models))
	for i := range models {
		out = append(out, models[i].domain())
	}
	return out, nil
}

func (q *gradeQueries) Column(ctx context.Context, columnID int64) (domain.GradeColumn, error) {
	m := new(gradeColumnModel)
	if err := q.db.NewSelect().Model(m).Where("id = ?", columnID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GradeColumn{}, domain.ErrColumnNotFound
		}
		return domain.GradeColumn{}, fmt.Errorf("select column: %w", err)
	}
	return m.domain(), nil
}

func (q *gradeQueries) ActiveWeightSum(ctx context.Context, courseID, excludeColumnID int64) (float64, error) {
	var sum float64
	err := q.db.NewSelect().
		Model((*gradeColumnModel)(nil)).
		ColumnExpr("COALESCE(SUM(weight_percentage), 0)").
		Where("course_id = ?", courseID).
		Where("is_active").
		Where("id <> ?", excludeColumnID).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum column weights: %w", err)
	}
	return sum, nil
}

func (q *gradeQueries) InsertColumn(ctx context.Context, col *domain.GradeColumn) error {
	m := newColumnModel(col)
	m.ID = 0
	if _, err := q.db.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert column: %w", err)
	}
	*col = m.domain()
	return nil
}

func (q *gradeQueries) UpdateColumn(ctx context.Context, col *domain.GradeColumn) error {
	m := newColumnModel(col)
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	res, err := q.db.NewUpdate().Model(m).ExcludeColumn("created_at").WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update column: %w", err)
	}
	return requireRow(res, domain.ErrColumnNotFound)
}

// DeleteColumn removes the column; assignments go with it via ON DELETE CASCADE.
func (q *gradeQueries) DeleteColumn(ctx context.Context, columnID int64) error {
	res, err := q.db.NewDelete().Model((*gradeColumnModel)(nil)).Where("id = ?", columnID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	return requireRow(res, domain.ErrColumnNotFound)
}

func (q *gradeQueries) ColumnQuizzes(ctx context.Context, columnID int64) ([]domain.ColumnQuiz, error) {
	var models []columnQuizModel
	err := q.db.NewSelect().Model(&models).
		Where("grade_column_id = ?", columnID).
		Order("quiz_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select column quizzes: %w", err)
	}
	out := make([]domain.ColumnQuiz, 0, len(models))
	for _, m := range models {
		out = append(out, domain.ColumnQuiz{ColumnID: m.ColumnID, QuizID: m.QuizID, WeightPercentage: m.WeightPercentage})
	}
	return out, nil
}

func (q *gradeQueries) ReplaceColumnQuizzes(ctx context.Context, columnID int64, assignments []domain.ColumnQuiz) error {
	exists, err := q.db.NewSelect().Model((*gradeColumnModel)(nil)).Where("id = ?", columnID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check column: %w", err)
	}
	if !exists {
		return domain.ErrColumnNotFound
	}
	if _, err := q.db.NewDelete().Model((*columnQuizModel)(nil)).Where("grade_column_id = ?", columnID).Exec(ctx); err != nil {
		return fmt.Errorf("clear column quizzes: %w", err)
	}
	if len(assignments) == 0 {
		return nil
	}
	models := make([]columnQuizModel, len(assignments))
	for i, a := range assignments {
		models[i] = columnQuizModel{ColumnID: columnID, QuizID: a.QuizID, WeightPercentage: a.WeightPercentage}
	}
	if _, err := q.db.NewInsert().Model(&models).Exec(ctx); err != nil {
		return fmt.Errorf("insert column quizzes: %w", err)
	}
	return nil
}

func (q *gradeQueries) QuizCourses(ctx context.Context, quizIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(quizIDs))
	if len(quizIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ID       int64 `bun:"id"`
		CourseID int64 `bun:"course_id"`
	}
	err := q.db.NewSelect().
		Model((*quizModel)(nil)).
		Column("id", "course_id").
		Where("id IN (?)", bun.In(quizIDs)).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("select quiz courses: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r.CourseID
	}
	return out, nil
}

// UserQuizScores returns grade scores of terminal attempts only.
func (q *gradeQueries) UserQuizScores(ctx context.Context, userID int64, quizIDs []int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(quizIDs))
	if len(quizIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		QuizID     int64   `bun:"quiz_id"`
		GradeScore float64 `bun:"grade_score"`
	}
	err := q.db.NewSelect().
		Model((*quizResultModel)(nil)).
		Column("quiz_id", "grade_score").
		Where("user_id = ?", userID).
		Where("quiz_id IN (?)", bun.In(quizIDs)).
		Where("status IN (?)", bun.In([]string{string(domain.ResultCompleted), string(domain.ResultTerminated)})).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("select quiz scores: %w", err)
	}
	for _, r := range rows {
		out[r.QuizID] = r.GradeScore
	}
	return out, nil
}

func (q *gradeQueries) GradeResult(ctx context.Context, courseID, userID int64) (domain.CourseGradeResult, error) {
	m := new(gradeResultModel)
	err := q.db.NewSelect().Model(m).
		Where("course_id = ?", courseID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CourseGradeResult{}, domain.ErrGradeNotFound
		}
		return domain.CourseGradeResult{}, fmt.Errorf("select grade result: %w", err)
	}
	return m.domain(), nil
}

// SaveGradeResult upserts on (course_id, user_id).
func (q *gradeQueries) SaveGradeResult(ctx context.Context, res *domain.CourseGradeResult) error {
	m := newGradeResultModel(res)
	m.ID = 0
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	_, err := q.db.NewInsert().
		Model(m).
		On("CONFLICT (course_id, user_id) DO UPDATE").
		Set("column_scores = EXCLUDED.column_scores").
		Set("process_average = EXCLUDED.process_average").
		Set("final_exam_score = EXCLUDED.final_exam_score").
		Set("total_score = EXCLUDED.total_score").
		Set("grade = EXCLUDED.grade").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save grade result: %w", err)
	}
	*res = m.domain()
	return nil
}

func (q *gradeQueries) InsertGradeHistory(ctx context.Context, h *domain.CourseGradeHistory) error {
	m := &gradeHistoryModel{
		ResultID:   h.ResultID,
		CourseID:   h.Snapshot.CourseID,
		UserID:     h.Snapshot.UserID,
		Snapshot:   h.Snapshot,
		RecordedAt: h.RecordedAt,
	}
	if _, err := q.db.NewInsert().Model(m).Returning("id, recorded_at").Exec(ctx); err != nil {
		return fmt.Errorf("insert grade history: %w", err)
	}
	h.ID = m.ID
	h.RecordedAt = m.RecordedAt
	return nil
}

func (q *gradeQueries) GradeHistory(ctx context.Context, courseID, userID int64) ([]domain.CourseGradeHistory, error) {
	var models []gradeHistoryModel
	err := q.db.NewSelect().Model(&models).
		Where("course_id = ?", courseID).
		Where("user_id = ?", userID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select grade history: %w", err)
	}
	out := make([]domain.CourseGradeHistory, 0, len(models))
	for _, m := range models {
		out = append(out, domain.CourseGradeHistory{
			ID:         m.ID,
			ResultID:   m.ResultID,
			Snapshot:   m.Snapshot,
			RecordedAt: m.RecordedAt,
		})
	}
	return out, nil
}
