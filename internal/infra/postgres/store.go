package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

// Store is the bun-backed app.Repository.
type Store struct {
	*quizQueries
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{quizQueries: &quizQueries{db: db}, db: db}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &quizTx{quizQueries: &quizQueries{db: tx}})
	})
}

// quizTx runs every query on one open transaction.
type quizTx struct {
	*quizQueries
}

func (t *quizTx) RunInTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	return fn(ctx, t)
}

type quizQueries struct {
	db bun.IDB
}

func (q *quizQueries) CourseExists(ctx context.Context, courseID int64) (bool, error) {
	return q.db.NewSelect().Model((*courseModel)(nil)).Where("id = ?", courseID).Exists(ctx)
}

func (q *quizQueries) PINInUse(ctx context.Context, pin string) (bool, error) {
	return q.db.NewSelect().
		Model((*quizModel)(nil)).
		Where("pin = ?", pin).
		Where("status <> ?", string(domain.QuizFinished)).
		Exists(ctx)
}

func (q *quizQueries) InsertQuiz(ctx context.Context, quiz *domain.Quiz) error {
	m := newQuizModel(quiz)
	m.ID = 0
	if _, err := q.db.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	*quiz = m.domain()
	return nil
}

func (q *quizQueries) Quiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return q.selectQuiz(ctx, quizID, false)
}

func (q *quizQueries) LockQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return q.selectQuiz(ctx, quizID, true)
}

func (q *quizQueries) selectQuiz(ctx context.Context, quizID int64, lock bool) (domain.Quiz, error) {
	m := new(quizModel)
	query := q.db.NewSelect().Model(m).Where("id = ?", quizID)
	if lock {
		query = query.For("UPDATE")
	}
	if err := query.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("select quiz: %w", err)
	}
	return m.domain(), nil
}

func (q *quizQueries) UpdateQuiz(ctx context.Context, quiz *domain.Quiz) error {
	m := newQuizModel(quiz)
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	res, err := q.db.NewUpdate().Model(m).ExcludeColumn("created_at").WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	return requireRow(res, domain.ErrQuizNotFound)
}

func (q *quizQueries) ListQuizzes(ctx context.Context, f domain.QuizFilter) ([]domain.Quiz, int, error) {
	var models []quizModel
	query := q.db.NewSelect().Model(&models)
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}
	if f.CourseID > 0 {
		query = query.Where("course_id = ?", f.CourseID)
	}
	if f.Search != "" {
		query = query.Where("name ILIKE ?", "%"+f.Search+"%")
	}
	switch f.Sort {
	case "name":
		query = query.Order("name ASC", "id DESC")
	case "oldest":
		query = query.Order("created_at ASC", "id ASC")
	default:
		query = query.Order("created_at DESC", "id DESC")
	}
	total, err := query.Limit(f.Limit).Offset((f.Page - 1) * f.Limit).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]domain.Quiz, 0, len(models))
	for i := range models {
		out = append(out, models[i].domain())
	}
	return out, total, nil
}

func (q *quizQueries) OverdueQuizzes(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := q.db.NewSelect().
		Model((*quizModel)(nil)).
		Column("id").
		Where("status = ?", string(domain.QuizActive)).
		Where("end_time < ?", now).
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("overdue quizzes: %w", err)
	}
	return ids, nil
}

func (q *quizQueries) InsertQuestion(ctx context.Context, question *domain.Question) error {
	if question.Level == "" {
		question.Level = domain.LevelMedium
	}
	m := &questionModel{
		LOID:   question.LOID,
		Level:  string(question.Level),
		TypeID: question.TypeID,
		Text:   question.Text,
	}
	if _, err := q.db.NewInsert().Model(m).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	question.ID = m.ID
	if len(question.Answers) == 0 {
		return nil
	}
	answers := make([]answerModel, len(question.Answers))
	for i, a := range question.Answers {
		answers[i] = answerModel{QuestionID: m.ID, Text: a.Text, Correct: a.Correct}
	}
	if _, err := q.db.NewInsert().Model(&answers).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	for i := range question.Answers {
		question.Answers[i].ID = answers[i].ID
		question.Answers[i].QuestionID = m.ID
	}
	return nil
}

func (q *quizQueries) Result(ctx context.Context, quizID, userID int64) (domain.QuizResult, error) {
	return q.selectResult(ctx, quizID, userID, false)
}

func (q *quizQueries) LockResult(ctx context.Context, quizID, userID int64) (domain.QuizResult, error) {
	return q.selectResult(ctx, quizID, userID, true)
}

func (q *quizQueries) selectResult(ctx context.Context, quizID, userID int64, lock bool) (domain.QuizResult, error) {
	m := new(quizResultModel)
	query := q.db.NewSelect().Model(m).Where("quiz_id = ?", quizID).Where("user_id = ?", userID)
	if lock {
		query = query.For("UPDATE")
	}
	if err := query.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.QuizResult{}, domain.ErrResultNotFound
		}
		return domain.QuizResult{}, fmt.Errorf("select result: %w", err)
	}
	return m.domain(), nil
}

func (q *quizQueries) Results(ctx context.Context, quizID int64) ([]domain.QuizResult, error) {
	var models []quizResultModel
	if err := q.db.NewSelect().Model(&models).Where("quiz_id = ?", quizID).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	out := make([]domain.QuizResult, 0, len(models))
	for i := range models {
		out = append(out, models[i].domain())
	}
	return out, nil
}

func (q *quizQueries) InsertResult(ctx context.Context, res *domain.QuizResult) error {
	m := newResultModel(res)
	m.ID = 0
	m.Version = 1
	if _, err := q.db.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	*res = m.domain()
	return nil
}

// UpdateResult is a compare-and-swap on the version column.
func (q *quizQueries) UpdateResult(ctx context.Context, res *domain.QuizResult) error {
	m := newResultModel(res)
	m.Version = res.Version + 1
	m.UpdatedAt = time.Now()
	out, err := q.db.NewUpdate().
		Model(m).
		ExcludeColumn("created_at").
		WherePK().
		Where("version = ?", res.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		exists, err := q.db.NewSelect().Model((*quizResultModel)(nil)).Where("id = ?", res.ID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check result: %w", err)
		}
		if !exists {
			return domain.ErrResultNotFound
		}
		return domain.ErrStaleWrite
	}
	res.Version = m.Version
	res.UpdatedAt = m.UpdatedAt
	return nil
}

func (q *quizQueries) ForceUpdateResult(ctx context.Context, res *domain.QuizResult) error {
	var version int
	err := q.db.NewUpdate().
		Model((*quizResultModel)(nil)).
		Set("score = ?", res.Score).
		Set("correct_answers = ?", res.CorrectAnswers).
		Set("total_questions = ?", res.TotalQuestions).
		Set("grade_score = ?", res.GradeScore).
		Set("status = ?", string(res.Status)).
		Set("completion_time = ?", res.CompletionTime).
		Set("updated_at = now()").
		Set("version = version + 1").
		Where("id = ?", res.ID).
		Returning("version").
		Scan(ctx, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrResultNotFound
		}
		return fmt.Errorf("force update result: %w", err)
	}
	res.Version = version
	return nil
}

func (q *quizQueries) DeleteResult(ctx context.Context, resultID int64) error {
	res, err := q.db.NewDelete().Model((*quizResultModel)(nil)).Where("id = ?", resultID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return requireRow(res, domain.ErrResultNotFound)
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
