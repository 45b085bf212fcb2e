package memory

import (
	"context"
	"sort"

	"quizhub-service/internal/domain"
	"quizhub-service/internal/grading"
)

// GradeStore is the grading.Repository view of a Store. It shares the
// store's lock and data, so quiz results are visible to grade computation.
type GradeStore struct {
	s *Store
}

// Grades returns the grading view of s.
func (s *Store) Grades() *GradeStore {
	return &GradeStore{s: s}
}

func (g *GradeStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repo grading.Repository) error) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	snapshot := g.s.data.clone()
	if err := fn(ctx, &gradeTx{d: g.s.data}); err != nil {
		g.s.data = snapshot
		return err
	}
	return nil
}

func (g *GradeStore) view(fn func(tx *gradeTx) error) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	return fn(&gradeTx{d: g.s.data})
}

func (g *GradeStore) CourseExists(ctx context.Context, courseID int64) (ok bool, err error) {
	err = g.view(func(tx *gradeTx) error { ok, err = tx.CourseExists(ctx, courseID); return err })
	return ok, err
}

func (g *GradeStore) GradeConfig(ctx context.Context, courseID int64) (cfg domain.GradeConfig, err error) {
	err = g.view(func(tx *gradeTx) error { cfg, err = tx.GradeConfig(ctx, courseID); return err })
	return cfg, err
}

func (g *GradeStore) Columns(ctx context.Context, courseID int64) (cols []domain.GradeColumn, err error) {
	err = g.view(func(tx *gradeTx) error { cols, err = tx.Columns(ctx, courseID); return err })
	return cols, err
}

func (g *GradeStore) Column(ctx context.Context, columnID int64) (col domain.GradeColumn, err error) {
	err = g.view(func(tx *gradeTx) error { col, err = tx.Column(ctx, columnID); return err })
	return col, err
}

func (g *GradeStore) ActiveWeightSum(ctx context.Context, courseID, excludeColumnID int64) (sum float64, err error) {
	err = g.view(func(tx *gradeTx) error { sum, err = tx.ActiveWeightSum(ctx, courseID, excludeColumnID); return err })
	return sum, err
}

func (g *GradeStore) InsertColumn(ctx context.Context, col *domain.GradeColumn) error {
	return g.RunInTx(ctx, func(ctx context.Context, repo grading.Repository) error { return repo.InsertColumn(ctx, col) })
}

func (g *GradeStore) UpdateColumn(ctx context.Context, col *domain.GradeColumn) error {
	return g.RunInTx(ctx, func(ctx context.Context, repo grading.Repository) error { return repo.UpdateColumn(ctx, col) })
}

func (g *GradeStore) DeleteColumn(ctx context.Context, columnID int64) error {
	return g.RunInTx(ctx, func(ctx context.Context, repo grading.Repository) error { return repo.DeleteColumn(ctx, columnID) })
}

func (g *GradeStore) ColumnQuizzes(ctx context.Context, columnID int64) (out []domain.ColumnQuiz, err error) {
	err = g.view(func(tx *gradeTx) error { out, err = tx.ColumnQuizzes(ctx, columnID); return err })
	return out, err
}

func (g *GradeStore) ReplaceColumnQuizzes(ctx context.Context, columnID int64, assignments []domain.ColumnQuiz) error {
	return g.RunInTx(ctx, func(ctx context.Context, repo grading.Repository) error {
		return repo.ReplaceColumnQuizzes(ctx, columnID, assignments)
	})
}

func (g *GradeStore) QuizCourses(ctx context.Context, quizIDs []int64) (out map[int64]int64, err error) {
	err = g.view(func(tx *gradeTx) error { out, err = tx.QuizCourses(ctx, quizIDs); return err })
	return out, err
}

func (g *GradeStore) UserQuizScores(ctx context.Context, userID int64, quizIDs []int64) (out map[int64]float64, err error) {
	err = g.view(func(tx *gradeTx) error { out, err = tx.UserQuizScores(ctx, userID, quizIDs); return err })
	return out, err
}

func (g *GradeStore) GradeResult(ctx context.Context, courseID, userID int64) (res domain.CourseGradeResult, err error) {
	err = g.view(func(tx *gradeTx) error { res, err = tx.GradeResult(ctx, courseID, userID); return err })
	return res, err
}

func (g *GradeStore) SaveGradeResult(ctx context.Context, res *domain.CourseGradeResult) error {
	return g.RunInTx(ctx, func(ctx context.Context, repo grading.Repository) error { return repo.SaveGradeResult(ctx, res) })
}

func (g *GradeStore) InsertGradeHistory(ctx context.Context, h *domain.CourseGradeHistory) error {
	return g.RunInTx(ctx, func(ctx context.Context, repo grading.Repository) error { return repo.InsertGradeHistory(ctx, h) })
}

func (g *GradeStore) GradeHistory(ctx context.Context, courseID, userID int64) (out []domain.CourseGradeHistory, err error) {
	err = g.view(func(tx *gradeTx) error { out, err = tx.GradeHistory(ctx, courseID, userID); return err })
	return out, err
}

type gradeTx struct {
	d *dataset
}

func (t *gradeTx) RunInTx(ctx context.Context, fn func(ctx context.Context, repo grading.Repository) error) error {
	return fn(ctx, t)
}

func (t *gradeTx) CourseExists(_ context.Context, courseID int64) (bool, error) {
	_, ok := t.d.courses[courseID]
	return ok, nil
}

func (t *gradeTx) GradeConfig(_ context.Context, courseID int64) (domain.GradeConfig, error) {
	cfg, ok := t.d.courses[courseID]
	if !ok {
		return domain.GradeConfig{}, domain.ErrCourseNotFound
	}
	if cfg.ProcessWeight == 0 && cfg.FinalExamWeight == 0 {
		return domain.DefaultGradeConfig, nil
	}
	return cfg, nil
}

func (t *gradeTx) Columns(_ context.Context, courseID int64) ([]domain.GradeColumn, error) {
	var out []domain.GradeColumn
	for _, c := range t.d.columns {
		if c.CourseID == courseID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *gradeTx) Column(_ context.Context, columnID int64) (domain.GradeColumn, error) {
	c, ok := t.d.columns[columnID]
	if !ok {
		return domain.GradeColumn{}, domain.ErrColumnNotFound
	}
	return c, nil
}

func (t *gradeTx) ActiveWeightSum(_ context.Context, courseID, excludeColumnID int64) (float64, error) {
	sum := 0.0
	for _, c := range t.d.columns {
		if c.CourseID == courseID && c.Active && c.ID != excludeColumnID {
			sum += c.WeightPercentage
		}
	}
	return sum, nil
}

func (t *gradeTx) InsertColumn(_ context.Context, col *domain.GradeColumn) error {
	col.ID = t.d.id()
	t.d.columns[col.ID] = *col
	return nil
}

func (t *gradeTx) UpdateColumn(_ context.Context, col *domain.GradeColumn) error {
	if _, ok := t.d.columns[col.ID]; !ok {
		return domain.ErrColumnNotFound
	}
	t.d.columns[col.ID] = *col
	return nil
}

func (t *gradeTx) DeleteColumn(_ context.Context, columnID int64) error {
	if _, ok := t.d.columns[columnID]; !ok {
		return domain.ErrColumnNotFound
	}
	delete(t.d.columns, columnID)
	delete(t.d.columnQuizzes, columnID)
	return nil
}

func (t *gradeTx) ColumnQuizzes(_ context.Context, columnID int64) ([]domain.ColumnQuiz, error) {
	return append([]domain.ColumnQuiz(nil), t.d.columnQuizzes[columnID]...), nil
}

func (t *gradeTx) ReplaceColumnQuizzes(_ context.Context, columnID int64, assignments []domain.ColumnQuiz) error {
	if _, ok := t.d.columns[columnID]; !ok {
		return domain.ErrColumnNotFound
	}
	if len(assignments) == 0 {
		delete(t.d.columnQuizzes, columnID)
		return nil
	}
	t.d.columnQuizzes[columnID] = append([]domain.ColumnQuiz(nil), assignments...)
	return nil
}

func (t *gradeTx) QuizCourses(_ context.Context, quizIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(quizIDs))
	for _, id := range quizIDs {
		if q, ok := t.d.quizzes[id]; ok {
			out[id] = q.CourseID
		}
	}
	return out, nil
}

func (t *gradeTx) UserQuizScores(_ context.Context, userID int64, quizIDs []int64) (map[int64]float64, error) {
	wanted := make(map[int64]bool, len(quizIDs))
	for _, id := range quizIDs {
		wanted[id] = true
	}
	out := make(map[int64]float64)
	for _, r := range t.d.results {
		if r.UserID == userID && wanted[r.QuizID] && r.Status.Terminal() {
			out[r.QuizID] = r.GradeScore
		}
	}
	return out, nil
}

func (t *gradeTx) GradeResult(_ context.Context, courseID, userID int64) (domain.CourseGradeResult, error) {
	res, ok := t.d.grades[gradeKey{courseID, userID}]
	if !ok {
		return domain.CourseGradeResult{}, domain.ErrGradeNotFound
	}
	return res, nil
}

func (t *gradeTx) SaveGradeResult(_ context.Context, res *domain.CourseGradeResult) error {
	if res.ID == 0 {
		res.ID = t.d.id()
	}
	t.d.grades[gradeKey{res.CourseID, res.UserID}] = *res
	return nil
}

func (t *gradeTx) InsertGradeHistory(_ context.Context, h *domain.CourseGradeHistory) error {
	h.ID = t.d.id()
	t.d.history = append(t.d.history, *h)
	return nil
}

func (t *gradeTx) GradeHistory(_ context.Context, courseID, userID int64) ([]domain.CourseGradeHistory, error) {
	var out []domain.CourseGradeHistory
	for _, h := range t.d.history {
		if h.Snapshot.CourseID == courseID && h.Snapshot.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}
