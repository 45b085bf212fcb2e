package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

// dataset is the whole durable state; a transaction restores a clone on error.
type dataset struct {
	courses       map[int64]domain.GradeConfig
	quizzes       map[int64]domain.Quiz
	results       map[int64]domain.QuizResult
	columns       map[int64]domain.GradeColumn
	columnQuizzes map[int64][]domain.ColumnQuiz
	grades        map[gradeKey]domain.CourseGradeResult
	history       []domain.CourseGradeHistory
	nextID        int64
}

type gradeKey struct {
	courseID int64
	userID   int64
}

func newDataset() *dataset {
	return &dataset{
		courses:       make(map[int64]domain.GradeConfig),
		quizzes:       make(map[int64]domain.Quiz),
		results:       make(map[int64]domain.QuizResult),
		columns:       make(map[int64]domain.GradeColumn),
		columnQuizzes: make(map[int64][]domain.ColumnQuiz),
		grades:        make(map[gradeKey]domain.CourseGradeResult),
	}
}

// clone copies every map. Stored values are never mutated in place.
func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.courses {
		c.courses[k] = v
	}
	for k, v := range d.quizzes {
		c.quizzes[k] = v
	}
	for k, v := range d.results {
		c.results[k] = v
	}
	for k, v := range d.columns {
		c.columns[k] = v
	}
	for k, v := range d.columnQuizzes {
		c.columnQuizzes[k] = v
	}
	for k, v := range d.grades {
		c.grades[k] = v
	}
	c.history = append([]domain.CourseGradeHistory(nil), d.history...)
	c.nextID = d.nextID
	return c
}

func (d *dataset) id() int64 {
	d.nextID++
	return d.nextID
}

// Store is an in-memory implementation of app.Repository. Transactions are
// serialized, which makes LockQuiz and LockResult trivially exclusive.
type Store struct {
	mu   sync.Mutex
	data *dataset
	bank *QuestionBank
}

func NewStore(bank *QuestionBank) *Store {
	if bank == nil {
		bank = NewQuestionBank()
	}
	return &Store{data: newDataset(), bank: bank}
}

// AddCourse registers a course with its grade weights.
func (s *Store) AddCourse(courseID int64, cfg domain.GradeConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.courses[courseID] = cfg
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	tx := &quizTx{d: s.data, bank: s.bank}
	if err := fn(ctx, tx); err != nil {
		s.data = snapshot
		s.bank.remove(tx.inserted)
		return err
	}
	return nil
}

func (s *Store) view() *quizTx {
	return &quizTx{d: s.data, bank: s.bank}
}

func (s *Store) CourseExists(ctx context.Context, courseID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CourseExists(ctx, courseID)
}

func (s *Store) PINInUse(ctx context.Context, pin string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().PINInUse(ctx, pin)
}

func (s *Store) InsertQuiz(ctx context.Context, quiz *domain.Quiz) error {
	return s.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error { return repo.InsertQuiz(ctx, quiz) })
}

func (s *Store) Quiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Quiz(ctx, quizID)
}

func (s *Store) LockQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return s.Quiz(ctx, quizID)
}

func (s *Store) UpdateQuiz(ctx context.Context, quiz *domain.Quiz) error {
	return s.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error { return repo.UpdateQuiz(ctx, quiz) })
}

func (s *Store) ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListQuizzes(ctx, filter)
}

func (s *Store) OverdueQuizzes(ctx context.Context, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().OverdueQuizzes(ctx, now)
}

func (s *Store) InsertQuestion(ctx context.Context, q *domain.Question) error {
	return s.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error { return repo.InsertQuestion(ctx, q) })
}

func (s *Store) Result(ctx context.Context, quizID, userID int64) (domain.QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Result(ctx, quizID, userID)
}

func (s *Store) LockResult(ctx context.Context, quizID, userID int64) (domain.QuizResult, error) {
	return s.Result(ctx, quizID, userID)
}

func (s *Store) Results(ctx context.Context, quizID int64) ([]domain.QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Results(ctx, quizID)
}

func (s *Store) InsertResult(ctx context.Context, res *domain.QuizResult) error {
	return s.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error { return repo.InsertResult(ctx, res) })
}

func (s *Store) UpdateResult(ctx context.Context, res *domain.QuizResult) error {
	return s.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error { return repo.UpdateResult(ctx, res) })
}

func (s *Store) ForceUpdateResult(ctx context.Context, res *domain.QuizResult) error {
	return s.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error { return repo.ForceUpdateResult(ctx, res) })
}

func (s *Store) DeleteResult(ctx context.Context, resultID int64) error {
	return s.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error { return repo.DeleteResult(ctx, resultID) })
}

// quizTx operates on the dataset while the store lock is held.
type quizTx struct {
	d        *dataset
	bank     *QuestionBank
	inserted []int64
}

func (t *quizTx) RunInTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	return fn(ctx, t)
}

func (t *quizTx) CourseExists(_ context.Context, courseID int64) (bool, error) {
	_, ok := t.d.courses[courseID]
	return ok, nil
}

func (t *quizTx) PINInUse(_ context.Context, pin string) (bool, error) {
	for _, q := range t.d.quizzes {
		if q.PIN == pin && q.Status != domain.QuizFinished {
			return true, nil
		}
	}
	return false, nil
}

func (t *quizTx) InsertQuiz(_ context.Context, quiz *domain.Quiz) error {
	quiz.ID = t.d.id()
	t.d.quizzes[quiz.ID] = copyQuiz(*quiz)
	return nil
}

func (t *quizTx) Quiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	q, ok := t.d.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return copyQuiz(q), nil
}

func (t *quizTx) LockQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return t.Quiz(ctx, quizID)
}

func (t *quizTx) UpdateQuiz(_ context.Context, quiz *domain.Quiz) error {
	if _, ok := t.d.quizzes[quiz.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	t.d.quizzes[quiz.ID] = copyQuiz(*quiz)
	return nil
}

func (t *quizTx) ListQuizzes(_ context.Context, f domain.QuizFilter) ([]domain.Quiz, int, error) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []domain.Quiz
	for _, q := range t.d.quizzes {
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		if f.CourseID > 0 && q.CourseID != f.CourseID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(q.Name), search) {
			continue
		}
		matched = append(matched, copyQuiz(q))
	}
	sortQuizzes(matched, f.Sort)

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start >= total {
		return []domain.Quiz{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func sortQuizzes(qs []domain.Quiz, order string) {
	sort.Slice(qs, func(i, j int) bool {
		a, b := qs[i], qs[j]
		switch order {
		case "name":
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case "oldest":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID > b.ID
	})
}

func (t *quizTx) OverdueQuizzes(_ context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	for _, q := range t.d.quizzes {
		if q.Status == domain.QuizActive && q.EndTime != nil && q.EndTime.Before(now) {
			ids = append(ids, q.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *quizTx) InsertQuestion(_ context.Context, q *domain.Question) error {
	t.bank.Add(q)
	t.inserted = append(t.inserted, q.ID)
	return nil
}

func (t *quizTx) Result(_ context.Context, quizID, userID int64) (domain.QuizResult, error) {
	for _, r := range t.d.results {
		if r.QuizID == quizID && r.UserID == userID {
			return r, nil
		}
	}
	return domain.QuizResult{}, domain.ErrResultNotFound
}

func (t *quizTx) LockResult(ctx context.Context, quizID, userID int64) (domain.QuizResult, error) {
	return t.Result(ctx, quizID, userID)
}

func (t *quizTx) Results(_ context.Context, quizID int64) ([]domain.QuizResult, error) {
	var out []domain.QuizResult
	for _, r := range t.d.results {
		if r.QuizID == quizID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *quizTx) InsertResult(ctx context.Context, res *domain.QuizResult) error {
	if _, err := t.Result(ctx, res.QuizID, res.UserID); err == nil {
		return fmt.Errorf("result for quiz %d user %d already exists", res.QuizID, res.UserID)
	}
	res.ID = t.d.id()
	res.Version = 1
	t.d.results[res.ID] = *res
	return nil
}

func (t *quizTx) UpdateResult(_ context.Context, res *domain.QuizResult) error {
	stored, ok := t.d.results[res.ID]
	if !ok {
		return domain.ErrResultNotFound
	}
	if stored.Version != res.Version {
		return domain.ErrStaleWrite
	}
	res.Version++
	t.d.results[res.ID] = *res
	return nil
}

func (t *quizTx) ForceUpdateResult(_ context.Context, res *domain.QuizResult) error {
	stored, ok := t.d.results[res.ID]
	if !ok {
		return domain.ErrResultNotFound
	}
	res.Version = stored.Version + 1
	t.d.results[res.ID] = *res
	return nil
}

func (t *quizTx) DeleteResult(_ context.Context, resultID int64) error {
	if _, ok := t.d.results[resultID]; !ok {
		return domain.ErrResultNotFound
	}
	delete(t.d.results, resultID)
	return nil
}

func copyQuiz(q domain.Quiz) domain.Quiz {
	q.QuestionIDs = append([]int64(nil), q.QuestionIDs...)
	return q
}
