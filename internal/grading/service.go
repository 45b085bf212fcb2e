package grading

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizhub-service/internal/domain"
)

// Repository persists grade columns, assignments and results.
type Repository interface {
	// RunInTx runs fn in a transaction; any error rolls it back.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	CourseExists(ctx context.Context, courseID int64) (bool, error)
	GradeConfig(ctx context.Context, courseID int64) (domain.GradeConfig, error)

	Columns(ctx context.Context, courseID int64) ([]domain.GradeColumn, error)
	Column(ctx context.Context, columnID int64) (domain.GradeColumn, error)
	ActiveWeightSum(ctx context.Context, courseID, excludeColumnID int64) (float64, error)
	InsertColumn(ctx context.Context, col *domain.GradeColumn) error
	UpdateColumn(ctx context.Context, col *domain.GradeColumn) error
	DeleteColumn(ctx context.Context, columnID int64) error

	ColumnQuizzes(ctx context.Context, columnID int64) ([]domain.ColumnQuiz, error)
	ReplaceColumnQuizzes(ctx context.Context, columnID int64, assignments []domain.ColumnQuiz) error
	QuizCourses(ctx context.Context, quizIDs []int64) (map[int64]int64, error)
	UserQuizScores(ctx context.Context, userID int64, quizIDs []int64) (map[int64]float64, error)

	GradeResult(ctx context.Context, courseID, userID int64) (domain.CourseGradeResult, error)
	SaveGradeResult(ctx context.Context, res *domain.CourseGradeResult) error
	InsertGradeHistory(ctx context.Context, h *domain.CourseGradeHistory) error
	GradeHistory(ctx context.Context, courseID, userID int64) ([]domain.CourseGradeHistory, error)
}

// Service manages grade columns and computes course grades.
type Service struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

// ColumnInput is the mutable part of a grade column.
type ColumnInput struct {
	Name             string
	WeightPercentage float64
	Order            int
	Active           *bool
}

// CreateColumn adds a column after checking the course weight cap.
func (s *Service) CreateColumn(ctx context.Context, courseID int64, in ColumnInput) (domain.GradeColumn, error) {
	if err := validateColumn(in); err != nil {
		return domain.GradeColumn{}, err
	}
	col := domain.GradeColumn{
		CourseID:         courseID,
		Name:             strings.TrimSpace(in.Name),
		WeightPercentage: in.WeightPercentage,
		Order:            in.Order,
		Active:           in.Active == nil || *in.Active,
	}
	err := s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		ok, err := repo.CourseExists(ctx, courseID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCourseNotFound
		}
		if col.Active {
			if err := checkCap(ctx, repo, courseID, 0, col.WeightPercentage); err != nil {
				return err
			}
		}
		now := s.now()
		col.CreatedAt, col.UpdatedAt = now, now
		return repo.InsertColumn(ctx, &col)
	})
	if err != nil {
		return domain.GradeColumn{}, err
	}
	s.log.Info("grade column created", zap.Int64("course_id", courseID), zap.Int64("column_id", col.ID))
	return col, nil
}

// UpdateColumn edits a column; the cap excludes the column's current weight.
func (s *Service) UpdateColumn(ctx context.Context, columnID int64, in ColumnInput) (domain.GradeColumn, error) {
	if err := validateColumn(in); err != nil {
		return domain.GradeColumn{}, err
	}
	var col domain.GradeColumn
	err := s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		col, err = repo.Column(ctx, columnID)
		if err != nil {
			return err
		}
		col.Name = strings.TrimSpace(in.Name)
		col.WeightPercentage = in.WeightPercentage
		col.Order = in.Order
		if in.Active != nil {
			col.Active = *in.Active
		}
		if col.Active {
			if err := checkCap(ctx, repo, col.CourseID, col.ID, col.WeightPercentage); err != nil {
				return err
			}
		}
		col.UpdatedAt = s.now()
		return repo.UpdateColumn(ctx, &col)
	})
	if err != nil {
		return domain.GradeColumn{}, err
	}
	return col, nil
}

// DeleteColumn removes a column that has no quizzes assigned.
func (s *Service) DeleteColumn(ctx context.Context, columnID int64) error {
	return s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.Column(ctx, columnID); err != nil {
			return err
		}
		assigned, err := repo.ColumnQuizzes(ctx, columnID)
		if err != nil {
			return err
		}
		if len(assigned) > 0 {
			return &domain.ConflictError{
				Message: fmt.Sprintf("grade column has %d assigned quizzes", len(assigned)),
				Hint:    "remove the quiz assignments first",
			}
		}
		return repo.DeleteColumn(ctx, columnID)
	})
}

// Columns lists a course's columns.
func (s *Service) Columns(ctx context.Context, courseID int64) ([]domain.GradeColumn, error) {
	return s.repo.Columns(ctx, courseID)
}

// AssignQuizzes replaces the quizzes of a column. Weights are all-or-none and
// must sum to 100 when given.
func (s *Service) AssignQuizzes(ctx context.Context, columnID int64, assignments []domain.ColumnQuiz) ([]domain.ColumnQuiz, error) {
	if err := validateAssignments(assignments); err != nil {
		return nil, err
	}
	out := make([]domain.ColumnQuiz, len(assignments))
	for i, a := range assignments {
		a.ColumnID = columnID
		out[i] = a
	}
	err := s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		col, err := repo.Column(ctx, columnID)
		if err != nil {
			return err
		}
		ids := make([]int64, len(out))
		for i, a := range out {
			ids[i] = a.QuizID
		}
		courses, err := repo.QuizCourses(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			courseID, ok := courses[id]
			if !ok {
				return fmt.Errorf("quiz %d: %w", id, domain.ErrQuizNotFound)
			}
			if courseID != col.CourseID {
				return domain.Invalid("quiz_ids", "quiz %d belongs to another course", id)
			}
		}
		return repo.ReplaceColumnQuizzes(ctx, columnID, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeColumnAverage returns the user's average in one column, or nil.
func (s *Service) ComputeColumnAverage(ctx context.Context, columnID, userID int64) (*float64, error) {
	if _, err := s.repo.Column(ctx, columnID); err != nil {
		return nil, err
	}
	return s.columnAverage(ctx, s.repo, columnID, userID)
}

func (s *Service) columnAverage(ctx context.Context, repo Repository, columnID, userID int64) (*float64, error) {
	assignments, err := repo.ColumnQuizzes(ctx, columnID)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(assignments))
	for i, a := range assignments {
		ids[i] = a.QuizID
	}
	scores, err := repo.UserQuizScores(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	return ColumnAverage(assignments, scores), nil
}

// ProcessResult is the column breakdown of a user's process average.
type ProcessResult struct {
	ColumnScores   map[int64]domain.ColumnScore `json:"column_scores"`
	ProcessAverage *float64                     `json:"process_average"`
}

// ComputeProcessAverage rolls every active column of the course up.
func (s *Service) ComputeProcessAverage(ctx context.Context, courseID, userID int64) (ProcessResult, error) {
	return s.processAverage(ctx, s.repo, courseID, userID)
}

func (s *Service) processAverage(ctx context.Context, repo Repository, courseID, userID int64) (ProcessResult, error) {
	ok, err := repo.CourseExists(ctx, courseID)
	if err != nil {
		return ProcessResult{}, err
	}
	if !ok {
		return ProcessResult{}, domain.ErrCourseNotFound
	}
	columns, err := repo.Columns(ctx, courseID)
	if err != nil {
		return ProcessResult{}, err
	}
	averages := make(map[int64]*float64, len(columns))
	for _, col := range columns {
		if !col.Active {
			continue
		}
		avg, err := s.columnAverage(ctx, repo, col.ID, userID)
		if err != nil {
			return ProcessResult{}, err
		}
		averages[col.ID] = avg
	}
	scores, pa := ProcessAverage(columns, averages)
	return ProcessResult{ColumnScores: scores, ProcessAverage: pa}, nil
}

// ComputeFinalGrade recomputes and stores a user's course grade. A nil
// finalExamScore keeps the previously stored exam score. The previous row is
// snapshotted to history before it is overwritten.
func (s *Service) ComputeFinalGrade(ctx context.Context, courseID, userID int64, finalExamScore *float64) (domain.CourseGradeResult, error) {
	if finalExamScore != nil && (*finalExamScore < 0 || *finalExamScore > 100 || math.IsNaN(*finalExamScore)) {
		return domain.CourseGradeResult{}, domain.Invalid("final_exam_score", "must be between 0 and 100")
	}
	var result domain.CourseGradeResult
	err := s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		process, err := s.processAverage(ctx, repo, courseID, userID)
		if err != nil {
			return err
		}
		cfg, err := repo.GradeConfig(ctx, courseID)
		if err != nil {
			return err
		}

		now := s.now()
		prev, err := repo.GradeResult(ctx, courseID, userID)
		switch {
		case err == nil:
			if err := repo.InsertGradeHistory(ctx, &domain.CourseGradeHistory{
				ResultID:   prev.ID,
				Snapshot:   prev,
				RecordedAt: now,
			}); err != nil {
				return err
			}
			result = prev
		case isNotFound(err):
			result = domain.CourseGradeResult{CourseID: courseID, UserID: userID, CreatedAt: now}
		default:
			return err
		}

		if finalExamScore != nil {
			exam := *finalExamScore
			result.FinalExamScore = &exam
		}
		result.ColumnScores = process.ColumnScores
		result.ProcessAverage = process.ProcessAverage
		result.TotalScore = FinalGrade(result.ProcessAverage, result.FinalExamScore, cfg)
		result.Grade = LetterGrade(result.TotalScore)
		result.UpdatedAt = now
		return repo.SaveGradeResult(ctx, &result)
	})
	if err != nil {
		return domain.CourseGradeResult{}, err
	}
	s.log.Debug("course grade recomputed",
		zap.Int64("course_id", courseID),
		zap.Int64("user_id", userID),
		zap.String("grade", result.Grade))
	return result, nil
}

// GradeResult returns the stored grade of a user.
func (s *Service) GradeResult(ctx context.Context, courseID, userID int64) (domain.CourseGradeResult, error) {
	return s.repo.GradeResult(ctx, courseID, userID)
}

// History returns the recomputation snapshots of a user's grade, oldest first.
func (s *Service) History(ctx context.Context, courseID, userID int64) ([]domain.CourseGradeHistory, error) {
	return s.repo.GradeHistory(ctx, courseID, userID)
}

func validateColumn(in ColumnInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("name", "is required")
	}
	if !(in.WeightPercentage > 0 && in.WeightPercentage <= 100) {
		return domain.Invalid("weight_percentage", "must be greater than 0 and at most 100")
	}
	return nil
}

func checkCap(ctx context.Context, repo Repository, courseID, excludeID int64, weight float64) error {
	used, err := repo.ActiveWeightSum(ctx, courseID, excludeID)
	if err != nil {
		return err
	}
	if used+weight > 100+1e-9 {
		return domain.Invalid("weight_percentage",
			"total weight of active columns would be %.2f%%; %.2f%% remaining", used+weight, 100-used)
	}
	return nil
}

func validateAssignments(assignments []domain.ColumnQuiz) error {
	if len(assignments) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(assignments))
	weighted := 0
	sum := 0.0
	for _, a := range assignments {
		if seen[a.QuizID] {
			return domain.Invalid("quiz_ids", "quiz %d assigned twice", a.QuizID)
		}
		seen[a.QuizID] = true
		if a.WeightPercentage == nil {
			continue
		}
		w := *a.WeightPercentage
		if !(w > 0 && w <= 100) {
			return domain.Invalid("weight_percentage", "quiz %d weight must be greater than 0 and at most 100", a.QuizID)
		}
		weighted++
		sum += w
	}
	if weighted == 0 {
		return nil
	}
	if weighted != len(assignments) {
		return domain.Invalid("weight_percentage", "either every quiz or no quiz must carry a weight")
	}
	if math.Abs(sum-100) > WeightTolerance {
		return domain.Invalid("weight_percentage", "quiz weights sum to %.2f, expected 100", sum)
	}
	return nil
}

func isNotFound(err error) bool {
	return domain.KindOf(err) == domain.KindNotFound
}
