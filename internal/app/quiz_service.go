package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizhub-service/internal/domain"
	"quizhub-service/internal/scoring"
	"quizhub-service/internal/selection"
)

// Finalization triggers, used as metric labels.
const (
	TriggerManual       = "manual"
	TriggerExpired      = "expired"
	TriggerAllCompleted = "all_completed"
)

// Config tunes the lifecycle timings.
type Config struct {
	// FinalizeDelay is waited before the registry is read at quiz end so a
	// last answer still in flight can land.
	FinalizeDelay time.Duration
	// CompletionGrace debounces the early end once every participant completed.
	CompletionGrace time.Duration
	// MaxAttempts bounds retries per question in practice modes.
	MaxAttempts int
	// PINAttempts bounds the rejection sampling of a fresh PIN.
	PINAttempts int
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		FinalizeDelay:   500 * time.Millisecond,
		CompletionGrace: 5 * time.Second,
		MaxAttempts:     3,
		PINAttempts:     100,
	}
}

// Deps wires a QuizService. Broadcaster, Scorer, Logger, Clock and PIN are
// optional.
type Deps struct {
	Store       Repository
	Bank        QuestionBank
	Cache       SessionCache
	Registry    Registry
	Broadcaster Broadcaster
	Scorer      scoring.Scorer
	Logger      *zap.Logger
	Clock       func() time.Time
	PIN         func() string
	Config      Config
}

// QuizService orchestrates the quiz lifecycle.
type QuizService struct {
	repo       Repository
	bank       QuestionBank
	cache      SessionCache
	registry   Registry
	broadcast  Broadcaster
	scorer     scoring.Scorer
	log        *zap.Logger
	now        func() time.Time
	pin        func() string
	cfg        Config
	completion *CompletionScheduler
}

func NewQuizService(deps Deps) *QuizService {
	s := &QuizService{
		repo:       deps.Store,
		bank:       deps.Bank,
		cache:      deps.Cache,
		registry:   deps.Registry,
		broadcast:  deps.Broadcaster,
		scorer:     deps.Scorer,
		log:        deps.Logger,
		now:        deps.Clock,
		pin:        deps.PIN,
		cfg:        deps.Config,
		completion: NewCompletionScheduler(),
	}
	if s.broadcast == nil {
		s.broadcast = NopBroadcaster{}
	}
	if s.scorer == nil {
		s.scorer = scoring.NewEngine()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pin == nil {
		s.pin = randomPIN
	}
	if s.cfg.MaxAttempts <= 0 {
		s.cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if s.cfg.PINAttempts <= 0 {
		s.cfg.PINAttempts = DefaultConfig().PINAttempts
	}
	return s
}

// Close cancels pending completion checks.
func (s *QuizService) Close() {
	s.completion.Stop()
}

// QuestionCriteria asks the selector to draw the quiz questions.
type QuestionCriteria struct {
	LOIDs  []int64         `json:"lo_ids"`
	Total  int             `json:"total"`
	Ratio  selection.Ratio `json:"difficulty_ratio"`
	TypeID *int64          `json:"type_id,omitempty"`
}

// CreateQuizInput is the authoring payload. Existing questions come from
// Criteria or, when it is nil, QuestionIDs; inline Questions are created and
// appended.
type CreateQuizInput struct {
	CourseID int64 `json:"course_id"`
	// SubjectID is the deprecated alias of CourseID.
	SubjectID   int64             `json:"subject_id,omitempty"`
	Name        string            `json:"name"`
	Duration    int               `json:"duration"`
	Mode        domain.QuizMode   `json:"quiz_mode"`
	Features    domain.Features   `json:"features"`
	Criteria    *QuestionCriteria `json:"question_criteria,omitempty"`
	QuestionIDs []int64           `json:"question_ids,omitempty"`
	Questions   []domain.Question `json:"inline_questions,omitempty"`
}

// CreateQuiz validates and persists a pending quiz with its questions.
func (s *QuizService) CreateQuiz(ctx context.Context, in CreateQuizInput) (domain.Quiz, error) {
	if in.CourseID == 0 {
		in.CourseID = in.SubjectID
	}
	if in.Mode == "" {
		in.Mode = domain.ModeAssessment
	}
	if err := validateCreate(in); err != nil {
		return domain.Quiz{}, err
	}

	var selected []domain.Question
	if in.Criteria != nil {
		pool, err := s.bank.QuestionPool(ctx, in.Criteria.LOIDs, in.Criteria.TypeID)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("load question pool: %w", err)
		}
		selected, err = selection.Select(pool, selection.Request{
			LOIDs:  in.Criteria.LOIDs,
			Total:  in.Criteria.Total,
			Ratio:  in.Criteria.Ratio,
			TypeID: in.Criteria.TypeID,
		})
		if err != nil {
			return domain.Quiz{}, err
		}
	} else if len(in.QuestionIDs) > 0 {
		var err error
		selected, err = s.bank.Questions(ctx, in.QuestionIDs)
		if err != nil {
			return domain.Quiz{}, err
		}
	}

	now := s.now()
	quiz := domain.Quiz{
		CourseID:  in.CourseID,
		Name:      strings.TrimSpace(in.Name),
		Duration:  in.Duration,
		Status:    domain.QuizPending,
		Mode:      in.Mode,
		Features:  in.Features,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		ok, err := repo.CourseExists(ctx, in.CourseID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCourseNotFound
		}
		if quiz.PIN, err = s.uniquePIN(ctx, repo); err != nil {
			return err
		}
		for i := range in.Questions {
			q := in.Questions[i]
			if err := repo.InsertQuestion(ctx, &q); err != nil {
				return fmt.Errorf("insert question: %w", err)
			}
			selected = append(selected, q)
		}
		quiz.QuestionIDs = questionIDs(selected)
		return repo.InsertQuiz(ctx, &quiz)
	})
	if err != nil {
		return domain.Quiz{}, err
	}

	if err := s.cache.InvalidateQuizLists(ctx); err != nil {
		s.log.Warn("invalidate quiz lists", zap.Error(err))
	}
	s.broadcast.Broadcast(domain.LobbyRoom, domain.EventQuizCreated, quiz)
	s.log.Info("quiz created",
		zap.Int64("quiz_id", quiz.ID),
		zap.Int64("course_id", quiz.CourseID),
		zap.Int("questions", len(quiz.QuestionIDs)))
	return quiz, nil
}

func validateCreate(in CreateQuizInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("name", "is required")
	}
	if in.CourseID <= 0 {
		return domain.Invalid("course_id", "is required")
	}
	if in.Duration <= 0 {
		return domain.Invalid("duration", "must be greater than 0")
	}
	if !in.Mode.Valid() {
		return domain.Invalid("quiz_mode", "unknown mode %q", in.Mode)
	}
	if in.Criteria == nil && len(in.QuestionIDs) == 0 && len(in.Questions) == 0 {
		return domain.Invalid("questions", "question_criteria, question_ids or inline_questions is required")
	}
	for i, q := range in.Questions {
		if err := validateInlineQuestion(q); err != nil {
			return fmt.Errorf("inline_questions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateInlineQuestion(q domain.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return domain.Invalid("text", "is required")
	}
	if q.LOID <= 0 {
		return domain.Invalid("lo_id", "is required")
	}
	if len(q.Answers) < 2 {
		return domain.Invalid("answers", "at least two answers are required")
	}
	for _, a := range q.Answers {
		if a.Correct {
			return nil
		}
	}
	return domain.Invalid("answers", "at least one answer must be correct")
}

func (s *QuizService) uniquePIN(ctx context.Context, repo Repository) (string, error) {
	for i := 0; i < s.cfg.PINAttempts; i++ {
		pin := s.pin()
		used, err := repo.PINInUse(ctx, pin)
		if err != nil {
			return "", err
		}
		if !used {
			return pin, nil
		}
	}
	return "", fmt.Errorf("no free pin after %d attempts", s.cfg.PINAttempts)
}

func randomPIN() string {
	return fmt.Sprintf("%06d", rand.IntN(1_000_000))
}

// ListQuizzes returns one page of quizzes, served from the list cache when
// possible. An empty result is a page with no items, not an error.
func (s *QuizService) ListQuizzes(ctx context.Context, f domain.QuizFilter) (domain.QuizPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
	key := listKey(f)
	if page, ok, err := s.cache.QuizList(ctx, key); err != nil {
		s.log.Warn("read quiz list cache", zap.String("key", key), zap.Error(err))
	} else if ok {
		return page, nil
	}

	items, total, err := s.repo.ListQuizzes(ctx, f)
	if err != nil {
		return domain.QuizPage{}, err
	}
	if items == nil {
		items = []domain.Quiz{}
	}
	page := domain.QuizPage{
		Items:      items,
		Page:       f.Page,
		Limit:      f.Limit,
		Total:      total,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}
	if err := s.cache.SaveQuizList(ctx, key, page); err != nil {
		s.log.Warn("write quiz list cache", zap.String("key", key), zap.Error(err))
	}
	return page, nil
}

func listKey(f domain.QuizFilter) string {
	course := "all"
	if f.CourseID > 0 {
		course = strconv.FormatInt(f.CourseID, 10)
	}
	status := string(f.Status)
	if status == "" {
		status = "all"
	}
	return fmt.Sprintf("quizzes:%d:%d:%s:%s:%s:%s", f.Page, f.Limit, status, course, f.Search, f.Sort)
}

// QuizView is a quiz with its ordered questions.
type QuizView struct {
	domain.Quiz
	Questions []domain.Question `json:"questions"`
}

// GetQuiz returns a quiz and its questions.
func (s *QuizService) GetQuiz(ctx context.Context, quizID int64) (QuizView, error) {
	quiz, err := s.repo.Quiz(ctx, quizID)
	if err != nil {
		return QuizView{}, err
	}
	questions, err := s.questions(ctx, quiz)
	if err != nil {
		return QuizView{}, err
	}
	return QuizView{Quiz: quiz, Questions: questions}, nil
}

func (s *QuizService) questions(ctx context.Context, quiz domain.Quiz) ([]domain.Question, error) {
	return s.cache.Questions(ctx, quiz.ID, func(ctx context.Context) ([]domain.Question, error) {
		return s.bank.Questions(ctx, quiz.QuestionIDs)
	})
}

// StartResult is the state broadcast when a quiz starts.
type StartResult struct {
	Quiz           domain.Quiz     `json:"quiz"`
	TotalQuestions int             `json:"total_questions"`
	FirstQuestion  domain.Question `json:"first_question"`
}

// StartQuiz moves a pending quiz to active and opens its first question.
func (s *QuizService) StartQuiz(ctx context.Context, quizID int64) (StartResult, error) {
	var (
		quiz      domain.Quiz
		questions []domain.Question
	)
	now := s.now()
	err := s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		quiz, err = repo.LockQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if quiz.Status != domain.QuizPending {
			return &domain.ConflictError{
				Message: fmt.Sprintf("quiz %d is %s", quizID, quiz.Status),
				Hint:    "only pending quizzes can be started",
			}
		}
		questions, err = s.questions(ctx, quiz)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return domain.Invalid("questions", "quiz has no questions")
		}
		end := now.Add(quiz.DurationTime())
		quiz.Status = domain.QuizActive
		quiz.StartTime = &now
		quiz.EndTime = &end
		quiz.UpdatedAt = now
		return repo.UpdateQuiz(ctx, &quiz)
	})
	if err != nil {
		return StartResult{}, err
	}

	s.openQuestion(ctx, quiz, questions, 0, now)
	if err := s.cache.InvalidateQuizLists(ctx); err != nil {
		s.log.Warn("invalidate quiz lists", zap.Error(err))
	}
	s.broadcast.Broadcast(domain.QuizRoom(quizID), domain.EventQuizStarted, map[string]any{
		"quiz_id":         quizID,
		"total_questions": len(questions),
		"start_time":      quiz.StartTime,
		"end_time":        quiz.EndTime,
	})
	s.log.Info("quiz started", zap.Int64("quiz_id", quizID), zap.Time("end_time", *quiz.EndTime))
	return StartResult{Quiz: quiz, TotalQuestions: len(questions), FirstQuestion: questions[0].Public()}, nil
}

// openQuestion stamps the server-side start of question index and announces it.
func (s *QuizService) openQuestion(ctx context.Context, quiz domain.Quiz, questions []domain.Question, index int, now time.Time) domain.QuizState {
	q := questions[index]
	state := domain.QuizState{
		QuizID:            quiz.ID,
		CurrentIndex:      index,
		CurrentQuestionID: q.ID,
		QuestionStartedAt: now,
		TotalQuestions:    len(questions),
	}
	if err := s.cache.SaveState(ctx, state); err != nil {
		s.log.Warn("save quiz state", zap.Int64("quiz_id", quiz.ID), zap.Error(err))
	}
	if err := s.registry.SetCurrentQuestion(ctx, quiz.ID, domain.CurrentQuestion{
		StartTime:     now,
		QuestionIndex: index,
		QuestionID:    q.ID,
	}); err != nil {
		s.log.Warn("registry current question", zap.Int64("quiz_id", quiz.ID), zap.Error(err))
	}
	s.broadcast.Broadcast(domain.QuizRoom(quiz.ID), domain.EventNewQuestion, map[string]any{
		"question":        q.Public(),
		"question_index":  index,
		"total_questions": len(questions),
		"start_time":      now,
	})
	return state
}

// NextResult reports the outcome of advancing a quiz.
type NextResult struct {
	State    domain.QuizState `json:"state"`
	Finished bool             `json:"finished"`
}

// NextQuestion advances an active quiz to its next question. Past the last
// question the leaderboard is revealed instead.
func (s *QuizService) NextQuestion(ctx context.Context, quizID int64) (NextResult, error) {
	quiz, err := s.repo.Quiz(ctx, quizID)
	if err != nil {
		return NextResult{}, err
	}
	if quiz.Status != domain.QuizActive {
		return NextResult{}, domain.ErrQuizNotActive
	}
	questions, err := s.questions(ctx, quiz)
	if err != nil {
		return NextResult{}, err
	}

	index := 0
	state, ok, err := s.cache.State(ctx, quizID)
	switch {
	case err != nil:
		s.log.Warn("read quiz state", zap.Int64("quiz_id", quizID), zap.Error(err))
		fallthrough
	case !ok:
		if cq, found, cerr := s.registry.CurrentQuestion(ctx, quizID); cerr == nil && found {
			index = cq.QuestionIndex
		}
	default:
		index = state.CurrentIndex
	}

	if index+1 >= len(questions) {
		lb, err := s.Leaderboard(ctx, quizID)
		if err != nil {
			return NextResult{}, err
		}
		s.broadcast.Broadcast(domain.QuizRoom(quizID), domain.EventShowLeaderboard, lb)
		state.QuizID = quizID
		state.CurrentIndex = index
		state.TotalQuestions = len(questions)
		return NextResult{State: state, Finished: true}, nil
	}
	return NextResult{State: s.openQuestion(ctx, quiz, questions, index+1, s.now())}, nil
}

// ShuffleQuestions redraws the questions of a pending quiz with the difficulty
// ratio its current question set carries.
func (s *QuizService) ShuffleQuestions(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		quiz, err = repo.LockQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if quiz.Status != domain.QuizPending {
			return &domain.ConflictError{
				Message: fmt.Sprintf("quiz %d is %s", quizID, quiz.Status),
				Hint:    "questions can only be shuffled before the quiz starts",
			}
		}
		current, err := s.bank.Questions(ctx, quiz.QuestionIDs)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return domain.Invalid("questions", "quiz has no questions")
		}
		los := selection.LOIDs(current)
		pool, err := s.bank.QuestionPool(ctx, los, nil)
		if err != nil {
			return fmt.Errorf("load question pool: %w", err)
		}
		selected, err := selection.Select(pool, selection.Request{
			LOIDs: los,
			Total: len(current),
			Ratio: selection.DeriveRatio(current),
			Seed:  selection.Seed(s.now().UnixNano()),
		})
		if err != nil {
			return err
		}
		quiz.QuestionIDs = questionIDs(selected)
		quiz.UpdatedAt = s.now()
		return repo.UpdateQuiz(ctx, &quiz)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	s.purge(ctx, quizID)
	s.broadcast.Broadcast(domain.QuizRoom(quizID), domain.EventQuizUpdated, quiz)
	return quiz, nil
}

// purge drops quiz-scoped caches and the list cache.
func (s *QuizService) purge(ctx context.Context, quizID int64) {
	if err := s.cache.PurgeQuiz(ctx, quizID); err != nil {
		s.log.Warn("purge quiz cache", zap.Int64("quiz_id", quizID), zap.Error(err))
	}
	if err := s.cache.InvalidateQuizLists(ctx); err != nil {
		s.log.Warn("invalidate quiz lists", zap.Error(err))
	}
}

func questionIDs(questions []domain.Question) []int64 {
	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func isNotFound(err error) bool {
	return err != nil && domain.KindOf(err) == domain.KindNotFound
}

func registryErr(op string, err error) error {
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrRegistryUnavailable, op, err)
}
