package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizhub-service/internal/domain"
	"quizhub-service/internal/metrics"
	"quizhub-service/internal/scoring"
)

// minSessionTTL keeps sessions of overdue quizzes alive until the sweep ends them.
const minSessionTTL = time.Minute

// JoinInput identifies a participant entering a quiz.
type JoinInput struct {
	QuizID int64  `json:"quiz_id"`
	UserID int64  `json:"user_id"`
	PIN    string `json:"pin"`
}

// JoinResult is returned to a joining participant. Resumed is set when live
// state already existed; Completed when the attempt was already submitted.
type JoinResult struct {
	Quiz             domain.Quiz       `json:"quiz"`
	Result           domain.QuizResult `json:"result"`
	Session          *domain.Session   `json:"session,omitempty"`
	Resumed          bool              `json:"resumed"`
	Completed        bool              `json:"completed"`
	RemainingSeconds int64             `json:"remaining_seconds"`
	CurrentQuestion  *domain.Question  `json:"current_question,omitempty"`
}

// JoinQuiz registers a participant or resumes its previous state.
func (s *QuizService) JoinQuiz(ctx context.Context, in JoinInput) (JoinResult, error) {
	if in.UserID <= 0 {
		return JoinResult{}, domain.Invalid("user_id", "is required")
	}
	quiz, err := s.repo.Quiz(ctx, in.QuizID)
	if err != nil {
		return JoinResult{}, err
	}
	if in.PIN != quiz.PIN {
		return JoinResult{}, domain.ErrInvalidPIN
	}
	if quiz.Status != domain.QuizPending && quiz.Status != domain.QuizActive {
		return JoinResult{}, domain.ErrQuizNotJoinable
	}

	now := s.now()
	var result domain.QuizResult
	err = s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.Result(ctx, quiz.ID, in.UserID)
		switch {
		case err == nil:
			result = existing
			return nil
		case !isNotFound(err):
			return err
		}
		result = domain.QuizResult{
			QuizID:         quiz.ID,
			UserID:         in.UserID,
			Status:         domain.ResultInProgress,
			TotalQuestions: len(quiz.QuestionIDs),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return repo.InsertResult(ctx, &result)
	})
	if err != nil {
		return JoinResult{}, err
	}
	out := JoinResult{Quiz: quiz, Result: result, RemainingSeconds: int64(quiz.Remaining(now) / time.Second)}
	if result.Status.Terminal() {
		out.Completed = true
		return out, nil
	}

	rec, found, lookupErr := s.registry.Participant(ctx, quiz.ID, in.UserID)
	if lookupErr != nil {
		s.log.Warn("registry lookup on join", zap.Int64("quiz_id", quiz.ID), zap.Int64("user_id", in.UserID), zap.Error(lookupErr))
		found = false
	}
	var recPtr *domain.ParticipantRecord
	if found {
		recPtr = &rec
	}
	session := s.loadSession(ctx, quiz, recPtr, in.UserID, now)
	out.Session = &session

	questions, err := s.questions(ctx, quiz)
	if err != nil {
		return JoinResult{}, err
	}
	if quiz.Status == domain.QuizActive && session.CurrentQuestion < len(questions) {
		q := questions[session.CurrentQuestion].Public()
		out.CurrentQuestion = &q
	}

	if found {
		out.Resumed = true
		if _, err := s.registry.UpdateParticipant(ctx, quiz.ID, in.UserID, func(r *domain.ParticipantRecord) error {
			r.SessionID = session.ID
			r.LastAccessed = now
			return nil
		}); err != nil {
			s.log.Warn("registry touch on rejoin", zap.Int64("quiz_id", quiz.ID), zap.Int64("user_id", in.UserID), zap.Error(err))
		}
		user := domain.UserRoom(quiz.ID, in.UserID)
		s.broadcast.Broadcast(user, domain.EventRestoreState, map[string]any{
			"quiz_id":           quiz.ID,
			"status":            quiz.Status,
			"question_index":    session.CurrentQuestion,
			"current_question":  out.CurrentQuestion,
			"total_questions":   len(questions),
			"remaining_seconds": out.RemainingSeconds,
		})
		s.broadcast.Broadcast(user, domain.EventRestoreProgress, map[string]any{
			"current_score":   rec.CurrentScore,
			"correct_answers": rec.CorrectAnswers,
			"total_answers":   rec.TotalAnswers,
			"answers":         rec.Answers,
		})
		s.broadcast.Broadcast(domain.TeachersRoom(quiz.ID), domain.EventParticipantRejoined, map[string]any{
			"user_id": in.UserID,
		})
		return out, nil
	}

	fresh := domain.ParticipantRecord{
		QuizID:       quiz.ID,
		UserID:       in.UserID,
		Status:       domain.ParticipantInProgress,
		Answers:      map[int64]domain.AnswerLog{},
		SessionID:    session.ID,
		LastAccessed: now,
	}
	if out.CurrentQuestion != nil {
		fresh.CurrentQuestionID = out.CurrentQuestion.ID
	}
	// an unreadable registry may still hold this participant; do not overwrite it
	if lookupErr == nil {
		if err := s.registry.SaveParticipant(ctx, fresh); err != nil {
			s.log.Warn("registry register participant", zap.Int64("quiz_id", quiz.ID), zap.Int64("user_id", in.UserID), zap.Error(err))
		}
	}
	s.broadcast.Broadcast(domain.TeachersRoom(quiz.ID), domain.EventNewParticipant, map[string]any{
		"user_id": in.UserID,
	})
	s.log.Debug("participant joined", zap.Int64("quiz_id", quiz.ID), zap.Int64("user_id", in.UserID))
	return out, nil
}

// loadSession returns the cached session of rec, rebuilding and caching it
// from the registry record when it expired or never existed.
func (s *QuizService) loadSession(ctx context.Context, quiz domain.Quiz, rec *domain.ParticipantRecord, userID int64, now time.Time) domain.Session {
	if rec != nil && rec.SessionID != "" {
		session, err := s.cache.Session(ctx, rec.SessionID)
		if err == nil {
			return session
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.log.Warn("read session", zap.String("session_id", rec.SessionID), zap.Error(err))
		}
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		QuizID:    quiz.ID,
		UserID:    userID,
		StartTime: now,
		EndTime:   now.Add(quiz.Remaining(now)),
		Answers:   map[int64]domain.SessionAnswer{},
		Status:    domain.ResultInProgress,
	}
	if rec != nil {
		if rec.SessionID != "" {
			session.ID = rec.SessionID
		}
		for qid, log := range rec.Answers {
			session.Answers[qid] = domain.SessionAnswer{AnswerID: log.AnswerID, Correct: log.Correct, Attempts: log.Attempts}
		}
		session.CurrentQuestion = nextOpenIndex(quiz.QuestionIDs, rec.Answers, s.maxAttempts(quiz))
		if rec.Status == domain.ParticipantCompleted {
			session.Status = domain.ResultCompleted
		}
	}
	if quiz.Status == domain.QuizActive {
		session.QuestionStartedAt = s.rebuiltQuestionStart(ctx, quiz, rec, session.CurrentQuestion, now)
	}
	if err := s.cache.SaveSession(ctx, session, sessionTTL(quiz, now)); err != nil {
		s.log.Warn("save session", zap.String("session_id", session.ID), zap.Error(err))
	}
	return session
}

// rebuiltQuestionStart recovers when the current question of a rebuilt session
// was first shown: the registry stamp, else the last attempt on an earlier
// question, else the quiz start.
func (s *QuizService) rebuiltQuestionStart(ctx context.Context, quiz domain.Quiz, rec *domain.ParticipantRecord, index int, now time.Time) time.Time {
	if cq, ok := s.currentQuestionAt(ctx, quiz.ID, index); ok {
		return cq.StartTime
	}
	var current int64
	if index < len(quiz.QuestionIDs) {
		current = quiz.QuestionIDs[index]
	}
	if rec != nil {
		for i := len(rec.History) - 1; i >= 0; i-- {
			if rec.History[i].QuestionID != current {
				return rec.History[i].Timestamp
			}
		}
	}
	if quiz.StartTime != nil {
		return *quiz.StartTime
	}
	return now
}

func sessionTTL(quiz domain.Quiz, now time.Time) time.Duration {
	if ttl := quiz.Remaining(now); ttl > minSessionTTL {
		return ttl
	}
	return minSessionTTL
}

func (s *QuizService) maxAttempts(quiz domain.Quiz) int {
	if quiz.Mode.AllowsRetry() {
		return s.cfg.MaxAttempts
	}
	return 1
}

// questionDone reports whether a question can take no more answers.
func questionDone(log domain.AnswerLog, maxAttempts int) bool {
	return log.Correct || log.Attempts >= maxAttempts
}

// nextOpenIndex is the first question still open, or len(ids) when none is.
func nextOpenIndex(ids []int64, answers map[int64]domain.AnswerLog, maxAttempts int) int {
	for i, id := range ids {
		log, ok := answers[id]
		if !ok || !questionDone(log, maxAttempts) {
			return i
		}
	}
	return len(ids)
}

// AnswerInput is one realtime answer submission. StartTime is accepted for
// older clients and ignored; response time is measured from server stamps.
type AnswerInput struct {
	QuizID     int64      `json:"quizId"`
	QuestionID int64      `json:"questionId"`
	AnswerID   int64      `json:"answerId"`
	UserID     int64      `json:"userId"`
	StartTime  *time.Time `json:"startTime,omitempty"`
}

// AnswerResult is acknowledged to the submitting participant.
type AnswerResult struct {
	Correct        bool              `json:"correct"`
	Points         int               `json:"points"`
	Breakdown      scoring.Breakdown `json:"breakdown"`
	Score          int               `json:"score"`
	Position       int               `json:"position"`
	Attempts       int               `json:"attempts"`
	QuestionDone   bool              `json:"question_done"`
	Completed      bool              `json:"completed"`
	PerfectBonuses []scoring.Bonus   `json:"perfect_bonuses,omitempty"`
	NextQuestion   *domain.Question  `json:"next_question,omitempty"`
}

// SubmitAnswer scores one answer and records it in the registry. The durable
// result is left to finalization.
func (s *QuizService) SubmitAnswer(ctx context.Context, in AnswerInput) (AnswerResult, error) {
	now := s.now()
	quiz, err := s.repo.Quiz(ctx, in.QuizID)
	if err != nil {
		return AnswerResult{}, err
	}
	if quiz.Status != domain.QuizActive || (quiz.EndTime != nil && now.After(*quiz.EndTime)) {
		return AnswerResult{}, domain.ErrQuizNotActive
	}
	questions, err := s.questions(ctx, quiz)
	if err != nil {
		return AnswerResult{}, err
	}
	index := -1
	for i, q := range questions {
		if q.ID == in.QuestionID {
			index = i
			break
		}
	}
	if index < 0 {
		return AnswerResult{}, domain.ErrQuestionNotFound
	}
	question := questions[index]
	var answer *domain.Answer
	for i := range question.Answers {
		if question.Answers[i].ID == in.AnswerID {
			answer = &question.Answers[i]
			break
		}
	}
	if answer == nil {
		return AnswerResult{}, domain.ErrAnswerNotFound
	}

	rec, found, err := s.registry.Participant(ctx, quiz.ID, in.UserID)
	if err != nil {
		return AnswerResult{}, registryErr("read participant", err)
	}
	if !found {
		return AnswerResult{}, domain.ErrParticipantNotFound
	}
	if rec.Status == domain.ParticipantCompleted {
		return AnswerResult{}, domain.ErrSessionCompleted
	}
	maxAttempts := s.maxAttempts(quiz)
	if questionDone(rec.Answers[question.ID], maxAttempts) {
		return AnswerResult{}, domain.ErrAlreadyAnswered
	}
	if nextOpenIndex(quiz.QuestionIDs, rec.Answers, maxAttempts) != index {
		return AnswerResult{}, domain.ErrQuestionNotCurrent
	}

	session := s.loadSession(ctx, quiz, &rec, in.UserID, now)
	started := s.questionStart(ctx, quiz, session, index, now)
	responseTime := now.Sub(started)
	if responseTime < 0 {
		responseTime = 0
	}

	var (
		breakdown scoring.Breakdown
		bonuses   []scoring.Bonus
	)
	// scored from r so a retried transaction never reuses a stale breakdown
	updated, err := s.registry.UpdateParticipant(ctx, quiz.ID, in.UserID, func(r *domain.ParticipantRecord) error {
		bonuses = nil
		if r.Status == domain.ParticipantCompleted {
			return domain.ErrSessionCompleted
		}
		last, seen := r.Answers[question.ID]
		if questionDone(last, maxAttempts) {
			return domain.ErrAlreadyAnswered
		}
		if nextOpenIndex(quiz.QuestionIDs, r.Answers, maxAttempts) != index {
			return domain.ErrQuestionNotCurrent
		}
		if r.Answers == nil {
			r.Answers = map[int64]domain.AnswerLog{}
		}
		breakdown = s.scorer.Score(scoring.Event{
			Correct:       answer.Correct,
			Attempt:       last.Attempts + 1,
			ResponseTime:  responseTime,
			Difficulty:    question.Level,
			History:       history(r.History),
			QuizDuration:  quiz.DurationTime(),
			TimeRemaining: quiz.Remaining(now),
		})
		if !seen {
			r.TotalAnswers++
		}
		if answer.Correct {
			r.CorrectAnswers++
		}
		r.Answers[question.ID] = domain.AnswerLog{
			AnswerID:       answer.ID,
			Correct:        answer.Correct,
			Attempts:       last.Attempts + 1,
			ResponseTimeMS: responseTime.Milliseconds(),
			Points:         last.Points + breakdown.Total,
			Timestamp:      now,
		}
		r.History = append(r.History, domain.AttemptLog{
			QuestionID:     question.ID,
			Correct:        answer.Correct,
			ResponseTimeMS: responseTime.Milliseconds(),
			Timestamp:      now,
		})
		r.CurrentScore += breakdown.Total
		r.LastAccessed = now

		next := nextOpenIndex(quiz.QuestionIDs, r.Answers, maxAttempts)
		if next >= len(quiz.QuestionIDs) {
			r.Status = domain.ParticipantCompleted
			r.CurrentQuestionID = 0
			bonuses = scoring.PerfectBonuses(summaryOf(quiz.QuestionIDs, r))
			r.CurrentScore += scoring.SumBonuses(bonuses)
		} else {
			r.CurrentQuestionID = quiz.QuestionIDs[next]
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) || errors.Is(err, domain.ErrSessionCompleted) || errors.Is(err, domain.ErrQuestionNotCurrent) {
			return AnswerResult{}, err
		}
		return AnswerResult{}, registryErr("record answer", err)
	}
	metrics.ObserveAnswer(answer.Correct, breakdown.Total)

	logEntry := updated.Answers[question.ID]
	result := AnswerResult{
		Correct:        answer.Correct,
		Points:         breakdown.Total,
		Breakdown:      breakdown,
		Score:          updated.CurrentScore,
		Attempts:       logEntry.Attempts,
		QuestionDone:   questionDone(logEntry, maxAttempts),
		Completed:      updated.Status == domain.ParticipantCompleted,
		PerfectBonuses: bonuses,
	}

	session.Answers[question.ID] = domain.SessionAnswer{AnswerID: answer.ID, Correct: answer.Correct, Attempts: logEntry.Attempts}
	if next := nextOpenIndex(quiz.QuestionIDs, updated.Answers, maxAttempts); next != session.CurrentQuestion {
		session.CurrentQuestion = next
		session.QuestionStartedAt = now
	}
	if result.QuestionDone {
		if !result.Completed && session.CurrentQuestion < len(questions) {
			nq := questions[session.CurrentQuestion].Public()
			result.NextQuestion = &nq
		}
	}
	if result.Completed {
		session.Status = domain.ResultCompleted
	}
	if err := s.cache.SaveSession(ctx, session, sessionTTL(quiz, now)); err != nil {
		s.log.Warn("save session", zap.String("session_id", session.ID), zap.Error(err))
	}

	participants, err := s.registry.Participants(ctx, quiz.ID)
	if err != nil {
		s.log.Warn("registry participants", zap.Int64("quiz_id", quiz.ID), zap.Error(err))
		participants = []domain.ParticipantRecord{updated}
	}
	entries := rankRecords(participants)
	for _, e := range entries {
		if e.UserID == in.UserID {
			result.Position = e.Position
			break
		}
	}

	s.broadcast.Broadcast(domain.UserRoom(quiz.ID, in.UserID), domain.EventUserPositionUpdate, map[string]any{
		"user_id":   in.UserID,
		"position":  result.Position,
		"score":     result.Score,
		"points":    result.Points,
		"correct":   result.Correct,
		"breakdown": breakdown,
	})
	s.broadcast.Broadcast(domain.TeachersRoom(quiz.ID), domain.EventTeacherUpdates, map[string]any{
		"user_id":       in.UserID,
		"question_id":   question.ID,
		"correct":       answer.Correct,
		"score":         updated.CurrentScore,
		"total_answers": updated.TotalAnswers,
		"status":        updated.Status,
	})
	if quiz.Mode == domain.ModePractice && quiz.Features.GamificationEnabled {
		s.broadcast.Broadcast(domain.QuizRoom(quiz.ID), domain.EventLeaderboardUpdate, domain.Leaderboard{
			QuizID:    quiz.ID,
			Entries:   entries,
			UpdatedAt: now,
		})
	}
	if result.Completed {
		s.broadcast.Broadcast(domain.QuizRoom(quiz.ID), domain.EventShowLeaderboard, map[string]any{
			"user_id":         in.UserID,
			"perfect_bonuses": bonuses,
			"leaderboard":     entries,
		})
		s.scheduleEndIfCompleted(quiz.ID, participants)
	}
	return result, nil
}

// questionStart finds the server stamp from which response time is measured.
func (s *QuizService) questionStart(ctx context.Context, quiz domain.Quiz, session domain.Session, index int, now time.Time) time.Time {
	if session.CurrentQuestion == index && !session.QuestionStartedAt.IsZero() {
		return session.QuestionStartedAt
	}
	if cq, ok := s.currentQuestionAt(ctx, quiz.ID, index); ok {
		return cq.StartTime
	}
	if quiz.StartTime != nil {
		return *quiz.StartTime
	}
	return now
}

// currentQuestionAt returns the registry question stamp when it points at index.
func (s *QuizService) currentQuestionAt(ctx context.Context, quizID int64, index int) (domain.CurrentQuestion, bool) {
	cq, ok, err := s.registry.CurrentQuestion(ctx, quizID)
	if err != nil {
		s.log.Warn("registry current question", zap.Int64("quiz_id", quizID), zap.Error(err))
		return domain.CurrentQuestion{}, false
	}
	return cq, ok && cq.QuestionIndex == index
}

// history returns previous attempt outcomes newest first.
func history(attempts []domain.AttemptLog) []bool {
	n := len(attempts)
	if n > scoring.HistoryLimit {
		n = scoring.HistoryLimit
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = attempts[len(attempts)-1-i].Correct
	}
	return out
}

// summaryOf counts correct questions from the answer map and takes outcomes
// and response times from every attempt in order.
func summaryOf(ids []int64, rec *domain.ParticipantRecord) scoring.Summary {
	sum := scoring.Summary{Total: len(ids)}
	for _, log := range rec.Answers {
		if log.Correct {
			sum.Correct++
		}
	}
	for _, a := range rec.History {
		sum.ResponseTimes = append(sum.ResponseTimes, time.Duration(a.ResponseTimeMS)*time.Millisecond)
		sum.Outcomes = append(sum.Outcomes, a.Correct)
	}
	return sum
}

// scheduleEndIfCompleted debounces the early end of a quiz whose participants
// have all completed. The check is repeated when the grace period elapses.
func (s *QuizService) scheduleEndIfCompleted(quizID int64, participants []domain.ParticipantRecord) {
	if !allCompleted(participants) {
		return
	}
	s.completion.Schedule(quizID, s.cfg.CompletionGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		current, err := s.registry.Participants(ctx, quizID)
		if err != nil {
			s.log.Warn("registry participants on completion check", zap.Int64("quiz_id", quizID), zap.Error(err))
			return
		}
		if !allCompleted(current) {
			return
		}
		if _, err := s.EndQuiz(ctx, quizID, TriggerAllCompleted); err != nil && !errors.Is(err, domain.ErrQuizNotActive) {
			s.log.Warn("end completed quiz", zap.Int64("quiz_id", quizID), zap.Error(err))
		}
	})
}

func allCompleted(participants []domain.ParticipantRecord) bool {
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if p.Status != domain.ParticipantCompleted {
			return false
		}
	}
	return true
}

// LeaveQuiz withdraws an in-progress participant, dropping its result and
// live state.
func (s *QuizService) LeaveQuiz(ctx context.Context, quizID, userID int64) error {
	rec, found, err := s.registry.Participant(ctx, quizID, userID)
	if err != nil {
		s.log.Warn("registry lookup on leave", zap.Int64("quiz_id", quizID), zap.Int64("user_id", userID), zap.Error(err))
		found = false
	}
	if found && rec.Status == domain.ParticipantCompleted {
		return domain.ErrSessionCompleted
	}
	err = s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		res, err := repo.Result(ctx, quizID, userID)
		if err != nil {
			return err
		}
		if res.Status.Terminal() {
			return domain.ErrSessionCompleted
		}
		return repo.DeleteResult(ctx, res.ID)
	})
	if err != nil {
		return err
	}

	if err := s.registry.RemoveParticipant(ctx, quizID, userID); err != nil {
		s.log.Warn("registry remove participant", zap.Int64("quiz_id", quizID), zap.Int64("user_id", userID), zap.Error(err))
	}
	if found && rec.SessionID != "" {
		if err := s.cache.DeleteSession(ctx, rec.SessionID); err != nil {
			s.log.Warn("delete session", zap.String("session_id", rec.SessionID), zap.Error(err))
		}
	}
	s.broadcast.Broadcast(domain.TeachersRoom(quizID), domain.EventParticipantLeft, map[string]any{
		"user_id": userID,
	})
	return nil
}

// Leaderboard ranks a quiz: live registry state while it runs, durable
// results once it finished.
func (s *QuizService) Leaderboard(ctx context.Context, quizID int64) (domain.Leaderboard, error) {
	quiz, err := s.repo.Quiz(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	lb := domain.Leaderboard{QuizID: quizID, UpdatedAt: s.now()}
	if quiz.Status == domain.QuizFinished {
		results, err := s.repo.Results(ctx, quizID)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		lb.Entries = rankResults(results)
		return lb, nil
	}
	participants, err := s.registry.Participants(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, registryErr("list participants", err)
	}
	lb.Entries = rankRecords(participants)
	return lb, nil
}

func rankRecords(recs []domain.ParticipantRecord) []domain.LeaderboardEntry {
	sorted := append([]domain.ParticipantRecord(nil), recs...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.CurrentScore != b.CurrentScore {
			return a.CurrentScore > b.CurrentScore
		}
		if a.CorrectAnswers != b.CorrectAnswers {
			return a.CorrectAnswers > b.CorrectAnswers
		}
		if !a.LastAccessed.Equal(b.LastAccessed) {
			return a.LastAccessed.Before(b.LastAccessed)
		}
		return a.UserID < b.UserID
	})
	entries := make([]domain.LeaderboardEntry, len(sorted))
	for i, r := range sorted {
		entries[i] = domain.LeaderboardEntry{
			Position:       i + 1,
			UserID:         r.UserID,
			Score:          r.CurrentScore,
			CorrectAnswers: r.CorrectAnswers,
			TotalAnswers:   r.TotalAnswers,
			Status:         string(r.Status),
		}
	}
	return entries
}

func rankResults(results []domain.QuizResult) []domain.LeaderboardEntry {
	sorted := append([]domain.QuizResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CorrectAnswers != b.CorrectAnswers {
			return a.CorrectAnswers > b.CorrectAnswers
		}
		if a.CompletionTime != b.CompletionTime {
			return a.CompletionTime < b.CompletionTime
		}
		return a.UserID < b.UserID
	})
	entries := make([]domain.LeaderboardEntry, len(sorted))
	for i, r := range sorted {
		entries[i] = domain.LeaderboardEntry{
			Position:       i + 1,
			UserID:         r.UserID,
			Score:          r.Score,
			CorrectAnswers: r.CorrectAnswers,
			TotalAnswers:   r.TotalQuestions,
			Status:         string(r.Status),
		}
	}
	return entries
}
