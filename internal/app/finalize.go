package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quizhub-service/internal/domain"
	"quizhub-service/internal/metrics"
)

// EndResult is the finalized state of a quiz.
type EndResult struct {
	Quiz        domain.Quiz         `json:"quiz"`
	Results     []domain.QuizResult `json:"results"`
	Leaderboard domain.Leaderboard  `json:"leaderboard"`
}

// EndQuiz finalizes an active quiz: every registry participant is projected
// into its durable result and the quiz becomes finished. Ending a quiz that is
// not active returns domain.ErrQuizNotActive and changes nothing.
func (s *QuizService) EndQuiz(ctx context.Context, quizID int64, trigger string) (EndResult, error) {
	quiz, err := s.repo.Quiz(ctx, quizID)
	if err != nil {
		return EndResult{}, err
	}
	if quiz.Status != domain.QuizActive {
		return EndResult{}, domain.ErrQuizNotActive
	}
	if err := sleep(ctx, s.cfg.FinalizeDelay); err != nil {
		return EndResult{}, err
	}

	var results []domain.QuizResult
	err = s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		results = nil
		var err error
		quiz, err = repo.LockQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		if quiz.Status != domain.QuizActive {
			return domain.ErrQuizNotActive
		}
		// Live and durable state are read together; only repo touches the tx.
		var (
			participants []domain.ParticipantRecord
			durable      []domain.QuizResult
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			if participants, err = s.registry.Participants(gctx, quizID); err != nil {
				return registryErr("list participants", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			durable, err = repo.Results(gctx, quizID)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
		byUser := make(map[int64]domain.QuizResult, len(durable))
		for _, r := range durable {
			byUser[r.UserID] = r
		}

		now := s.now()
		for i := range participants {
			rec := participants[i]
			current, exists := byUser[rec.UserID]
			delete(byUser, rec.UserID)
			if !exists {
				current = domain.QuizResult{QuizID: quizID, UserID: rec.UserID, Status: domain.ResultInProgress, CreatedAt: now}
			}
			next, changed := Reconcile(&rec, current, quiz, now)
			switch {
			case !exists:
				if err := repo.InsertResult(ctx, &next); err != nil {
					return fmt.Errorf("insert result for user %d: %w", rec.UserID, err)
				}
			case changed:
				if err := s.writeResult(ctx, repo, &next); err != nil {
					return fmt.Errorf("finalize result for user %d: %w", rec.UserID, err)
				}
			}
			results = append(results, next)
		}
		// durable rows whose live state is gone
		for _, current := range durable {
			if _, orphan := byUser[current.UserID]; !orphan {
				continue
			}
			next, changed := Reconcile(nil, current, quiz, now)
			if changed {
				if err := s.writeResult(ctx, repo, &next); err != nil {
					return fmt.Errorf("terminate result for user %d: %w", current.UserID, err)
				}
			}
			results = append(results, next)
		}

		quiz.Status = domain.QuizFinished
		if quiz.EndTime == nil || now.Before(*quiz.EndTime) {
			quiz.EndTime = &now
		}
		quiz.UpdatedAt = now
		return repo.UpdateQuiz(ctx, &quiz)
	})
	if err != nil {
		return EndResult{}, err
	}

	s.completion.Cancel(quizID)
	s.purge(ctx, quizID)
	metrics.QuizzesFinalized.WithLabelValues(trigger).Inc()

	lb := domain.Leaderboard{QuizID: quizID, Entries: rankResults(results), UpdatedAt: s.now()}
	s.broadcast.Broadcast(domain.QuizRoom(quizID), domain.EventQuizEnded, map[string]any{
		"quiz_id":     quizID,
		"trigger":     trigger,
		"leaderboard": lb,
	})
	s.log.Info("quiz finalized",
		zap.Int64("quiz_id", quizID),
		zap.String("trigger", trigger),
		zap.Int("results", len(results)))
	return EndResult{Quiz: quiz, Results: results, Leaderboard: lb}, nil
}

// writeResult applies the optimistic update of res. When the version moved
// the row is re-read; a result finalized meanwhile wins, anything else is
// forced once and verified.
func (s *QuizService) writeResult(ctx context.Context, repo Repository, res *domain.QuizResult) error {
	err := repo.UpdateResult(ctx, res)
	if !errors.Is(err, domain.ErrStaleWrite) {
		return err
	}
	current, err := repo.Result(ctx, res.QuizID, res.UserID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		*res = current
		return nil
	}
	s.log.Warn("stale result write, forcing",
		zap.Int64("quiz_id", res.QuizID),
		zap.Int64("user_id", res.UserID),
		zap.Int("version", res.Version),
		zap.Int("stored_version", current.Version))

	res.Version = current.Version
	if err := repo.ForceUpdateResult(ctx, res); err != nil {
		return err
	}
	verified, err := repo.Result(ctx, res.QuizID, res.UserID)
	if err != nil {
		return err
	}
	if verified.Status != res.Status || verified.Score != res.Score {
		return fmt.Errorf("result %d did not persist status %s", verified.ID, res.Status)
	}
	*res = verified
	return nil
}

// FinishResult is the outcome of ending one participant's session.
type FinishResult struct {
	Result     domain.QuizResult `json:"result"`
	Idempotent bool              `json:"idempotent"`
}

// FinishSession finalizes a single participant by session id under a row
// lock. A second call returns the stored result with Idempotent set.
func (s *QuizService) FinishSession(ctx context.Context, sessionID string) (FinishResult, error) {
	session, err := s.cache.Session(ctx, sessionID)
	if err != nil {
		return FinishResult{}, err
	}
	quiz, err := s.repo.Quiz(ctx, session.QuizID)
	if err != nil {
		return FinishResult{}, err
	}
	if quiz.Status == domain.QuizPending {
		return FinishResult{}, domain.ErrQuizNotActive
	}
	rec, found, err := s.registry.Participant(ctx, session.QuizID, session.UserID)
	if err != nil {
		return FinishResult{}, registryErr("read participant", err)
	}
	var live *domain.ParticipantRecord
	if found {
		live = &rec
	}

	var out FinishResult
	err = s.repo.RunInTx(ctx, func(ctx context.Context, repo Repository) error {
		now := s.now()
		current, err := repo.LockResult(ctx, session.QuizID, session.UserID)
		exists := err == nil
		switch {
		case exists:
		case isNotFound(err):
			current = domain.QuizResult{
				QuizID:    session.QuizID,
				UserID:    session.UserID,
				Status:    domain.ResultInProgress,
				CreatedAt: session.StartTime,
			}
		default:
			return err
		}
		if current.Status.Terminal() {
			out = FinishResult{Result: current, Idempotent: true}
			return nil
		}
		next, _ := Reconcile(live, current, quiz, now)
		if !exists {
			if err := repo.InsertResult(ctx, &next); err != nil {
				return err
			}
		} else if err := s.writeResult(ctx, repo, &next); err != nil {
			return err
		}
		out = FinishResult{Result: next}
		return nil
	})
	if err != nil {
		return FinishResult{}, err
	}
	if out.Idempotent {
		return out, nil
	}

	now := s.now()
	if found {
		if _, err := s.registry.UpdateParticipant(ctx, session.QuizID, session.UserID, func(r *domain.ParticipantRecord) error {
			r.Status = domain.ParticipantCompleted
			r.LastAccessed = now
			return nil
		}); err != nil {
			s.log.Warn("registry complete participant", zap.Int64("quiz_id", session.QuizID), zap.Int64("user_id", session.UserID), zap.Error(err))
		}
	}
	session.Status = out.Result.Status
	if err := s.cache.SaveSession(ctx, session, sessionTTL(quiz, now)); err != nil {
		s.log.Warn("save session", zap.String("session_id", session.ID), zap.Error(err))
	}
	s.broadcast.Broadcast(domain.TeachersRoom(session.QuizID), domain.EventTeacherUpdates, map[string]any{
		"user_id": session.UserID,
		"status":  out.Result.Status,
		"score":   out.Result.Score,
	})
	if quiz.Status == domain.QuizActive {
		if participants, err := s.registry.Participants(ctx, session.QuizID); err == nil {
			s.scheduleEndIfCompleted(session.QuizID, participants)
		}
	}
	return out, nil
}

// ExpireOverdue ends every active quiz past its end time and returns how many
// it ended. Quizzes ended concurrently by someone else are skipped.
func (s *QuizService) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := s.repo.OverdueQuizzes(ctx, s.now())
	if err != nil {
		return 0, err
	}
	ended := 0
	var errs []error
	for _, id := range ids {
		_, err := s.EndQuiz(ctx, id, TriggerExpired)
		switch {
		case err == nil:
			ended++
		case errors.Is(err, domain.ErrQuizNotActive):
		default:
			errs = append(errs, fmt.Errorf("quiz %d: %w", id, err))
		}
	}
	return ended, errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
