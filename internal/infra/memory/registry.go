package memory

import (
	"context"
	"sort"
	"sync"

	"quizhub-service/internal/domain"
)

// Registry is an in-memory app.Registry.
type Registry struct {
	mu           sync.Mutex
	participants map[int64]map[int64]domain.ParticipantRecord
	current      map[int64]domain.CurrentQuestion
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[int64]map[int64]domain.ParticipantRecord),
		current:      make(map[int64]domain.CurrentQuestion),
	}
}

func (r *Registry) Participant(_ context.Context, quizID, userID int64) (domain.ParticipantRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.participants[quizID][userID]
	if !ok {
		return domain.ParticipantRecord{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (r *Registry) Participants(_ context.Context, quizID int64) ([]domain.ParticipantRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ParticipantRecord, 0, len(r.participants[quizID]))
	for _, rec := range r.participants[quizID] {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *Registry) SaveParticipant(_ context.Context, rec domain.ParticipantRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putLocked(rec)
	return nil
}

func (r *Registry) UpdateParticipant(_ context.Context, quizID, userID int64, fn func(rec *domain.ParticipantRecord) error) (domain.ParticipantRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.participants[quizID][userID]
	if !ok {
		return domain.ParticipantRecord{}, domain.ErrParticipantNotFound
	}
	rec := copyRecord(stored)
	if err := fn(&rec); err != nil {
		return domain.ParticipantRecord{}, err
	}
	r.putLocked(rec)
	return copyRecord(rec), nil
}

func (r *Registry) RemoveParticipant(_ context.Context, quizID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants[quizID], userID)
	return nil
}

func (r *Registry) SetCurrentQuestion(_ context.Context, quizID int64, cq domain.CurrentQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[quizID] = cq
	return nil
}

func (r *Registry) CurrentQuestion(_ context.Context, quizID int64) (domain.CurrentQuestion, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cq, ok := r.current[quizID]
	return cq, ok, nil
}

func (r *Registry) putLocked(rec domain.ParticipantRecord) {
	byUser, ok := r.participants[rec.QuizID]
	if !ok {
		byUser = make(map[int64]domain.ParticipantRecord)
		r.participants[rec.QuizID] = byUser
	}
	byUser[rec.UserID] = copyRecord(rec)
}

func copyRecord(rec domain.ParticipantRecord) domain.ParticipantRecord {
	answers := make(map[int64]domain.AnswerLog, len(rec.Answers))
	for k, v := range rec.Answers {
		answers[k] = v
	}
	rec.Answers = answers
	rec.History = append([]domain.AttemptLog(nil), rec.History...)
	return rec
}
