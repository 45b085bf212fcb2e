package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quizhub-service/internal/domain"
)

// QuestionBank is an in-memory app.QuestionBank.
type QuestionBank struct {
	mu        sync.RWMutex
	questions map[int64]domain.Question
	nextID    int64
}

// NewQuestionBank seeds the bank. Seeded questions keep their ids.
func NewQuestionBank(questions ...domain.Question) *QuestionBank {
	b := &QuestionBank{questions: make(map[int64]domain.Question)}
	for i := range questions {
		q := questions[i]
		b.Add(&q)
	}
	return b
}

// Add stores q, assigning ids to the question and its answers where missing.
func (b *QuestionBank) Add(q *domain.Question) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q.ID == 0 {
		q.ID = b.allocate()
	} else if q.ID > b.nextID {
		b.nextID = q.ID
	}
	if q.Level == "" {
		q.Level = domain.LevelMedium
	}
	answers := make([]domain.Answer, len(q.Answers))
	for i, a := range q.Answers {
		if a.ID == 0 {
			a.ID = b.allocate()
		} else if a.ID > b.nextID {
			b.nextID = a.ID
		}
		a.QuestionID = q.ID
		answers[i] = a
	}
	q.Answers = answers
	b.questions[q.ID] = *q
}

func (b *QuestionBank) allocate() int64 {
	b.nextID++
	return b.nextID
}

func (b *QuestionBank) remove(ids []int64) {
	if len(ids) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.questions, id)
	}
}

func (b *QuestionBank) QuestionPool(_ context.Context, loIDs []int64, typeID *int64) ([]domain.Question, error) {
	wanted := make(map[int64]bool, len(loIDs))
	for _, id := range loIDs {
		wanted[id] = true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.Question
	for _, q := range b.questions {
		if !wanted[q.LOID] {
			continue
		}
		if typeID != nil && q.TypeID != *typeID {
			continue
		}
		out = append(out, copyQuestion(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *QuestionBank) Questions(_ context.Context, ids []int64) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := b.questions[id]
		if !ok {
			return nil, fmt.Errorf("question %d: %w", id, domain.ErrQuestionNotFound)
		}
		out = append(out, copyQuestion(q))
	}
	return out, nil
}

func copyQuestion(q domain.Question) domain.Question {
	q.Answers = append([]domain.Answer(nil), q.Answers...)
	return q
}
