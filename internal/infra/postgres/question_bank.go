package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizhub-service/internal/domain"
)

const questionColumns = `
SELECT q.id, q.lo_id, q.level, q.type_id, q.question_text, a.id, a.answer_text, a.is_correct
FROM questions q
LEFT JOIN answers a ON a.question_id = q.id`

// QuestionBank reads the question bank straight from Postgres.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) QuestionPool(ctx context.Context, loIDs []int64, typeID *int64) ([]domain.Question, error) {
	if len(loIDs) == 0 {
		return []domain.Question{}, nil
	}
	query := questionColumns + ` WHERE q.lo_id = ANY($1)`
	args := []interface{}{loIDs}
	if typeID != nil {
		query += ` AND q.type_id = $2`
		args = append(args, *typeID)
	}
	query += ` ORDER BY q.id, a.id`

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	qs, _, err := scanQuestions(rows)
	return qs, err
}

func (b *QuestionBank) Questions(ctx context.Context, ids []int64) ([]domain.Question, error) {
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	rows, err := b.pool.Query(ctx, questionColumns+` WHERE q.id = ANY($1) ORDER BY q.id, a.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	_, byID, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("question %d: %w", id, domain.ErrQuestionNotFound)
		}
		out = append(out, *q)
	}
	return out, nil
}

// scanQuestions folds joined question/answer rows, which arrive ordered by question id.
func scanQuestions(rows pgx.Rows) ([]domain.Question, map[int64]*domain.Question, error) {
	defer rows.Close()
	var order []int64
	byID := make(map[int64]*domain.Question)
	for rows.Next() {
		var (
			q        domain.Question
			level    string
			answerID *int64
			text     *string
			correct  *bool
		)
		if err := rows.Scan(&q.ID, &q.LOID, &level, &q.TypeID, &q.Text, &answerID, &text, &correct); err != nil {
			return nil, nil, fmt.Errorf("scan question: %w", err)
		}
		cur, ok := byID[q.ID]
		if !ok {
			q.Level = domain.Level(level)
			q.Answers = []domain.Answer{}
			cur = &q
			byID[q.ID] = cur
			order = append(order, q.ID)
		}
		if answerID != nil {
			a := domain.Answer{ID: *answerID, QuestionID: cur.ID}
			if text != nil {
				a.Text = *text
			}
			if correct != nil {
				a.Correct = *correct
			}
			cur.Answers = append(cur.Answers, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read questions: %w", err)
	}
	out := make([]domain.Question, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, byID, nil
}
