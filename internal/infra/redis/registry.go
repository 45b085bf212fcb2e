package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quizhub-service/internal/domain"
)

// maxWatchRetries bounds optimistic retries of a contended participant update.
const maxWatchRetries = 100

// ErrContended is returned when a participant record kept changing under WATCH.
var ErrContended = errors.New("participant record contended")

// Registry is the Redis realtime participant registry.
// Keys:
//   - quiz_sessions:{quizId}:participants            set of user ids
//   - quiz_sessions:{quizId}:participants:{userId}   participant record JSON
//   - quiz_sessions:{quizId}:current_question        question start marker JSON
type Registry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRegistry keeps every key for ttl after its last write; zero keeps them forever.
func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{client: client, ttl: ttl}
}

func (r *Registry) Participant(ctx context.Context, quizID, userID int64) (domain.ParticipantRecord, bool, error) {
	raw, err := r.client.Get(ctx, participantKey(quizID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ParticipantRecord{}, false, nil
	}
	if err != nil {
		return domain.ParticipantRecord{}, false, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return domain.ParticipantRecord{}, false, err
	}
	return rec, true, nil
}

// Participants returns every registered participant ordered by user id.
// Ids whose record expired are skipped.
func (r *Registry) Participants(ctx context.Context, quizID int64) ([]domain.ParticipantRecord, error) {
	members, err := r.client.SMembers(ctx, participantsKey(quizID)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []domain.ParticipantRecord{}, nil
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		userID, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, participantKey(quizID, userID))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ParticipantRecord, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keys[i], err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *Registry) SaveParticipant(ctx context.Context, rec domain.ParticipantRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode participant: %w", err)
	}
	index := participantsKey(rec.QuizID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, participantKey(rec.QuizID, rec.UserID), raw, r.ttl)
		pipe.SAdd(ctx, index, strconv.FormatInt(rec.UserID, 10))
		if r.ttl > 0 {
			pipe.Expire(ctx, index, r.ttl)
		}
		return nil
	})
	return err
}

// UpdateParticipant runs fn inside WATCH/MULTI on the participant key and
// retries when another writer got there first. fn may run more than once.
func (r *Registry) UpdateParticipant(ctx context.Context, quizID, userID int64, fn func(rec *domain.ParticipantRecord) error) (domain.ParticipantRecord, error) {
	key := participantKey(quizID, userID)
	var out domain.ParticipantRecord
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode participant: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.ParticipantRecord{}, err
		}
		return out, nil
	}
	return domain.ParticipantRecord{}, ErrContended
}

func (r *Registry) RemoveParticipant(ctx context.Context, quizID, userID int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, participantKey(quizID, userID))
		pipe.SRem(ctx, participantsKey(quizID), strconv.FormatInt(userID, 10))
		return nil
	})
	return err
}

func (r *Registry) SetCurrentQuestion(ctx context.Context, quizID int64, cq domain.CurrentQuestion) error {
	raw, err := json.Marshal(cq)
	if err != nil {
		return fmt.Errorf("encode current question: %w", err)
	}
	return r.client.Set(ctx, currentQuestionKey(quizID), raw, r.ttl).Err()
}

func (r *Registry) CurrentQuestion(ctx context.Context, quizID int64) (domain.CurrentQuestion, bool, error) {
	raw, err := r.client.Get(ctx, currentQuestionKey(quizID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CurrentQuestion{}, false, nil
	}
	if err != nil {
		return domain.CurrentQuestion{}, false, err
	}
	var cq domain.CurrentQuestion
	if err := json.Unmarshal(raw, &cq); err != nil {
		return domain.CurrentQuestion{}, false, fmt.Errorf("decode current question: %w", err)
	}
	return cq, true, nil
}

func decodeRecord(raw []byte) (domain.ParticipantRecord, error) {
	var rec domain.ParticipantRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.ParticipantRecord{}, fmt.Errorf("decode participant: %w", err)
	}
	if rec.Answers == nil {
		rec.Answers = map[int64]domain.AnswerLog{}
	}
	return rec, nil
}
