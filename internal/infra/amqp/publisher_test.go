package amqp

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"quizhub-service/internal/domain"
)

type recordingChannel struct {
	keys []string
	msgs []amqp.Publishing
	err  error
}

func (c *recordingChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if exchange != "quizhub.events" {
		return errors.New("unexpected exchange " + exchange)
	}
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, key)
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestPublisherMirrorsLifecycleEvents(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisher(ch, "quizhub.events", zap.NewNop())

	p.Broadcast(domain.QuizRoom(4), domain.EventQuizStarted, map[string]any{"quiz_id": 4})
	p.Broadcast(domain.UserRoom(4, 9), domain.EventUserPositionUpdate, map[string]any{"position": 1})
	p.Broadcast(domain.QuizRoom(4), domain.EventQuizEnded, map[string]any{"quiz_id": 4})

	if len(ch.keys) != 2 {
		t.Fatalf("expected 2 lifecycle events published, got %v", ch.keys)
	}
	if ch.keys[0] != "quiz.quizStarted" || ch.keys[1] != "quiz.quizEnded" {
		t.Fatalf("unexpected routing keys %v", ch.keys)
	}
	if ch.msgs[0].ContentType != "application/json" {
		t.Fatalf("expected json content type, got %q", ch.msgs[0].ContentType)
	}

	var msg Message
	if err := json.Unmarshal(ch.msgs[0].Body, &msg); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if msg.Type != domain.EventQuizStarted || msg.Room != "quiz:4" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestPublisherSwallowsFailures(t *testing.T) {
	ch := &recordingChannel{err: errors.New("channel closed")}
	p := NewPublisher(ch, "quizhub.events", nil)

	p.Broadcast(domain.LobbyRoom, domain.EventQuizCreated, map[string]any{"quiz_id": 1})
	p.Broadcast(domain.LobbyRoom, domain.EventQuizCreated, func() {})
	p.Close()
}
