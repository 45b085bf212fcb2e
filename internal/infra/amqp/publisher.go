package amqp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"quizhub-service/internal/domain"
)

// RoutingPrefix prefixes the event name to form the routing key.
const RoutingPrefix = "quiz."

// lifecycle lists the events mirrored to the exchange. Per-answer traffic
// stays on the websocket hub.
var lifecycle = map[string]bool{
	domain.EventQuizCreated:     true,
	domain.EventQuizStarted:     true,
	domain.EventQuizEnded:       true,
	domain.EventNewParticipant:  true,
	domain.EventParticipantLeft: true,
}

// Channel is the publishing half of an amqp.Channel.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Message is the JSON body of a published event.
type Message struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher mirrors lifecycle events to a topic exchange. It implements
// app.Broadcaster; failures are logged and dropped.
type Publisher struct {
	mu       sync.Mutex
	ch       Channel
	closers  []func() error
	exchange string
	log      *zap.Logger
	now      func() time.Time
}

// Dial connects to url and declares a durable topic exchange.
func Dial(url, exchange string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p := NewPublisher(ch, exchange, log)
	p.closers = []func() error{ch.Close, conn.Close}
	return p, nil
}

func NewPublisher(ch Channel, exchange string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{ch: ch, exchange: exchange, log: log, now: time.Now}
}

func (p *Publisher) Broadcast(room, event string, payload any) {
	if !lifecycle[event] {
		return
	}
	body, err := json.Marshal(Message{Type: event, Room: room, Payload: payload, Timestamp: p.now()})
	if err != nil {
		p.log.Warn("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(p.exchange, RoutingPrefix+event, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now(),
		Body:         body,
	})
	if err != nil {
		p.log.Warn("publish event", zap.String("event", event), zap.String("room", room), zap.Error(err))
		return
	}
	p.log.Debug("event published", zap.String("event", event), zap.String("room", room))
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.closers {
		_ = c()
	}
	p.closers = nil
}
