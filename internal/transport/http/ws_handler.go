package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Participant operations used by the websocket endpoint.
type Participant interface {
	JoinQuiz(ctx context.Context, in app.JoinInput) (app.JoinResult, error)
	SubmitAnswer(ctx context.Context, in app.AnswerInput) (app.AnswerResult, error)
	LeaveQuiz(ctx context.Context, quizID, userID int64) error
}

// WSOptions tunes the per-connection answer limiter.
type WSOptions struct {
	AnswerRate  rate.Limit
	AnswerBurst int
}

type WSHandler struct {
	service  Participant
	hub      *Hub
	log      *zap.Logger
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSHandler(service Participant, hub *Hub, log *zap.Logger, opts WSOptions) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.AnswerRate <= 0 {
		opts.AnswerRate = 5
	}
	if opts.AnswerBurst <= 0 {
		opts.AnswerBurst = 10
	}
	return &WSHandler{
		service: service,
		hub:     hub,
		log:     log,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int64      `json:"questionId"`
	AnswerID   int64      `json:"answerId"`
	StartTime  *time.Time `json:"startTime,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and subscribes the connection to its quiz
// rooms. Students may pass pin to join in the same step.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quizID, err1 := strconv.ParseInt(q.Get("quizId"), 10, 64)
	userID, err2 := strconv.ParseInt(q.Get("userId"), 10, 64)
	if err1 != nil || err2 != nil || quizID <= 0 || userID <= 0 {
		http.Error(w, "missing or invalid quizId or userId", http.StatusBadRequest)
		return
	}
	role := q.Get("role")
	if role == "" {
		role = RoleStudent
	}
	teacher := role == RoleTeacher || role == RoleAdmin

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	c := newClient(sendBuffer)
	rooms := []string{domain.QuizRoom(quizID)}
	if teacher {
		rooms = append(rooms, domain.TeachersRoom(quizID))
	} else {
		rooms = append(rooms, domain.StudentsRoom(quizID), domain.UserRoom(quizID, userID))
	}
	h.hub.join(c, rooms...)

	writerDone := make(chan struct{})
	go h.writePump(conn, c, writerDone)

	if pin := q.Get("pin"); pin != "" && !teacher {
		joined, err := h.service.JoinQuiz(ctx, app.JoinInput{QuizID: quizID, UserID: userID, PIN: pin})
		if err != nil {
			h.reply(c, "error", errorPayload{Message: err.Error()})
		} else {
			h.reply(c, "joined", joined)
		}
	} else {
		h.reply(c, "connected", map[string]any{"quiz_id": quizID, "user_id": userID, "role": role})
	}

	limiter := rate.NewLimiter(h.opts.AnswerRate, h.opts.AnswerBurst)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("ws read", zap.Int64("quiz_id", quizID), zap.Int64("user_id", userID), zap.Error(err))
			}
			break
		}
		switch inbound.Type {
		case "answer":
			if teacher {
				h.reply(c, "error", errorPayload{Message: "observers cannot answer"})
				continue
			}
			if !limiter.Allow() {
				h.reply(c, "error", errorPayload{Message: "too many answers, slow down"})
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.reply(c, "error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			res, err := h.service.SubmitAnswer(ctx, app.AnswerInput{
				QuizID:     quizID,
				QuestionID: payload.QuestionID,
				AnswerID:   payload.AnswerID,
				UserID:     userID,
				StartTime:  payload.StartTime,
			})
			if err != nil {
				h.reply(c, "error", errorPayload{Message: err.Error()})
				continue
			}
			h.reply(c, "answerResult", res)
		case "leave":
			if err := h.service.LeaveQuiz(ctx, quizID, userID); err != nil {
				h.reply(c, "error", errorPayload{Message: err.Error()})
				continue
			}
			h.reply(c, "left", map[string]any{"quiz_id": quizID})
		case "ping":
			h.reply(c, "pong", nil)
		default:
			h.reply(c, "error", errorPayload{Message: "unsupported message type"})
		}
	}

	h.hub.leave(c)
	<-writerDone
}

// reply queues a frame for this connection only.
func (h *WSHandler) reply(c *client, typ string, payload any) {
	msg, err := json.Marshal(outboundMessage{Type: typ, Payload: payload})
	if err != nil {
		h.log.Warn("encode reply", zap.String("type", typ), zap.Error(err))
		return
	}
	select {
	case c.send <- msg:
	default:
		h.log.Debug("dropping reply for slow client", zap.String("type", typ))
	}
}

// writePump is the only writer of conn.
func (h *WSHandler) writePump(conn *websocket.Conn, c *client, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("ws write", zap.Error(err))
				_ = conn.Close()
				drain(c.send)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				drain(c.send)
				return
			}
		}
	}
}

// drain consumes until the hub closes the channel.
func drain(ch <-chan []byte) {
	for range ch {
	}
}
