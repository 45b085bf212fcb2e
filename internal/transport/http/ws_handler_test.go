package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"quizhub-service/internal/domain"
)

func dialWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsQuery(quizID, userID int64, extra string) string {
	q := "quizId=" + strconv.FormatInt(quizID, 10) + "&userId=" + strconv.FormatInt(userID, 10)
	if extra != "" {
		q += "&" + extra
	}
	return q
}

func TestWebSocketAnswerFlow(t *testing.T) {
	s := newTestServer(t, WSOptions{})
	server := httptest.NewServer(s.router)
	defer server.Close()
	quiz := s.createQuiz(t)

	teacher := dialWS(t, server, wsQuery(quiz.ID, 1, "role=teacher"))
	readNext(teacher, t, "connected")

	student := dialWS(t, server, wsQuery(quiz.ID, 7, "pin="+quiz.PIN))
	_, payload := readNext(student, t, "joined")
	if payload["resumed"] != false {
		t.Fatalf("expected fresh join, got %v", payload)
	}

	_, payload = readNext(teacher, t, domain.EventNewParticipant)
	if payload["user_id"] != float64(7) {
		t.Fatalf("expected newParticipant for user 7, got %v", payload)
	}

	if _, err := s.svc.StartQuiz(context.Background(), quiz.ID); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionId": 101, "answerId": 1011},
	}
	if err := student.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	_, payload = readNext(student, t, "answerResult")
	if payload["correct"] != true {
		t.Fatalf("expected correct answer, got %v", payload)
	}
	if points, _ := payload["points"].(float64); points <= 0 {
		t.Fatalf("expected positive points, got %v", payload["points"])
	}
	readNext(teacher, t, domain.EventTeacherUpdates)

	if err := teacher.WriteJSON(answer); err != nil {
		t.Fatalf("write teacher answer: %v", err)
	}
	_, payload = readNext(teacher, t, "error")
	if payload["message"] != "observers cannot answer" {
		t.Fatalf("expected observer rejection, got %v", payload)
	}

	if err := student.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	readNext(student, t, "pong")
}

func TestWebSocketAnswerRateLimit(t *testing.T) {
	s := newTestServer(t, WSOptions{AnswerRate: rate.Every(time.Hour), AnswerBurst: 1})
	server := httptest.NewServer(s.router)
	defer server.Close()
	quiz := s.createQuiz(t)

	student := dialWS(t, server, wsQuery(quiz.ID, 7, "pin="+quiz.PIN))
	readNext(student, t, "joined")
	if _, err := s.svc.StartQuiz(context.Background(), quiz.ID); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	for _, qid := range []int64{101, 102} {
		msg := map[string]any{
			"type":    "answer",
			"payload": map[string]any{"questionId": qid, "answerId": qid*10 + 1},
		}
		if err := student.WriteJSON(msg); err != nil {
			t.Fatalf("write answer: %v", err)
		}
	}
	readNext(student, t, "answerResult")
	_, payload := readNext(student, t, "error")
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "slow down") {
		t.Fatalf("expected rate limit error, got %v", payload)
	}
}

func TestWebSocketRejectsWrongPin(t *testing.T) {
	s := newTestServer(t, WSOptions{})
	server := httptest.NewServer(s.router)
	defer server.Close()
	quiz := s.createQuiz(t)

	student := dialWS(t, server, wsQuery(quiz.ID, 7, "pin=000000"))
	_, payload := readNext(student, t, "error")
	if payload["message"] != domain.ErrInvalidPIN.Error() {
		t.Fatalf("expected invalid pin, got %v", payload)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	s := newTestServer(t, WSOptions{})
	server := httptest.NewServer(s.router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws?quizId=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHubLeaveDropsRooms(t *testing.T) {
	s := newTestServer(t, WSOptions{})
	server := httptest.NewServer(s.router)
	defer server.Close()

	conn := dialWS(t, server, wsQuery(42, 7, ""))
	readNext(conn, t, "connected")
	if n := s.hub.RoomSize(domain.QuizRoom(42)); n != 1 {
		t.Fatalf("expected one client in quiz room, got %d", n)
	}

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for s.hub.RoomSize(domain.QuizRoom(42)) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still registered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.hub.RoomSize(domain.UserRoom(42, 7)); n != 0 {
		t.Fatalf("expected user room dropped, got %d", n)
	}
}

// readNext returns the first frame of type expect, skipping unrelated events.
func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	for {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %s: %v", expect, err)
		}
		if msg.Type == expect {
			return msg.Type, msg.Payload
		}
	}
}
