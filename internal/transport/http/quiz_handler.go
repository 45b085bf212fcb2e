package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
)

type quizHandler struct {
	svc *app.QuizService
	log *zap.Logger
}

func (h *quizHandler) create(c *gin.Context) {
	var in app.CreateQuizInput
	if err := c.ShouldBindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, "invalid quiz payload", err.Error())
		return
	}
	quiz, err := h.svc.CreateQuiz(c.Request.Context(), in)
	if err != nil {
		fail(c, h.log, "could not create quiz", err)
		return
	}
	respond(c, http.StatusCreated, "quiz created", quiz)
}

func (h *quizHandler) list(c *gin.Context) {
	page, err := intQuery(c, "page")
	if err != nil {
		fail(c, h.log, "invalid filter", err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		fail(c, h.log, "invalid filter", err)
		return
	}
	filter := domain.QuizFilter{
		Page:   page,
		Limit:  limit,
		Status: domain.QuizStatus(c.Query("status")),
		Search: c.Query("search"),
		Sort:   c.Query("sort"),
	}
	if raw := c.Query("course_id"); raw != "" {
		if filter.CourseID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			fail(c, h.log, "invalid filter", domain.Invalid("course_id", "must be an integer"))
			return
		}
	}
	out, err := h.svc.ListQuizzes(c.Request.Context(), filter)
	if err != nil {
		fail(c, h.log, "could not list quizzes", err)
		return
	}
	respond(c, http.StatusOK, "quizzes", out)
}

func (h *quizHandler) get(c *gin.Context) {
	id, ok := h.quizID(c)
	if !ok {
		return
	}
	view, err := h.svc.GetQuiz(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, "could not load quiz", err)
		return
	}
	respond(c, http.StatusOK, "quiz", view)
}

func (h *quizHandler) start(c *gin.Context) {
	id, ok := h.quizID(c)
	if !ok {
		return
	}
	out, err := h.svc.StartQuiz(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, "could not start quiz", err)
		return
	}
	respond(c, http.StatusOK, "quiz started", out)
}

func (h *quizHandler) next(c *gin.Context) {
	id, ok := h.quizID(c)
	if !ok {
		return
	}
	out, err := h.svc.NextQuestion(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, "could not advance quiz", err)
		return
	}
	respond(c, http.StatusOK, "quiz advanced", out)
}

func (h *quizHandler) end(c *gin.Context) {
	id, ok := h.quizID(c)
	if !ok {
		return
	}
	out, err := h.svc.EndQuiz(c.Request.Context(), id, app.TriggerManual)
	if err != nil {
		fail(c, h.log, "could not end quiz", err)
		return
	}
	respond(c, http.StatusOK, "quiz ended", out)
}

func (h *quizHandler) shuffle(c *gin.Context) {
	id, ok := h.quizID(c)
	if !ok {
		return
	}
	quiz, err := h.svc.ShuffleQuestions(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, "could not shuffle questions", err)
		return
	}
	respond(c, http.StatusOK, "questions shuffled", quiz)
}

type joinRequest struct {
	PIN    string `json:"pin"`
	UserID int64  `json:"user_id"`
}

func (h *quizHandler) join(c *gin.Context) {
	id, ok := h.quizID(c)
	if !ok {
		return
	}
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid join payload", err.Error())
		return
	}
	userID, ok := h.userID(c, req.UserID)
	if !ok {
		return
	}
	out, err := h.svc.JoinQuiz(c.Request.Context(), app.JoinInput{QuizID: id, UserID: userID, PIN: req.PIN})
	if err != nil {
		fail(c, h.log, "could not join quiz", err)
		return
	}
	respond(c, http.StatusOK, "joined quiz", out)
}

func (h *quizHandler) leave(c *gin.Context) {
	id, ok := h.quizID(c)
	if !ok {
		return
	}
	userID, ok := h.userID(c, 0)
	if !ok {
		return
	}
	if err := h.svc.LeaveQuiz(c.Request.Context(), id, userID); err != nil {
		fail(c, h.log, "could not leave quiz", err)
		return
	}
	respond(c, http.StatusOK, "left quiz", nil)
}

func (h *quizHandler) leaderboard(c *gin.Context) {
	id, ok := h.quizID(c)
	if !ok {
		return
	}
	lb, err := h.svc.Leaderboard(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, "could not load leaderboard", err)
		return
	}
	respond(c, http.StatusOK, "leaderboard", lb)
}

type answerRequest struct {
	QuizID     int64      `json:"quizId" binding:"required"`
	QuestionID int64      `json:"questionId" binding:"required"`
	AnswerID   int64      `json:"answerId" binding:"required"`
	UserID     int64      `json:"userId"`
	StartTime  *time.Time `json:"startTime"`
}

func (h *quizHandler) answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid answer payload", err.Error())
		return
	}
	userID, ok := h.userID(c, req.UserID)
	if !ok {
		return
	}
	out, err := h.svc.SubmitAnswer(c.Request.Context(), app.AnswerInput{
		QuizID:     req.QuizID,
		QuestionID: req.QuestionID,
		AnswerID:   req.AnswerID,
		UserID:     userID,
		StartTime:  req.StartTime,
	})
	if err != nil {
		fail(c, h.log, "could not submit answer", err)
		return
	}
	respond(c, http.StatusOK, "answer recorded", out)
}

func (h *quizHandler) finishSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	out, err := h.svc.FinishSession(c.Request.Context(), sessionID)
	if err != nil {
		fail(c, h.log, "could not end session", err)
		return
	}
	message := "session ended"
	if out.Idempotent {
		message = "session already ended"
	}
	respond(c, http.StatusOK, message, out)
}

func (h *quizHandler) quizID(c *gin.Context) (int64, bool) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, h.log, "invalid quiz id", err)
		return 0, false
	}
	return id, true
}

// userID prefers the authenticated caller over a body-supplied id.
func (h *quizHandler) userID(c *gin.Context, fallback int64) (int64, bool) {
	if id := callerID(c); id > 0 {
		return id, true
	}
	if fallback > 0 {
		return fallback, true
	}
	abort(c, http.StatusUnauthorized, "unknown caller", HeaderUserID+" header is required")
	return 0, false
}
