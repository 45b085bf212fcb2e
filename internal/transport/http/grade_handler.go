package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quizhub-service/internal/domain"
	"quizhub-service/internal/grading"
)

type gradeHandler struct {
	svc *grading.Service
	log *zap.Logger
}

type columnRequest struct {
	Name             string  `json:"name"`
	WeightPercentage float64 `json:"weight_percentage"`
	Order            int     `json:"order"`
	Active           *bool   `json:"is_active"`
}

func (r columnRequest) input() grading.ColumnInput {
	return grading.ColumnInput{
		Name:             r.Name,
		WeightPercentage: r.WeightPercentage,
		Order:            r.Order,
		Active:           r.Active,
	}
}

func (h *gradeHandler) columns(c *gin.Context) {
	courseID, ok := h.param(c, "id")
	if !ok {
		return
	}
	cols, err := h.svc.Columns(c.Request.Context(), courseID)
	if err != nil {
		fail(c, h.log, "could not list grade columns", err)
		return
	}
	respond(c, http.StatusOK, "grade columns", cols)
}

func (h *gradeHandler) createColumn(c *gin.Context) {
	courseID, ok := h.param(c, "id")
	if !ok {
		return
	}
	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid grade column payload", err.Error())
		return
	}
	col, err := h.svc.CreateColumn(c.Request.Context(), courseID, req.input())
	if err != nil {
		fail(c, h.log, "could not create grade column", err)
		return
	}
	respond(c, http.StatusCreated, "grade column created", col)
}

func (h *gradeHandler) updateColumn(c *gin.Context) {
	columnID, ok := h.param(c, "id")
	if !ok {
		return
	}
	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid grade column payload", err.Error())
		return
	}
	col, err := h.svc.UpdateColumn(c.Request.Context(), columnID, req.input())
	if err != nil {
		fail(c, h.log, "could not update grade column", err)
		return
	}
	respond(c, http.StatusOK, "grade column updated", col)
}

func (h *gradeHandler) deleteColumn(c *gin.Context) {
	columnID, ok := h.param(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteColumn(c.Request.Context(), columnID); err != nil {
		fail(c, h.log, "could not delete grade column", err)
		return
	}
	respond(c, http.StatusOK, "grade column deleted", nil)
}

type assignRequest struct {
	Quizzes []struct {
		QuizID           int64    `json:"quiz_id"`
		WeightPercentage *float64 `json:"weight_percentage"`
	} `json:"quizzes"`
}

func (h *gradeHandler) assignQuizzes(c *gin.Context) {
	columnID, ok := h.param(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid assignment payload", err.Error())
		return
	}
	assignments := make([]domain.ColumnQuiz, 0, len(req.Quizzes))
	for _, q := range req.Quizzes {
		assignments = append(assignments, domain.ColumnQuiz{ColumnID: columnID, QuizID: q.QuizID, WeightPercentage: q.WeightPercentage})
	}
	out, err := h.svc.AssignQuizzes(c.Request.Context(), columnID, assignments)
	if err != nil {
		fail(c, h.log, "could not assign quizzes", err)
		return
	}
	respond(c, http.StatusOK, "quizzes assigned", out)
}

func (h *gradeHandler) columnAverage(c *gin.Context) {
	columnID, ok := h.param(c, "id")
	if !ok {
		return
	}
	userID, ok := h.param(c, "userId")
	if !ok {
		return
	}
	avg, err := h.svc.ComputeColumnAverage(c.Request.Context(), columnID, userID)
	if err != nil {
		fail(c, h.log, "could not compute column average", err)
		return
	}
	respond(c, http.StatusOK, "column average", gin.H{"column_id": columnID, "user_id": userID, "average": avg})
}

func (h *gradeHandler) processAverage(c *gin.Context) {
	courseID, ok := h.param(c, "id")
	if !ok {
		return
	}
	userID, ok := h.param(c, "userId")
	if !ok {
		return
	}
	out, err := h.svc.ComputeProcessAverage(c.Request.Context(), courseID, userID)
	if err != nil {
		fail(c, h.log, "could not compute process average", err)
		return
	}
	respond(c, http.StatusOK, "process average", out)
}

func (h *gradeHandler) grade(c *gin.Context) {
	courseID, ok := h.param(c, "id")
	if !ok {
		return
	}
	userID, ok := h.param(c, "userId")
	if !ok {
		return
	}
	res, err := h.svc.GradeResult(c.Request.Context(), courseID, userID)
	if err != nil {
		fail(c, h.log, "could not load grade", err)
		return
	}
	respond(c, http.StatusOK, "course grade", res)
}

type gradeRequest struct {
	FinalExamScore *float64 `json:"final_exam_score"`
}

func (h *gradeHandler) computeGrade(c *gin.Context) {
	courseID, ok := h.param(c, "id")
	if !ok {
		return
	}
	userID, ok := h.param(c, "userId")
	if !ok {
		return
	}
	var req gradeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "invalid grade payload", err.Error())
			return
		}
	}
	res, err := h.svc.ComputeFinalGrade(c.Request.Context(), courseID, userID, req.FinalExamScore)
	if err != nil {
		fail(c, h.log, "could not compute grade", err)
		return
	}
	respond(c, http.StatusOK, "course grade computed", res)
}

func (h *gradeHandler) history(c *gin.Context) {
	courseID, ok := h.param(c, "id")
	if !ok {
		return
	}
	userID, ok := h.param(c, "userId")
	if !ok {
		return
	}
	out, err := h.svc.History(c.Request.Context(), courseID, userID)
	if err != nil {
		fail(c, h.log, "could not load grade history", err)
		return
	}
	respond(c, http.StatusOK, "grade history", out)
}

func (h *gradeHandler) param(c *gin.Context, name string) (int64, bool) {
	id, err := idParam(c, name)
	if err != nil {
		fail(c, h.log, "invalid "+name, err)
		return 0, false
	}
	return id, true
}
