package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quizhub-service/internal/domain"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindConflict, domain.KindInsufficientData:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, log *zap.Logger, message string, err error) {
	status := statusOf(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
		detail = "internal server error"
	}
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Error: detail})
}

func abort(c *gin.Context, status int, message, detail string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Error: detail})
}

func idParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalid(name, "must be an integer")
	}
	return n, nil
}
