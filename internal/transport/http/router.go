package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quizhub-service/internal/app"
	"quizhub-service/internal/grading"
	"quizhub-service/internal/metrics"
)

// Caller identity headers. Authentication happens upstream.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const (
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

const (
	ctxUserID   = "quizhub.user_id"
	ctxUserRole = "quizhub.user_role"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Quizzes     *app.QuizService
	Grades      *grading.Service
	WS          *WSHandler
	Logger      *zap.Logger
	CORSOrigins []string
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	metrics.Init()
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log), metrics.Middleware())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Origin", HeaderUserID, HeaderUserRole},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if origins[0] != "*" {
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", metrics.Handler())
	if cfg.WS != nil {
		r.GET("/ws", gin.WrapF(cfg.WS.ServeWS))
	}

	api := r.Group("/api", identity())
	teacher := requireRole(RoleTeacher, RoleAdmin)

	quizzes := &quizHandler{svc: cfg.Quizzes, log: log}
	api.GET("/quizzes", quizzes.list)
	api.POST("/quizzes", teacher, quizzes.create)
	api.GET("/quizzes/:id", quizzes.get)
	api.POST("/quizzes/:id/start", teacher, quizzes.start)
	api.POST("/quizzes/:id/next", teacher, quizzes.next)
	api.POST("/quizzes/:id/end", teacher, quizzes.end)
	api.POST("/quizzes/:id/shuffle-questions", teacher, quizzes.shuffle)
	api.POST("/quizzes/:id/join", quizzes.join)
	api.POST("/quizzes/:id/leave", quizzes.leave)
	api.GET("/quizzes/:id/leaderboard", quizzes.leaderboard)
	api.POST("/answers/realtime", quizzes.answer)
	api.POST("/sessions/:sessionId/end", quizzes.finishSession)

	if cfg.Grades != nil {
		grades := &gradeHandler{svc: cfg.Grades, log: log}
		api.GET("/courses/:id/grade-columns", grades.columns)
		api.POST("/courses/:id/grade-columns", teacher, grades.createColumn)
		api.PUT("/grade-columns/:id", teacher, grades.updateColumn)
		api.DELETE("/grade-columns/:id", teacher, grades.deleteColumn)
		api.PUT("/grade-columns/:id/quizzes", teacher, grades.assignQuizzes)
		api.GET("/grade-columns/:id/average/:userId", grades.columnAverage)
		api.GET("/courses/:id/process-average/:userId", grades.processAverage)
		api.GET("/courses/:id/grades/:userId", grades.grade)
		api.POST("/courses/:id/grades/:userId", teacher, grades.computeGrade)
		api.GET("/courses/:id/grades/:userId/history", grades.history)
	}
	return r
}

// identity reads the caller headers into the gin context.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader(HeaderUserID); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				abort(c, http.StatusBadRequest, "invalid caller", HeaderUserID+" must be a positive integer")
				return
			}
			c.Set(ctxUserID, id)
		}
		role := c.GetHeader(HeaderUserRole)
		if role == "" {
			role = RoleStudent
		}
		c.Set(ctxUserRole, role)
		c.Next()
	}
}

func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxUserRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "forbidden", "role "+role+" may not perform this action")
	}
}

// callerID returns the authenticated user id, zero when absent.
func callerID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
