// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizhub_answers_total",
			Help: "Answers accepted by the realtime intake",
		},
		[]string{"correct"},
	)

	PointsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quizhub_points_awarded_total",
			Help: "Points awarded by the scoring engine",
		},
	)

	QuizzesFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizhub_quizzes_finalized_total",
			Help: "Quizzes moved to finished",
		},
		[]string{"trigger"},
	)

	SweepRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quizhub_sweep_runs_total",
			Help: "Expiry sweep executions",
		},
	)

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizhub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizhub_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. It is safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			AnswersTotal,
			PointsAwarded,
			QuizzesFinalized,
			SweepRuns,
			RequestCounter,
			RequestDuration,
		)
	})
}

// ObserveAnswer records one accepted answer.
func ObserveAnswer(correct bool, points int) {
	AnswersTotal.WithLabelValues(strconv.FormatBool(correct)).Inc()
	if points > 0 {
		PointsAwarded.Add(float64(points))
	}
}

func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
