package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizhub-service/internal/app"
	"quizhub-service/internal/config"
	"quizhub-service/internal/domain"
	"quizhub-service/internal/grading"
	"quizhub-service/internal/infra/amqp"
	"quizhub-service/internal/infra/memory"
	"quizhub-service/internal/infra/postgres"
	redisstore "quizhub-service/internal/infra/redis"
)

// services is the wired application graph plus the resources to release.
type services struct {
	quizzes *app.QuizService
	grades  *grading.Service
	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// quizConfig maps the quiz section onto the service timings.
func quizConfig(cfg config.Quiz) app.Config {
	def := app.DefaultConfig()
	return app.Config{
		FinalizeDelay:   config.TTLDuration(cfg.FinalizeDelay, def.FinalizeDelay),
		CompletionGrace: config.TTLDuration(cfg.CompletionGrace, def.CompletionGrace),
		MaxAttempts:     cfg.MaxAttempts,
	}
}

// buildServices selects postgres/redis adapters when configured and the
// in-memory adapters otherwise. broadcast may be nil.
func buildServices(ctx context.Context, cfg config.Config, broadcast app.Broadcaster, log *zap.Logger) (*services, error) {
	out := &services{}
	questionTTL := config.TTLDuration(cfg.Quiz.QuestionCacheTTL, time.Hour)
	listTTL := config.TTLDuration(cfg.Quiz.ListCacheTTL, 5*time.Minute)

	var (
		store  app.Repository
		bank   app.QuestionBank
		grades grading.Repository
		cache  app.SessionCache
		reg    app.Registry
	)

	if cfg.Postgres.URL != "" {
		db := openDB(cfg.Postgres.URL)
		out.closers = append(out.closers, func() { _ = db.Close() })
		if err := runMigrations(ctx, db, log); err != nil {
			out.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("connect question bank: %w", err)
		}
		out.closers = append(out.closers, pool.Close)
		store = postgres.NewStore(db)
		grades = postgres.NewGradeStore(db)
		bank = postgres.NewQuestionBank(pool)
	} else {
		log.Warn("postgres not configured, using in-memory store with sample questions")
		memBank := memory.NewQuestionBank(sampleQuestions()...)
		memStore := memory.NewStore(memBank)
		memStore.AddCourse(1, domain.DefaultGradeConfig)
		store, bank, grades = memStore, memBank, memStore.Grades()
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		out.closers = append(out.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			out.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		cache = redisstore.NewSessionCache(client, questionTTL, listTTL)
		reg = redisstore.NewRegistry(client, config.TTLDuration(cfg.Redis.TTL, 4*time.Hour))
	} else {
		log.Warn("redis not configured, using in-memory cache and registry")
		cache = memory.NewSessionCache(questionTTL, listTTL)
		reg = memory.NewRegistry()
	}

	out.quizzes = app.NewQuizService(app.Deps{
		Store:       store,
		Bank:        bank,
		Cache:       cache,
		Registry:    reg,
		Broadcaster: broadcast,
		Logger:      log.Named("quiz"),
		Config:      quizConfig(cfg.Quiz),
	})
	out.closers = append(out.closers, out.quizzes.Close)
	out.grades = grading.NewService(grades, log.Named("grading"))
	return out, nil
}

// dialPublisher connects the lifecycle event publisher when amqp is configured.
func dialPublisher(cfg config.Config, log *zap.Logger) (*amqp.Publisher, error) {
	if cfg.AMQP.URL == "" {
		return nil, nil
	}
	exchange := cfg.AMQP.Exchange
	if exchange == "" {
		exchange = "quiz.events"
	}
	return amqp.Dial(cfg.AMQP.URL, exchange, log.Named("amqp"))
}

// sampleQuestions seeds the in-memory bank: one learning outcome with a
// question per difficulty level.
func sampleQuestions() []domain.Question {
	mk := func(id int64, level domain.Level, text string, answers ...string) domain.Question {
		q := domain.Question{ID: id, LOID: 1, Level: level, Text: text}
		for i, a := range answers {
			q.Answers = append(q.Answers, domain.Answer{ID: id*10 + int64(i+1), QuestionID: id, Text: a, Correct: i == 0})
		}
		return q
	}
	return []domain.Question{
		mk(1, domain.LevelEasy, "What is 2 + 2?", "4", "3", "5"),
		mk(2, domain.LevelMedium, "What is 12 x 12?", "144", "124", "142"),
		mk(3, domain.LevelHard, "What is the derivative of x^3?", "3x^2", "x^2", "3x"),
	}
}
