package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"quizhub-service/internal/app"
	"quizhub-service/internal/config"
	"quizhub-service/internal/logging"
	transport "quizhub-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	hub := transport.NewHub(log.Named("hub"))
	broadcast := app.MultiBroadcaster{hub}
	publisher, err := dialPublisher(cfg, log)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
		broadcast = append(broadcast, publisher)
	}

	svc, err := buildServices(ctx, cfg, broadcast, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	sweeper, err := app.NewSweeper(svc.quizzes, cfg.Quiz.SweepSchedule, log.Named("sweeper"))
	if err != nil {
		return err
	}
	sweeper.Start()

	router := transport.NewRouter(transport.RouterConfig{
		Quizzes: svc.quizzes,
		Grades:  svc.grades,
		WS: transport.NewWSHandler(svc.quizzes, hub, log.Named("ws"), transport.WSOptions{
			AnswerRate:  rate.Limit(cfg.Quiz.AnswerRate),
			AnswerBurst: cfg.Quiz.AnswerBurst,
		}),
		Logger:      log.Named("http"),
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sweeper.Stop(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
