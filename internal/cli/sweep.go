package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizhub-service/internal/app"
	"quizhub-service/internal/config"
	"quizhub-service/internal/logging"
)

// NewSweepCmd force-ends overdue quizzes once and exits. Lifecycle events go
// to amqp only, since no websocket clients are attached.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "End every active quiz whose end time has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()

			var broadcast app.Broadcaster
			publisher, err := dialPublisher(cfg, log)
			if err != nil {
				return err
			}
			if publisher != nil {
				defer publisher.Close()
				broadcast = publisher
			}

			svc, err := buildServices(cmd.Context(), cfg, broadcast, log)
			if err != nil {
				return err
			}
			defer svc.Close()

			ended, err := svc.quizzes.ExpireOverdue(cmd.Context())
			log.Info("sweep finished", zap.Int("ended", ended))
			return err
		},
	}
}
