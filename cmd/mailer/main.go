package main

import (
	"context"
	"os/signal"
	"syscall"

	"lms/pkg/config"
	"lms/pkg/logger"
	"lms/pkg/notify"

	"go.uber.org/zap"
)

// mailer drains the notification topic written by the library service
// (NOTIFY_CHANNEL=kafka) and delivers each message over SMTP.
func main() {
	cfg := config.Load()

	appLogger := logger.New("mailer", cfg.Environment)
	defer appLogger.Sync()

	appLogger.Info("Starting mailer",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopicNotifications),
		zap.String("group_id", cfg.KafkaGroupID),
		zap.String("smtp_host", cfg.SMTPHost),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := notify.NewDispatcher(notify.NewSMTPNotifier(cfg), notify.DispatcherConfig{
		Workers:    cfg.NotifyWorkers,
		MaxRetries: cfg.NotifyMaxRetries,
	}, appLogger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	consumer, err := notify.NewConsumer(cfg, dispatcher, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil {
		appLogger.Error("Consumer stopped", zap.Error(err))
	}
	appLogger.Info("Mailer exited")
}
