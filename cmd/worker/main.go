// Worker consumes outbound mail from Kafka and delivers it over SMTP.
// Set KAFKA_BROKERS, NOTIFY_KAFKA_TOPIC, KAFKA_GROUP_ID and SMTP_HOST.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"storefront/backend/internal/app"
	"storefront/backend/internal/config"
	"storefront/backend/internal/notification"
	"storefront/backend/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, restore, err := logger.Install(cfg.LogLevel, cfg.LogFormat, "storefront-mail-worker")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer restore()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		zl.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.SMTPHost == "" {
		zl.Fatal("worker: SMTP_HOST is required")
	}
	mailer, err := notification.NewSMTPMailer(app.SMTPConfig(cfg))
	if err != nil {
		zl.Fatal("worker: smtp", zap.Error(err))
	}

	reader := notification.NewKafkaReader(brokers, cfg.NotifyKafkaTopic, cfg.KafkaGroupID)
	defer reader.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	zl.Info("worker: consuming",
		zap.String("topic", cfg.NotifyKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("smtp_host", cfg.SMTPHost),
	)
	if err := notification.Consume(ctx, reader, mailer, zl); err != nil && ctx.Err() == nil {
		zl.Error("worker: consume", zap.Error(err))
		return
	}
	zl.Info("worker: stopped")
}
