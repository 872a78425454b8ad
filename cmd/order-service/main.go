package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/app"
	"github.com/vladislavdragonenkov/grocery-oms/internal/version"
)

// envFileVar указывает путь к .env файлу; по умолчанию ./.env.
const envFileVar = "GROCERY_ENV_FILE"

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(logger *log.Logger, format, level string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}

	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(parsed)
	return nil
}

func main() {
	cfg, err := app.LoadConfig(os.Getenv(envFileVar))
	if logErr := setupLogger(log.StandardLogger(), cfg.LogFormat, cfg.LogLevel); logErr != nil {
		log.WithError(logErr).Warn("invalid logger settings, using defaults")
	}
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"version":      version.GetVersion(),
	}).Info("запускаем OrderService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("OrderService остановлен")
}
