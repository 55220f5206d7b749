package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"universo-edu/internal/adapters/ai"
	"universo-edu/internal/adapters/httpapi"
	"universo-edu/internal/adapters/repo"
	"universo-edu/internal/adapters/sessions"
	"universo-edu/internal/infra/config"
	"universo-edu/internal/infra/db"
	httpinfra "universo-edu/internal/infra/http"
	"universo-edu/internal/infra/log"
	"universo-edu/internal/infra/metrics"
	"universo-edu/internal/infra/openai"
	"universo-edu/internal/usecase/auth"
	"universo-edu/internal/usecase/chatbot"
	"universo-edu/internal/usecase/reading"
	"universo-edu/internal/usecase/scheduler"
	"universo-edu/internal/usecase/taskgen"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("неизвестный часовой пояс")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к Postgres")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	store := repo.NewPostgres(pool)
	sessionStore := sessions.NewRedisStore(redisClient)

	// Провайдеры подключаются только при наличии ключа; без ключей
	// шлюз сразу отвечает заглушкой.
	var providers []ai.Provider
	if cfg.Groq.APIKey != "" {
		providers = append(providers, ai.Provider{
			Name:          "groq",
			Client:        openai.NewClient("groq", cfg.Groq.APIKey, cfg.Groq.BaseURL, cfg.Groq.Timeout),
			Model:         cfg.Groq.Model,
			FallbackModel: cfg.Groq.FallbackModel,
		})
	}
	if cfg.Qwen.APIKey != "" {
		providers = append(providers, ai.Provider{
			Name:   "qwen",
			Client: openai.NewClient("qwen", cfg.Qwen.APIKey, cfg.Qwen.BaseURL, cfg.Qwen.Timeout),
			Model:  cfg.Qwen.Model,
		})
	}
	gateway := ai.NewGateway(log.ForComponent(logger, "ai-gateway"), ai.NewMockResponder(), providers...)

	taskSvc := taskgen.NewService(store, gateway, loc, log.ForComponent(logger, "taskgen"))
	readingSvc := reading.NewService(store, gateway, loc, log.ForComponent(logger, "reading"))
	chatSvc := chatbot.NewService(sessionStore, gateway, log.ForComponent(logger, "chatbot"))
	authSvc := auth.NewService(store, cfg.JWTSecret)
	schedulerSvc := scheduler.NewService(store, store, store, taskSvc, readingSvc, loc,
		cfg.Scheduler.GenerateHour, cfg.Scheduler.ReadingHour, log.ForComponent(logger, "scheduler"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go schedulerSvc.Run(ctx)

	server := httpinfra.NewServer(logger)
	handler := httpapi.NewHandler(chatSvc, taskSvc, readingSvc, schedulerSvc, store, authSvc, gateway,
		loc, cfg.Limits.PublishedTasks, cfg.Limits.AdminPageSize, log.ForComponent(logger, "api"))
	handler.Register(server.Router, cfg.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("получен сигнал остановки")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер завершился с ошибкой")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ошибка при остановке HTTP сервера")
		os.Exit(1)
	}
	logger.Info().Msg("сервис остановлен")
}
