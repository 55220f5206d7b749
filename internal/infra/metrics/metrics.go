package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PublishedContentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "published_content_total",
		Help: "Количество опубликованных планировщиком записей",
	}, []string{"kind"})

	PublishSweepSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "publish_sweep_seconds",
		Help:    "Время прохода публикатора",
		Buckets: prometheus.DefBuckets,
	})

	GeneratedContentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generated_content_total",
		Help: "Количество сгенерированных заданий и лектур",
	}, []string{"kind", "status"})

	ChatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Количество сообщений чат-бота",
	}, []string{"role"})

	ChatSessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_total",
		Help: "Количество созданных чат-сессий",
	})

	ProviderFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_provider_fallbacks_total",
		Help: "Переключения между LLM-провайдерами",
	}, []string{"from", "to"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PublishedContentTotal,
		PublishSweepSeconds,
		GeneratedContentTotal,
		ChatMessagesTotal,
		ChatSessionsTotal,
		ProviderFallbacksTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}
