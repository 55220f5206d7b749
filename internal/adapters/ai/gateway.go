package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"universo-edu/internal/domain"
	"universo-edu/internal/infra/metrics"
	openai "universo-edu/internal/infra/openai"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 500
	defaultTopP        = 0.9

	maxAttempts    = 3
	baseRetryDelay = time.Second
)

type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Provider описывает один сконфигурированный LLM-провайдер.
// FallbackModel используется после rate limit, если задана.
type Provider struct {
	Name          string
	Client        completionClient
	Model         string
	FallbackModel string
}

type providerState struct {
	name          string
	client        completionClient
	model         string
	fallbackModel string
	disabled      bool
}

// Gateway объединяет провайдеров в одну операцию Chat с детерминированным
// фолбэком. Порядок провайдеров фиксирован конфигурацией; последним всегда
// отвечает rule-based заглушка, поэтому Chat не падает из-за отсутствия
// провайдеров.
type Gateway struct {
	mu         sync.Mutex
	providers  []*providerState
	mock       *MockResponder
	retryDelay time.Duration
	log        zerolog.Logger
}

var _ domain.ChatCompleter = (*Gateway)(nil)

// NewGateway создаёт шлюз. providers перечисляются в порядке приоритета.
func NewGateway(logger zerolog.Logger, mock *MockResponder, providers ...Provider) *Gateway {
	states := make([]*providerState, 0, len(providers))
	for _, p := range providers {
		states = append(states, &providerState{
			name:          p.Name,
			client:        p.Client,
			model:         p.Model,
			fallbackModel: p.FallbackModel,
		})
	}
	return &Gateway{providers: states, mock: mock, retryDelay: baseRetryDelay, log: logger}
}

// Chat отправляет диалог первому доступному провайдеру.
func (g *Gateway) Chat(ctx context.Context, turns []domain.ChatTurn, params domain.ChatParams) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("gateway: %w: empty conversation", domain.ErrValidation)
	}
	if params.Temperature == 0 {
		params.Temperature = defaultTemperature
	}
	if params.MaxTokens == 0 {
		params.MaxTokens = defaultMaxTokens
	}
	if params.TopP == 0 {
		params.TopP = defaultTopP
	}

	prev := ""
	for _, state := range g.snapshot() {
		if prev != "" {
			metrics.ProviderFallbacksTotal.WithLabelValues(prev, state.name).Inc()
		}
		text, err := g.callProvider(ctx, state, turns, params)
		if err == nil {
			return text, nil
		}
		g.log.Warn().Err(err).Str("provider", state.name).Msg("провайдер недоступен, пробуем следующий")
		prev = state.name
	}

	if prev != "" {
		metrics.ProviderFallbacksTotal.WithLabelValues(prev, "mock").Inc()
	}
	g.log.Debug().Msg("все провайдеры недоступны, отвечает заглушка")
	return g.mock.Respond(turns), nil
}

// Status отражает текущее состояние шлюза.
type Status struct {
	ActiveProvider     string   `json:"activeProvider"`
	AvailableProviders []string `json:"availableProviders"`
	UsingMock          bool     `json:"isUsingMock"`
}

// Status возвращает активный и доступные провайдеры.
func (g *Gateway) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := Status{ActiveProvider: "mock", UsingMock: true}
	for _, p := range g.providers {
		if p.disabled {
			continue
		}
		st.AvailableProviders = append(st.AvailableProviders, p.name)
		if st.UsingMock {
			st.ActiveProvider = p.name
			st.UsingMock = false
		}
	}
	return st
}

func (g *Gateway) snapshot() []*providerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	alive := make([]*providerState, 0, len(g.providers))
	for _, p := range g.providers {
		if !p.disabled {
			alive = append(alive, p)
		}
	}
	return alive
}

func (g *Gateway) callProvider(ctx context.Context, state *providerState, turns []domain.ChatTurn, params domain.ChatParams) (string, error) {
	messages := make([]openai.ChatMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, openai.ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req := openai.ChatCompletionRequest{
			Model:       g.currentModel(state),
			Messages:    messages,
			Temperature: params.Temperature,
			MaxTokens:   params.MaxTokens,
			TopP:        params.TopP,
		}
		resp, err := state.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = fmt.Errorf("%s: пустой ответ", state.name)
			} else {
				return strings.TrimSpace(resp.Choices[0].Message.Content), nil
			}
		} else {
			lastErr = err
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				switch apiErr.StatusCode {
				case http.StatusUnauthorized, http.StatusForbidden:
					// Авторизационный отказ не лечится повторами до рестарта.
					g.disable(state)
					g.log.Error().Str("provider", state.name).Msg("провайдер отключён: отказ авторизации")
					return "", err
				case http.StatusTooManyRequests:
					if state.fallbackModel != "" {
						g.downgradeModel(state)
					}
				}
			}
		}
		if attempt < maxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * g.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

func (g *Gateway) currentModel(state *providerState) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return state.model
}

func (g *Gateway) disable(state *providerState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state.disabled = true
}

// downgradeModel переключает провайдера на запасную модель. Обратного
// переключения нет, как и в остальных мутациях реестра, до рестарта процесса.
func (g *Gateway) downgradeModel(state *providerState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if state.model != state.fallbackModel {
		g.log.Info().Str("provider", state.name).Str("model", state.fallbackModel).Msg("rate limit: переключаемся на быструю модель")
		state.model = state.fallbackModel
	}
}
