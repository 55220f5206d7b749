package ai

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"universo-edu/internal/domain"
	"universo-edu/internal/infra/openai"
)

type stubClient struct {
	replies []func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	calls   int
	models  []string
}

func (s *stubClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.models = append(s.models, req.Model)
	idx := s.calls
	s.calls++
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx](req)
}

func reply(text string) func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: text}}}}, nil
	}
}

func fail(status int) func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{Provider: "stub", StatusCode: status, Message: "stub error"}
	}
}

func userTurns(text string) []domain.ChatTurn {
	return []domain.ChatTurn{{Role: domain.RoleUser, Content: text}}
}

func TestChatUsesFirstProvider(t *testing.T) {
	first := &stubClient{replies: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){reply("primero")}}
	second := &stubClient{replies: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){reply("segundo")}}
	g := NewGateway(zerolog.Nop(), NewMockResponder(),
		Provider{Name: "a", Client: first, Model: "model-a"},
		Provider{Name: "b", Client: second, Model: "model-b"},
	)

	text, err := g.Chat(context.Background(), userTurns("hola"), domain.ChatParams{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if text != "primero" {
		t.Fatalf("ожидали ответ первого провайдера: %q", text)
	}
	if second.calls != 0 {
		t.Fatalf("второй провайдер не должен вызываться")
	}
}

func TestChatDisablesProviderOnAuthError(t *testing.T) {
	first := &stubClient{replies: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){fail(http.StatusUnauthorized)}}
	second := &stubClient{replies: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){reply("segundo")}}
	g := NewGateway(zerolog.Nop(), NewMockResponder(),
		Provider{Name: "a", Client: first, Model: "model-a"},
		Provider{Name: "b", Client: second, Model: "model-b"},
	)

	text, err := g.Chat(context.Background(), userTurns("hola"), domain.ChatParams{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if text != "segundo" {
		t.Fatalf("ожидали ответ второго провайдера: %q", text)
	}
	if first.calls != 1 {
		t.Fatalf("401 не ретраится: %d вызовов", first.calls)
	}

	// Повторный вызов идёт сразу ко второму провайдеру.
	if _, err := g.Chat(context.Background(), userTurns("hola"), domain.ChatParams{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if first.calls != 1 {
		t.Fatalf("отключённый провайдер больше не вызывается: %d", first.calls)
	}

	status := g.Status()
	if status.ActiveProvider != "b" || status.UsingMock {
		t.Fatalf("неверный статус после отключения: %+v", status)
	}
	if len(status.AvailableProviders) != 1 {
		t.Fatalf("ожидали одного доступного провайдера: %v", status.AvailableProviders)
	}
}

func TestChatDowngradesModelOnRateLimit(t *testing.T) {
	client := &stubClient{replies: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		fail(http.StatusTooManyRequests),
		reply("ok"),
	}}
	g := NewGateway(zerolog.Nop(), NewMockResponder(),
		Provider{Name: "a", Client: client, Model: "big", FallbackModel: "small"},
	)
	g.retryDelay = time.Millisecond

	text, err := g.Chat(context.Background(), userTurns("hola"), domain.ChatParams{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if text != "ok" {
		t.Fatalf("ожидали успешный ретрай: %q", text)
	}
	if client.models[0] != "big" || client.models[1] != "small" {
		t.Fatalf("после 429 ретрай должен идти на запасную модель: %v", client.models)
	}

	// Обратного переключения нет.
	if _, err := g.Chat(context.Background(), userTurns("hola"), domain.ChatParams{}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if client.models[len(client.models)-1] != "small" {
		t.Fatalf("модель не возвращается к основной: %v", client.models)
	}
}

func TestChatFallsBackToMockWithoutProviders(t *testing.T) {
	g := NewGateway(zerolog.Nop(), NewMockResponder())

	text, err := g.Chat(context.Background(), userTurns("hola"), domain.ChatParams{})
	if err != nil {
		t.Fatalf("заглушка не должна возвращать ошибку: %v", err)
	}
	if text == "" {
		t.Fatalf("заглушка должна дать непустой ответ")
	}

	status := g.Status()
	if !status.UsingMock || status.ActiveProvider != "mock" {
		t.Fatalf("без провайдеров активна заглушка: %+v", status)
	}
}

func TestChatRejectsEmptyConversation(t *testing.T) {
	g := NewGateway(zerolog.Nop(), NewMockResponder())
	if _, err := g.Chat(context.Background(), nil, domain.ChatParams{}); err == nil {
		t.Fatalf("пустой диалог должен отклоняться")
	}
}
