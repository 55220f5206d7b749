package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"universo-edu/internal/domain"
)

type stubSessionRepo struct {
	sessions map[string]domain.ChatSession
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: map[string]domain.ChatSession{}}
}

func (s *stubSessionRepo) GetSession(id string) (domain.ChatSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return domain.ChatSession{}, domain.ErrNotFound
	}
	return session, nil
}
func (s *stubSessionRepo) SaveSession(session domain.ChatSession) error {
	s.sessions[session.SessionID] = session
	return nil
}
func (s *stubSessionRepo) DeleteSession(id string) error {
	delete(s.sessions, id)
	return nil
}

type stubGateway struct {
	reply string
	turns []domain.ChatTurn
	err   error
}

func (s *stubGateway) Chat(_ context.Context, turns []domain.ChatTurn, _ domain.ChatParams) (string, error) {
	s.turns = turns
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func TestCreateSessionSeedsWelcome(t *testing.T) {
	repo := newStubSessionRepo()
	svc := NewService(repo, &stubGateway{}, zerolog.Nop())

	session, err := svc.CreateSession("")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if session.Subject != domain.SubjectGeneral {
		t.Fatalf("пустая тема должна становиться General: %q", session.Subject)
	}
	if len(session.Messages) != 1 {
		t.Fatalf("ожидали одно приветственное сообщение, получили %d", len(session.Messages))
	}
	if session.Messages[0].Role != domain.RoleAssistant {
		t.Fatalf("приветствие должно быть от ассистента")
	}
	if _, ok := repo.sessions[session.SessionID]; !ok {
		t.Fatalf("сессия должна сохраниться")
	}
}

func TestChatCreatesSessionOnMiss(t *testing.T) {
	repo := newStubSessionRepo()
	gateway := &stubGateway{reply: "respuesta"}
	svc := NewService(repo, gateway, zerolog.Nop())

	result, err := svc.Chat(context.Background(), "missing", "ayúdame con fracciones", "")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.SessionID != "missing" {
		t.Fatalf("id сессии должен сохраниться: %q", result.SessionID)
	}
	if result.Subject != domain.SubjectSaberes {
		t.Fatalf("ожидали определение темы по ключевым словам: %q", result.Subject)
	}
	if result.MessageCount != 2 {
		t.Fatalf("ожидали 2 сообщения (вопрос и ответ), получили %d", result.MessageCount)
	}
	saved := repo.sessions["missing"]
	if len(saved.Messages) != 2 {
		t.Fatalf("диалог должен сохраниться целиком")
	}
}

func TestChatKeepsSubjectOnGeneralMessage(t *testing.T) {
	repo := newStubSessionRepo()
	repo.sessions["s1"] = domain.ChatSession{
		SessionID: "s1",
		Subject:   domain.SubjectSaberes,
		Active:    true,
	}
	svc := NewService(repo, &stubGateway{reply: "ok"}, zerolog.Nop())

	result, err := svc.Chat(context.Background(), "s1", "gracias", "")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Subject != domain.SubjectSaberes {
		t.Fatalf("сообщение без ключевых слов не должно сбрасывать тему: %q", result.Subject)
	}
}

func TestChatSwitchesSubjectOnSpecificMatch(t *testing.T) {
	repo := newStubSessionRepo()
	repo.sessions["s1"] = domain.ChatSession{SessionID: "s1", Subject: domain.SubjectSaberes, Active: true}
	svc := NewService(repo, &stubGateway{reply: "ok"}, zerolog.Nop())

	result, err := svc.Chat(context.Background(), "s1", "ahora quiero escribir un cuento", "")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Subject != domain.SubjectLenguajes {
		t.Fatalf("конкретное совпадение должно переключать тему: %q", result.Subject)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	svc := NewService(newStubSessionRepo(), &stubGateway{}, zerolog.Nop())
	if _, err := svc.Chat(context.Background(), "s1", "   ", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("пустое сообщение должно отклоняться: %v", err)
	}
}

func TestChatPropagatesGatewayError(t *testing.T) {
	repo := newStubSessionRepo()
	gateway := &stubGateway{err: errors.New("provider down")}
	svc := NewService(repo, gateway, zerolog.Nop())

	if _, err := svc.Chat(context.Background(), "s1", "hola", ""); err == nil {
		t.Fatalf("ожидали ошибку шлюза")
	}
	if _, ok := repo.sessions["s1"]; ok {
		t.Fatalf("при ошибке шлюза сессия не сохраняется")
	}
}

func TestBuildTurnsWindowAndContext(t *testing.T) {
	now := time.Now()
	session := domain.ChatSession{
		SessionID: "s1",
		Subject:   domain.SubjectSaberes,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "Me llamo Ana", Timestamp: now},
		},
	}
	for i := 0; i < 30; i++ {
		session.Messages = append(session.Messages, domain.ChatMessage{
			Role: domain.RoleUser, Content: fmt.Sprintf("mensaje %d", i), Timestamp: now,
		})
	}

	svc := NewService(newStubSessionRepo(), &stubGateway{}, zerolog.Nop())
	turns := svc.buildTurns(session)

	if len(turns) != historyWindow+1 {
		t.Fatalf("ожидали системный промпт плюс окно %d, получили %d", historyWindow, len(turns))
	}
	if turns[0].Role != domain.RoleSystem {
		t.Fatalf("первая реплика должна быть системной")
	}
	// Имя из-за пределов окна всё равно попадает в контекст.
	if !strings.Contains(turns[0].Content, "Ana") {
		t.Fatalf("системный промпт должен нести имя ученика")
	}
	if !strings.Contains(turns[0].Content, domain.SubjectSaberes) {
		t.Fatalf("системный промпт должен нести текущую тему")
	}
	if turns[len(turns)-1].Content != "mensaje 29" {
		t.Fatalf("окно должно заканчиваться последним сообщением: %q", turns[len(turns)-1].Content)
	}
}

func TestDetectSubject(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"ayúdame con las fracciones", domain.SubjectSaberes},
		{"necesito escribir un cuento", domain.SubjectLenguajes},
		{"¿cuándo fue la independencia de México?", domain.SubjectEtica},
		{"quiero dibujar con mi familia", domain.SubjectHumano},
		{"hola, ¿cómo estás?", ""},
	}
	for _, tc := range cases {
		if got := DetectSubject(tc.message); got != tc.want {
			t.Errorf("DetectSubject(%q) = %q, ожидали %q", tc.message, got, tc.want)
		}
	}
}

func TestExtractStudentName(t *testing.T) {
	messages := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Hola, me llamo ana"},
		{Role: domain.RoleAssistant, Content: "Hola Ana, soy EDU"},
	}
	if got := ExtractStudentName(messages); got != "Ana" {
		t.Fatalf("ожидали Ana, получили %q", got)
	}

	// Реплики ассистента с "soy" не считаются представлением.
	assistantOnly := []domain.ChatMessage{{Role: domain.RoleAssistant, Content: "soy EDU"}}
	if got := ExtractStudentName(assistantOnly); got != "" {
		t.Fatalf("имя из реплик ассистента не извлекается: %q", got)
	}

	// Последнее представление выигрывает.
	renamed := append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: "mi nombre es Luis"})
	if got := ExtractStudentName(renamed); got != "Luis" {
		t.Fatalf("ожидали Luis, получили %q", got)
	}
}
