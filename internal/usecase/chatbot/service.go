package chatbot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"universo-edu/internal/domain"
	"universo-edu/internal/infra/metrics"
)

// systemPrompt фиксированная персона ассистента: гибрид сократического
// и прямого режима в зависимости от формулировки вопроса.
const systemPrompt = `Eres "EDU", un asistente educativo amigable y motivador para estudiantes de 6° grado de primaria en México (11-12 años).

## 🎯 MODO DE INTERACCIÓN HÍBRIDO (50% Socrático + 50% Agente):

### 🎓 MODO SOCRÁTICO (para ejercicios y tareas):
Usa este modo cuando el estudiante pida ayuda con ejercicios, tareas o problemas específicos:
- Guía con preguntas para que descubra la respuesta por sí mismo
- Da pistas progresivas, nunca la solución directa
- Celebra el proceso de descubrimiento

**Indicadores para Modo Socrático:**
- "Ayúdame con este ejercicio/tarea/problema"
- "No sé cómo resolver..."
- "¿Cuál es la respuesta de...?"
- "Revisa mi tarea"

### 🤖 MODO AGENTE (para información y apoyo):
Usa este modo cuando el estudiante busque información, explicaciones o apoyo:
- Responde directamente con explicaciones claras
- Proporciona definiciones, datos y contexto
- Ofrece ejemplos prácticos y recursos
- Brinda apoyo emocional cuando hay frustración

**Indicadores para Modo Agente:**
- "¿Qué es...?" / "Explícame..."
- "¿Por qué...?" / "¿Cómo funciona...?"
- "Cuéntame sobre..." / "Dame información de..."
- Expresiones de frustración o confusión emocional
- Preguntas de cultura general

## ESTRATEGIAS PEDAGÓGICAS:
1. **Preguntas guía (Socrático)**: "¿Qué crees que pasaría si...?", "¿Cuál sería el primer paso?"
2. **Explicaciones claras (Agente)**: Cuando pregunten qué es algo, explica con ejemplos cotidianos
3. **Conexiones mexicanas**: Relaciona con mercado, cocina, fútbol, fiestas, comunidad
4. **Celebra el esfuerzo**: Reconoce avances y valida emociones
5. **Apoyo emocional**: Si detectas frustración, cambia a modo reconfortante

## MEMORIA Y CONTEXTO:
- Recuerda el nombre del estudiante y úsalo
- Mantén coherencia con toda la conversación
- Referencia temas anteriores cuando sea relevante
- Adapta tu estilo según el progreso del estudiante

## FORMATO DE RESPUESTA:
- 3-5 oraciones por respuesta (conciso pero completo)
- Usa emojis con moderación (🌟📚✨💪🔢🎯🤔)
- En modo Socrático: termina con una pregunta guía
- En modo Agente: termina con una invitación a preguntar más
- Lenguaje cálido y apropiado para niños de 11-12 años

## CAMPOS FORMATIVOS (Nueva Escuela Mexicana):
- **Lenguajes**: Español, lectura, escritura, comunicación
- **Saberes y Pensamiento Científico**: Matemáticas, ciencias naturales, lógica
- **Ética, Naturaleza y Sociedades**: Historia, geografía, civismo, valores
- **De lo Humano y lo Comunitario**: Arte, educación física, vida cotidiana`

const welcomeMessage = "¡Hola! 👋 Soy EDU, tu compañero de aprendizaje. Estoy aquí para ayudarte de dos formas: si tienes un ejercicio o tarea, te guiaré con preguntas para que descubras la respuesta. Si quieres entender un concepto o necesitas información, te la explico directamente. 🌟\n\n¿Qué necesitas hoy? ¿Ayuda con una tarea o quieres aprender sobre algún tema?"

// historyWindow модель получает не больше последних 20 реплик.
const historyWindow = 20

// subjectKeywords таблица ключевых слов. Порядок фиксирован: выигрывает
// первое совпавшее формирующее поле.
var subjectKeywords = []struct {
	subject  string
	keywords []string
}{
	{domain.SubjectLenguajes, []string{"español", "lectura", "escribir", "cuento", "poema", "gramática", "ortografía", "acento", "verbo"}},
	{domain.SubjectSaberes, []string{"matemát", "número", "suma", "resta", "multiplica", "divide", "fracci", "mcm", "mcd", "ciencia", "experimento"}},
	{domain.SubjectEtica, []string{"historia", "geografía", "independencia", "revolución", "méxico", "estado", "país", "civismo"}},
	{domain.SubjectHumano, []string{"arte", "música", "dibujo", "deporte", "familia", "comunidad"}},
}

var namePattern = regexp.MustCompile(`(?i)(?:me llamo|mi nombre es|soy) (\p{L}+)`)

// Service управляет сессиями чат-бота.
type Service struct {
	sessions domain.SessionRepo
	gateway  domain.ChatCompleter
	log      zerolog.Logger
}

// NewService создаёт сервис чат-бота.
func NewService(sessions domain.SessionRepo, gateway domain.ChatCompleter, logger zerolog.Logger) *Service {
	return &Service{sessions: sessions, gateway: gateway, log: logger}
}

// CreateSession создаёт сессию с приветственным сообщением ассистента.
func (s *Service) CreateSession(subject string) (domain.ChatSession, error) {
	if subject == "" {
		subject = domain.SubjectGeneral
	}
	now := time.Now()
	session := domain.ChatSession{
		SessionID: uuid.NewString(),
		Subject:   subject,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleAssistant, Content: welcomeMessage, Timestamp: now},
		},
		Active:         true,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.sessions.SaveSession(session); err != nil {
		return domain.ChatSession{}, err
	}
	metrics.ChatSessionsTotal.Inc()
	return session, nil
}

// Result ответ чат-бота с учётными полями сессии.
type Result struct {
	SessionID    string `json:"sessionId"`
	Reply        string `json:"response"`
	MessageCount int    `json:"messageCount"`
	Subject      string `json:"subject"`
}

// Chat обрабатывает одну реплику ученика: загружает или создаёт сессию,
// уточняет формирующее поле, строит промпт с контекстом и сохраняет ответ.
func (s *Service) Chat(ctx context.Context, sessionID, userMessage, subjectHint string) (Result, error) {
	if strings.TrimSpace(userMessage) == "" {
		return Result{}, fmt.Errorf("%w: el mensaje no puede estar vacío", domain.ErrValidation)
	}

	now := time.Now()
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return Result{}, err
		}
		subject := DetectSubject(userMessage)
		if subject == "" {
			subject = subjectHint
		}
		if subject == "" {
			subject = domain.SubjectGeneral
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		session = domain.ChatSession{
			SessionID:      sessionID,
			Subject:        subject,
			Active:         true,
			StartedAt:      now,
			LastActivityAt: now,
		}
		metrics.ChatSessionsTotal.Inc()
	}

	// Переопределяем тему только конкретным совпадением, General не затирает.
	if detected := DetectSubject(userMessage); detected != "" {
		session.Subject = detected
	}

	session.Messages = append(session.Messages, domain.ChatMessage{
		Role: domain.RoleUser, Content: userMessage, Timestamp: now,
	})
	metrics.ChatMessagesTotal.WithLabelValues("user").Inc()

	turns := s.buildTurns(session)
	reply, err := s.gateway.Chat(ctx, turns, domain.ChatParams{Temperature: 0.8, MaxTokens: 400})
	if err != nil {
		return Result{}, fmt.Errorf("ответ чат-бота: %w", err)
	}

	session.Messages = append(session.Messages, domain.ChatMessage{
		Role: domain.RoleAssistant, Content: reply, Timestamp: time.Now(),
	})
	metrics.ChatMessagesTotal.WithLabelValues("assistant").Inc()
	session.LastActivityAt = time.Now()

	if err := s.sessions.SaveSession(session); err != nil {
		return Result{}, err
	}

	return Result{
		SessionID:    session.SessionID,
		Reply:        reply,
		MessageCount: len(session.Messages),
		Subject:      session.Subject,
	}, nil
}

// buildTurns собирает системный промпт с контекстом и окно последних реплик.
func (s *Service) buildTurns(session domain.ChatSession) []domain.ChatTurn {
	system := systemPrompt
	if name := ExtractStudentName(session.Messages); name != "" {
		system += fmt.Sprintf("\n\n## CONTEXTO DE ESTA CONVERSACIÓN:\n- El estudiante se llama: %s", name)
	}
	if session.Subject != domain.SubjectGeneral {
		system += fmt.Sprintf("\n- Tema actual: %s", session.Subject)
	}

	window := session.Messages
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}

	turns := make([]domain.ChatTurn, 0, len(window)+1)
	turns = append(turns, domain.ChatTurn{Role: domain.RoleSystem, Content: system})
	for _, msg := range window {
		turns = append(turns, domain.ChatTurn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

// GetHistory возвращает сессию или domain.ErrNotFound.
func (s *Service) GetHistory(sessionID string) (domain.ChatSession, error) {
	return s.sessions.GetSession(sessionID)
}

// ClearSession удаляет сессию. Следующее сообщение с тем же id создаст новую.
func (s *Service) ClearSession(sessionID string) error {
	return s.sessions.DeleteSession(sessionID)
}

// DetectSubject возвращает формирующее поле по ключевым словам сообщения
// или пустую строку.
func DetectSubject(message string) string {
	text := strings.ToLower(message)
	for _, entry := range subjectKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				return entry.subject
			}
		}
	}
	return ""
}

// ExtractStudentName ищет имя по фразам самопредставления во всей истории.
// Только сопоставление шаблонов; при отсутствии совпадений пустая строка.
func ExtractStudentName(messages []domain.ChatMessage) string {
	name := ""
	for _, msg := range messages {
		if msg.Role != domain.RoleUser {
			continue
		}
		if match := namePattern.FindStringSubmatch(msg.Content); match != nil {
			name = capitalize(match[1])
		}
	}
	return name
}

func capitalize(word string) string {
	runes := []rune(strings.ToLower(word))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}
