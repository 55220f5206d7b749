package ai

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"universo-edu/internal/domain"
)

var (
	namePattern     = regexp.MustCompile(`(?i)(?:me llamo|mi nombre es|soy) (\p{L}+)`)
	greetingPattern = regexp.MustCompile(`(?i)^(hola|hi|hey|buenos días|buenas tardes|buenas noches)`)
	topicPattern    = regexp.MustCompile(`(?i)(?:tema|sobre) "([^"]+)"`)
	subjectPattern  = regexp.MustCompile(`(?i)formativo "([^"]+)"`)
)

// defaultReplies генерические сократические реплики на случай, когда ни одно
// правило не сработало.
var defaultReplies = []string{
	"¡Interesante pregunta! 🌟 Para ayudarte mejor, cuéntame: ¿qué es lo que ya sabes sobre este tema?",
	"¡Vamos a explorarlo juntos! 🔍 ¿Puedes darme un ejemplo de lo que estás viendo en clase?",
	"¡Excelente curiosidad! 📚 ¿Qué es lo que más se te dificulta de este tema?",
	"Pensemos paso a paso. ✨ ¿Cuál crees que es el primer paso para resolver esto?",
}

// MockResponder детерминированная rule-based заглушка. Отвечает, когда ни один
// LLM-провайдер не настроен или все недоступны.
type MockResponder struct {
	rnd *rand.Rand
}

// NewMockResponder создаёт заглушку.
func NewMockResponder() *MockResponder {
	return &MockResponder{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Respond подбирает ответ по последней реплике ученика. Запросы генерации
// заданий распознаются по маркерам в системном промпте и получают валидный JSON.
func (m *MockResponder) Respond(turns []domain.ChatTurn) string {
	systemText := ""
	lastUser := ""
	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleSystem:
			if systemText == "" {
				systemText = turn.Content
			}
		case domain.RoleUser:
			lastUser = turn.Content
		}
	}

	if strings.Contains(systemText, "diseño curricular") || strings.Contains(systemText, "JSON") {
		return m.taskJSON(turns)
	}

	userText := strings.ToLower(strings.TrimSpace(lastUser))
	name := ExtractStudentName(turns)

	// Представление по имени.
	if strings.Contains(userText, "me llamo") || strings.Contains(userText, "mi nombre es") || strings.Contains(userText, "soy ") {
		if match := namePattern.FindStringSubmatch(userText); match != nil {
			return fmt.Sprintf("¡Hola %s! 👋 ¡Qué gusto conocerte! Soy EDU, tu compañero de aprendizaje. ¿En qué tema te gustaría que trabajemos hoy? 📚", capitalize(match[1]))
		}
	}

	// Вопрос "как меня зовут".
	if strings.Contains(userText, "mi nombre") || strings.Contains(userText, "como me llamo") || strings.Contains(userText, "cómo me llamo") {
		if name != "" {
			return fmt.Sprintf("¡Claro que te recuerdo, %s! 😊 ¿En qué puedo ayudarte?", name)
		}
		return "Hmm, no recuerdo que me hayas dicho tu nombre todavía. 🤔 ¿Cómo te llamas?"
	}

	if greetingPattern.MatchString(userText) {
		return "¡Hola! 👋 Soy EDU, tu compañero de aprendizaje. Estoy aquí para ayudarte a entender mejor tus tareas sin darte las respuestas directamente. ¿Qué tema te gustaría explorar? 📚"
	}

	if strings.Contains(userText, "gracias") {
		return "¡De nada! 😊 Me alegra poder ayudarte. ¿Hay algo más que quieras aprender?"
	}

	if containsAny(userText, "matemát", "número", "suma", "resta", "multiplica", "divide") {
		return "¡Las matemáticas son fascinantes! 🔢 Cuéntame más sobre el problema que estás resolviendo. ¿Qué operación necesitas hacer? Te ayudaré a pensar paso a paso sin darte la respuesta directa."
	}

	if containsAny(userText, "fraccion", "quebrado") {
		return "Las fracciones representan partes de un todo 🍕. ¿Qué operación necesitas hacer con ellas? ¿Sumar, restar, o encontrar equivalencias? Cuéntame el problema y te haré preguntas para que tú mismo encuentres la solución."
	}

	if containsAny(userText, "mcm", "mcd", "mínimo común") {
		return "¡Buen tema! Para encontrar el MCM o MCD, primero necesitas descomponer los números. ¿Con qué números estás trabajando? Te guiaré con preguntas para que descubras el procedimiento. 🔢"
	}

	if containsAny(userText, "español", "lectura", "escrib", "gramática") {
		return "¡El español es muy rico! 📚 ¿Estás trabajando con un texto, aprendiendo gramática o practicando escritura? Cuéntame más para guiarte con preguntas."
	}

	if containsAny(userText, "ciencia", "natura", "experiment") {
		return "¡Ser científico es emocionante! 🔬 ¿Qué fenómeno o tema estás explorando? Te ayudaré a formar hipótesis y pensar como investigador."
	}

	if containsAny(userText, "historia", "independencia", "revolución") {
		return "¡La historia nos enseña mucho! 📜 ¿Qué época o evento estás estudiando? Te haré preguntas para que conectes los hechos y entiendas el porqué de las cosas."
	}

	// Односложные ответы читаем как признак фрустрации.
	if userText == "nada" || userText == "no" || userText == "no sé" || len([]rune(userText)) < 5 {
		return "¡No te desanimes! 💪 A veces los temas nuevos toman tiempo. ¿Qué parte específica no entiendes? Podemos ir paso a paso juntos."
	}

	return defaultReplies[m.rnd.Intn(len(defaultReplies))]
}

// taskJSON возвращает синтаксически валидное задание с полями-заглушками.
func (m *MockResponder) taskJSON(turns []domain.ChatTurn) string {
	subject := "General"
	topic := "Aprendizaje"
	for _, turn := range turns {
		if turn.Role != domain.RoleUser {
			continue
		}
		if match := subjectPattern.FindStringSubmatch(turn.Content); match != nil {
			subject = match[1]
		}
		if match := topicPattern.FindStringSubmatch(turn.Content); match != nil {
			topic = match[1]
		}
	}

	payload := map[string]any{
		"title":             fmt.Sprintf("Explorando %s", topic),
		"description":       fmt.Sprintf("Una actividad práctica para descubrir conceptos sobre %s de manera divertida y significativa en el campo de %s.", topic, subject),
		"learningObjective": fmt.Sprintf("Desarrollar comprensión y habilidades relacionadas con %s a través de la exploración y el descubrimiento.", topic),
		"instructions": []map[string]any{
			{"step": 1, "text": "Reúne los materiales necesarios en tu espacio de trabajo."},
			{"step": 2, "text": fmt.Sprintf("Investiga o recuerda lo que sabes sobre %s.", topic)},
			{"step": 3, "text": "Realiza un dibujo o esquema que represente tu aprendizaje."},
		},
		"materials":      []string{"Cuaderno", "Lápices de colores", "Materiales reciclados"},
		"duration":       "30 minutos",
		"isCollaborative": true,
		"ejeArticulador": "Pensamiento Crítico",
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

// ExtractStudentName ищет имя ученика по фразам самопредставления во всей
// истории. Это сопоставление по шаблонам, не NLP; при отсутствии совпадений
// возвращается пустая строка.
func ExtractStudentName(turns []domain.ChatTurn) string {
	name := ""
	for _, turn := range turns {
		if turn.Role != domain.RoleUser {
			continue
		}
		if match := namePattern.FindStringSubmatch(turn.Content); match != nil {
			name = capitalize(match[1])
		}
	}
	return name
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func capitalize(word string) string {
	runes := []rune(strings.ToLower(word))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}
