package reading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"universo-edu/internal/adapters/ai"
	"universo-edu/internal/domain"
	"universo-edu/internal/infra/metrics"
)

const systemPrompt = `Eres un experto en pedagogía y literatura infantil mexicana especializado en educación socioemocional.
Tu objetivo es escribir una "Lectura del Día" para estudiantes de sexto grado de primaria (11-12 años) enfocada en la REFLEXIÓN sobre la violencia y el acoso escolar.

TEMA CENTRAL:
Todas las lecturas deben abordar temas de:
- Prevención del acoso escolar (bullying)
- Resolución pacífica de conflictos
- Empatía y respeto hacia los demás
- El valor de la inclusión y la diversidad
- Cómo ser un "upstander" (quien defiende a otros) en lugar de un "bystander" (espectador pasivo)
- Las consecuencias emocionales de la violencia
- Historias de redención y cambio positivo
- La importancia de comunicar con adultos de confianza

REGLAS DE CONTENIDO:
1. LONGITUD: El texto debe ser extenso (entre 1500 y 2000 palabras). Narra con profundidad emocional.
2. ESTRUCTURA: Usa subtítulos llamativos (HTML <h3>) para dividir el texto. Usa párrafos cortos (HTML <p>).
3. TONO: Empático, reflexivo e inspirador. Evita ser punitivo o moralizante de forma negativa.
4. FORMATO: Incluye siempre una sección final de "Reflexión" con 3-4 preguntas para que los estudiantes piensen.
5. PROTAGONISTAS: Usa personajes con los que los estudiantes mexicanos puedan identificarse.

FORMATO DE SALIDA (JSON ÚNICAMENTE):
{
  "title": "Un título cautivador relacionado con el tema",
  "content": "Contenido completo en HTML (solo p, h3, b, i, ul, li)",
  "author": "Nombre del autor ficticio mexicano",
  "topic": "Convivencia Escolar"
}`

// topics курируемый список сюжетов о школьной травле.
var topics = []string{
	"La historia de Sofía: cuando el silencio duele más que las palabras",
	"Los valientes de corazón: cómo Mario aprendió a defender a sus compañeros",
	"El diario secreto de Miguel: las cicatrices invisibles del bullying",
	"La fuerza de la amistad: cuando Andrea encontró aliados inesperados",
	"El cambio de Rodrigo: de agresor a protector",
	"Las palabras que no se borran: la historia de Valentina",
	"Juntos somos más fuertes: el día que la clase 6-B dijo basta",
	"El poder de escuchar: cuando la maestra descubrió lo que pasaba en el recreo",
	"No estás solo: la red de apoyo de Carlos",
	"El espejo roto: entendiendo por qué algunos niños lastiman a otros",
	"La cadena de bondad: un acto pequeño que cambió todo",
	"Cuando las diferencias nos hacen únicos: la historia de Lupita",
}

const (
	publishHour    = 13
	publishMinute  = 30
	readingMinutes = 15
)

// Service генерирует "Лектуру дня" и отдаёт её ученикам.
type Service struct {
	readings domain.ReadingRepo
	gateway  domain.ChatCompleter
	loc      *time.Location
	now      func() time.Time
	rnd      *rand.Rand
	log      zerolog.Logger
}

// NewService создаёт сервис лектур.
func NewService(readings domain.ReadingRepo, gateway domain.ChatCompleter, loc *time.Location, logger zerolog.Logger) *Service {
	return &Service{
		readings: readings,
		gateway:  gateway,
		loc:      loc,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      logger,
	}
}

type readingPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author"`
	Topic   string `json:"topic"`
}

// GenerateDaily создаёт лектуру на сегодня. Идемпотентно в пределах
// календарного дня: существующая запись возвращается без изменений.
// Проверка выполнена запросом перед вставкой, гонку двух одновременных
// вызовов она не исключает.
func (s *Service) GenerateDaily(ctx context.Context) (domain.Reading, error) {
	now := s.now().In(s.loc)
	target := time.Date(now.Year(), now.Month(), now.Day(), publishHour, publishMinute, 0, 0, s.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Millisecond)

	existing, err := s.readings.FindReadingBetween(dayStart, dayEnd)
	if err == nil {
		s.log.Debug().Str("title", existing.Title).Msg("лектура на сегодня уже есть")
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Reading{}, err
	}

	topic := topics[s.rnd.Intn(len(topics))]
	prompt := fmt.Sprintf(`Escribe una lectura reflexiva completa sobre: "%s".
Esta historia debe hacer reflexionar a estudiantes de sexto grado sobre la violencia escolar y el acoso.
Incluye: desarrollo narrativo profundo, emociones de los personajes, consecuencias reales, y un final esperanzador que muestre que el cambio es posible.
Al final incluye una sección de "Para reflexionar" con preguntas provocadoras.
Mínimo 1500 palabras.`, topic)

	response, err := s.gateway.Chat(ctx, []domain.ChatTurn{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: prompt},
	}, domain.ChatParams{Temperature: 0.85, MaxTokens: 4000})
	if err != nil {
		metrics.GeneratedContentTotal.WithLabelValues("reading", "error").Inc()
		return domain.Reading{}, fmt.Errorf("генерация лектуры: %w", err)
	}

	raw, ok := ai.FirstJSONObject(response)
	if !ok {
		metrics.GeneratedContentTotal.WithLabelValues("reading", "parse_error").Inc()
		return domain.Reading{}, &domain.GenerationParseError{Raw: response}
	}
	var payload readingPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		metrics.GeneratedContentTotal.WithLabelValues("reading", "parse_error").Inc()
		return domain.Reading{}, &domain.GenerationParseError{Raw: response, Err: err}
	}

	reading := domain.Reading{
		Title:       payload.Title,
		Content:     payload.Content,
		Author:      payload.Author,
		Topic:       payload.Topic,
		ReadingTime: readingMinutes,
		PublishAt:   target,
		Published:   false,
	}
	created, err := s.readings.CreateReading(reading)
	if err != nil {
		metrics.GeneratedContentTotal.WithLabelValues("reading", "error").Inc()
		return domain.Reading{}, err
	}
	metrics.GeneratedContentTotal.WithLabelValues("reading", "ok").Inc()
	s.log.Info().Str("title", created.Title).Msg("лектура дня сгенерирована")
	return created, nil
}

// Latest возвращает самую свежую опубликованную лектуру.
func (s *Service) Latest() (domain.Reading, error) {
	return s.readings.LatestPublishedReading(s.now().In(s.loc))
}
