package taskgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"universo-edu/internal/adapters/ai"
	"universo-edu/internal/domain"
	"universo-edu/internal/infra/metrics"
)

// systemPrompt фиксированный промпт куррикулярного дизайна. Маркеры
// "diseño curricular" и "JSON" узнаёт заглушка шлюза.
const systemPrompt = `Eres un Asesor Técnico Pedagógico experto en diseño curricular de la Nueva Escuela Mexicana (NEM) para 6° grado de primaria.

TU OBJETIVO: Diseñar Proyectos de Aula simplificados (Aprendizaje Basado en Proyectos) para alumnos que necesitan reforzamiento.

ESTRUCTURA OBLIGATORIA DEL PROYECTO:
1. Título Dinámico: Debe motivar al alumno (ej: "Detectives de Fracciones" en lugar de "Sumar Fracciones").
2. Contextualización: Relacionar con la realidad de una escuela pública en México (mercados, familia, comunidad).
3. Campo Formativo: Identificar claramente a cuál pertenece (Lenguajes, Saberes, Ética, o De lo Humano).
4. Ejes Articuladores: Mencionar al menos uno (ej: Inclusión, Pensamiento Crítico).

REQUISITOS PEDAGÓGICOS:
- Nivel cognitivo: Bajo-Medio (Andamiaje).
- Lenguaje: Directo, empático y en segunda persona ("Tú vas a...").
- Instrucciones: Secuenciadas cronológicamente y sin ambigüedades.

FORMATO DE RESPUESTA (Responde ÚNICAMENTE con este JSON):
{
  "title": "Nombre del Proyecto",
  "description": "Breve contexto del reto (NEM Style)",
  "learningObjective": "A qué aprendizaje esperado o PDA contribuye",
  "instructions": [
    {"step": 1, "text": "Instrucción de inicio (preparación)"},
    {"step": 2, "text": "Instrucción de desarrollo (acción)"},
    {"step": 3, "text": "Instrucción de cierre (reflexión/producto)"}
  ],
  "materials": ["Materiales reciclables o de papelería básica"],
  "duration": "minutos",
  "isCollaborative": boolean,
  "ejeArticulador": "Nombre del eje"
}`

const publishHour = 13

// Service генерирует задания через LLM-шлюз и управляет их публикацией.
type Service struct {
	tasks   domain.TaskRepo
	gateway domain.ChatCompleter
	loc     *time.Location
	now     func() time.Time
	log     zerolog.Logger
}

// NewService создаёт сервис генерации.
func NewService(tasks domain.TaskRepo, gateway domain.ChatCompleter, loc *time.Location, logger zerolog.Logger) *Service {
	return &Service{tasks: tasks, gateway: gateway, loc: loc, now: time.Now, log: logger}
}

type taskPayload struct {
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	LearningObjective string               `json:"learningObjective"`
	Instructions      []domain.Instruction `json:"instructions"`
	Materials         []string             `json:"materials"`
	Duration          string               `json:"duration"`
	IsCollaborative   bool                 `json:"isCollaborative"`
	EjeArticulador    string               `json:"ejeArticulador"`
}

// GenerateTask синтезирует задание по формирующему полю и теме.
// Ошибка разбора ответа не оставляет частичных записей.
func (s *Service) GenerateTask(ctx context.Context, subject, topic string, weekNumber int, createdBy *int64) (domain.Task, error) {
	if !domain.ValidSubject(subject) {
		return domain.Task{}, fmt.Errorf("%w: campo formativo desconocido: %q", domain.ErrValidation, subject)
	}
	if strings.TrimSpace(topic) == "" {
		return domain.Task{}, fmt.Errorf("%w: el tema es requerido", domain.ErrValidation)
	}

	prompt := fmt.Sprintf(`Actividad para el campo formativo "%s" sobre el tema "%s".
Para alumnos de 6° grado que requieren apoyo constante.
Asegúrate de que el título sea creativo y el contexto sea mexicano.
Responde ÚNICAMENTE con el objeto JSON solicitado.`, subject, topic)

	response, err := s.gateway.Chat(ctx, []domain.ChatTurn{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: prompt},
	}, domain.ChatParams{Temperature: 0.7, MaxTokens: 800})
	if err != nil {
		metrics.GeneratedContentTotal.WithLabelValues("task", "error").Inc()
		return domain.Task{}, fmt.Errorf("генерация задания: %w", err)
	}

	payload, err := parseTaskPayload(response)
	if err != nil {
		metrics.GeneratedContentTotal.WithLabelValues("task", "parse_error").Inc()
		return domain.Task{}, err
	}

	task := domain.Task{
		Type:              domain.TaskTypeTask,
		Title:             payload.Title,
		Description:       payload.Description,
		Subject:           subject,
		LearningObjective: payload.LearningObjective,
		Instructions:      payload.Instructions,
		Materials:         payload.Materials,
		DurationMinutes:   parseDurationMinutes(payload.Duration),
		Collaborative:     payload.IsCollaborative,
		EjeArticulador:    payload.EjeArticulador,
		Difficulty:        "básico",
		WeekNumber:        &weekNumber,
		PublishAt:         NextPublishDate(s.now().In(s.loc)),
		Status:            domain.TaskStatusScheduled,
		CreatedBy:         createdBy,
	}

	created, err := s.tasks.CreateTask(task)
	if err != nil {
		metrics.GeneratedContentTotal.WithLabelValues("task", "error").Inc()
		return domain.Task{}, err
	}
	metrics.GeneratedContentTotal.WithLabelValues("task", "ok").Inc()
	s.log.Info().Str("title", created.Title).Str("subject", subject).Msg("задание сгенерировано")
	return created, nil
}

func parseTaskPayload(response string) (taskPayload, error) {
	raw, ok := ai.FirstJSONObject(response)
	if !ok {
		return taskPayload{}, &domain.GenerationParseError{Raw: response}
	}
	var payload taskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return taskPayload{}, &domain.GenerationParseError{Raw: response, Err: err}
	}
	if payload.Title == "" {
		return taskPayload{}, &domain.GenerationParseError{Raw: response, Err: fmt.Errorf("missing title")}
	}
	return payload, nil
}

// parseDurationMinutes выцепляет число минут из строк вида "30 minutos".
func parseDurationMinutes(raw string) *int {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return nil
	}
	minutes, err := strconv.Atoi(fields[0])
	if err != nil || minutes <= 0 {
		return nil
	}
	return &minutes
}

// NextPublishDate возвращает ближайшие 13:00 строго после now, перенося
// выходные на понедельник.
func NextPublishDate(now time.Time) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), publishHour, 0, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	switch candidate.Weekday() {
	case time.Saturday:
		candidate = candidate.AddDate(0, 0, 2)
	case time.Sunday:
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// PublishedTasks возвращает задания, доступные ученикам.
func (s *Service) PublishedTasks(weekNumber *int, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.tasks.ListPublishedTasks(weekNumber, s.now().In(s.loc), limit)
}

// AllTasks возвращает страницу заданий для админки.
func (s *Service) AllTasks(page, pageSize int) ([]domain.Task, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return s.tasks.ListTasks(pageSize, (page-1)*pageSize)
}

// CreateManualTask сохраняет задание или объявление, созданное учителем.
func (s *Service) CreateManualTask(task domain.Task) (domain.Task, error) {
	if strings.TrimSpace(task.Title) == "" {
		return domain.Task{}, fmt.Errorf("%w: el título es requerido", domain.ErrValidation)
	}
	if task.Type == domain.TaskTypeTask && !domain.ValidSubject(task.Subject) {
		return domain.Task{}, fmt.Errorf("%w: campo formativo desconocido: %q", domain.ErrValidation, task.Subject)
	}
	switch task.Status {
	case "", domain.TaskStatusDraft:
		task.Status = domain.TaskStatusDraft
	case domain.TaskStatusScheduled:
		if task.PublishAt.IsZero() {
			task.PublishAt = NextPublishDate(s.now().In(s.loc))
		}
	default:
		return domain.Task{}, fmt.Errorf("%w: estado inicial inválido: %q", domain.ErrValidation, task.Status)
	}
	return s.tasks.CreateTask(task)
}

// PublishTask публикует задание вручную, немедленно.
func (s *Service) PublishTask(id int64) (domain.Task, error) {
	return s.tasks.PublishTaskNow(id, s.now().In(s.loc))
}
