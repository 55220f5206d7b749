package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"universo-edu/internal/adapters/ai"
	"universo-edu/internal/domain"
	httpinfra "universo-edu/internal/infra/http"
	"universo-edu/internal/usecase/auth"
	"universo-edu/internal/usecase/chatbot"
	"universo-edu/internal/usecase/reading"
	"universo-edu/internal/usecase/scheduler"
	"universo-edu/internal/usecase/taskgen"
)

// apologyReply фиксированный ответ ученику при сбое чат-бота.
const apologyReply = "Lo siento, tuve un problema para responder. 😔 ¿Puedes intentar de nuevo en un momento?"

// Handler регистрирует маршруты платформы.
type Handler struct {
	chat      *chatbot.Service
	tasks     *taskgen.Service
	readings  *reading.Service
	scheduler *scheduler.Service
	schedules domain.ScheduleRepo
	auth      *auth.Service
	gateway   *ai.Gateway

	loc        *time.Location
	now        func() time.Time
	tasksLimit int
	pageSize   int
	log        zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(chat *chatbot.Service, tasks *taskgen.Service, readings *reading.Service,
	sched *scheduler.Service, schedules domain.ScheduleRepo, authSvc *auth.Service, gateway *ai.Gateway,
	loc *time.Location, tasksLimit, pageSize int, logger zerolog.Logger) *Handler {
	return &Handler{
		chat:       chat,
		tasks:      tasks,
		readings:   readings,
		scheduler:  sched,
		schedules:  schedules,
		auth:       authSvc,
		gateway:    gateway,
		loc:        loc,
		now:        time.Now,
		tasksLimit: tasksLimit,
		pageSize:   pageSize,
		log:        logger,
	}
}

// Register навешивает маршруты. Админские группы защищены JWT.
func (h *Handler) Register(r chi.Router, jwtSecret string) {
	r.Post("/api/auth/login", h.login)

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/session", h.createSession)
		r.Post("/message", h.chatMessage)
		r.Get("/history/{sessionID}", h.chatHistory)
		r.Delete("/session/{sessionID}", h.clearSession)
		r.Get("/status", h.aiStatus)
	})

	r.Get("/api/tasks", h.publishedTasks)
	r.Get("/api/readings/latest", h.latestReading)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(httpinfra.AuthMiddleware(jwtSecret))
		r.Get("/tasks", h.adminTasks)
		r.Post("/tasks", h.createTask)
		r.Post("/tasks/{taskID}/publish", h.publishTask)
		r.Post("/tasks/generate", h.generateTask)
		r.Get("/schedules", h.listSchedules)
		r.Post("/schedules", h.createSchedule)
		r.Patch("/schedules/{scheduleID}", h.updateSchedule)
		r.Post("/readings/generate", h.generateReading)
		r.With(httpinfra.RequireRole(string(domain.RoleAdmin))).Post("/users", h.createUser)
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("cuerpo inválido"))
		return
	}
	token, user, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			httpinfra.WriteError(w, http.StatusUnauthorized, err)
		case errors.Is(err, domain.ErrValidation):
			httpinfra.WriteError(w, http.StatusBadRequest, err)
		default:
			h.log.Error().Err(err).Msg("ошибка входа")
			httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		}
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("cuerpo inválido"))
		return
	}
	if req.Email == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("el correo es requerido"))
		return
	}
	role := domain.UserRole(req.Role)
	if role != domain.RoleAdmin && role != domain.RoleTeacher {
		role = domain.RoleTeacher
	}
	user, err := h.auth.Register(req.Email, req.Password, req.Name, role)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			httpinfra.WriteError(w, http.StatusBadRequest, err)
			return
		}
		h.log.Error().Err(err).Msg("не удалось создать пользователя")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
		"role":  user.Role,
	})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	session, err := h.chat.CreateSession(req.Subject)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось создать сессию")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, session)
}

func (h *Handler) chatMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
		Subject   string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("cuerpo inválido"))
		return
	}
	result, err := h.chat.Chat(r.Context(), req.SessionID, req.Message, req.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			httpinfra.WriteError(w, http.StatusBadRequest, err)
			return
		}
		// Ученик получает вежливый отказ, а не внутреннюю ошибку.
		h.log.Error().Err(err).Str("session", req.SessionID).Msg("сбой чат-бота")
		httpinfra.WriteJSON(w, http.StatusOK, chatbot.Result{
			SessionID: req.SessionID,
			Reply:     apologyReply,
			Subject:   req.Subject,
		})
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) chatHistory(w http.ResponseWriter, r *http.Request) {
	session, err := h.chat.GetHistory(chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, errors.New("sesión no encontrada"))
			return
		}
		h.log.Error().Err(err).Msg("не удалось получить историю")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.ClearSession(chi.URLParam(r, "sessionID")); err != nil {
		h.log.Error().Err(err).Msg("не удалось удалить сессию")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) aiStatus(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, h.gateway.Status())
}

// taskDTO сериализация задания. Булев флаг published выводится из статуса
// только здесь, в домене его нет.
type taskDTO struct {
	ID                int64                `json:"id"`
	Type              domain.TaskType      `json:"type"`
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	Subject           string               `json:"subject,omitempty"`
	LearningObjective string               `json:"learningObjective,omitempty"`
	Instructions      []domain.Instruction `json:"instructions,omitempty"`
	Materials         []string             `json:"materials,omitempty"`
	Attachments       []domain.Attachment  `json:"attachments,omitempty"`
	DurationMinutes   *int                 `json:"duration,omitempty"`
	Collaborative     bool                 `json:"isCollaborative"`
	EjeArticulador    string               `json:"ejeArticulador,omitempty"`
	WeekNumber        *int                 `json:"weekNumber,omitempty"`
	PublishAt         time.Time            `json:"publishDate"`
	Status            domain.TaskStatus    `json:"status"`
	IsPublished       bool                 `json:"isPublished"`
	CreatedAt         time.Time            `json:"createdAt"`
}

func toTaskDTO(task domain.Task) taskDTO {
	return taskDTO{
		ID:                task.ID,
		Type:              task.Type,
		Title:             task.Title,
		Description:       task.Description,
		Subject:           task.Subject,
		LearningObjective: task.LearningObjective,
		Instructions:      task.Instructions,
		Materials:         task.Materials,
		Attachments:       task.Attachments,
		DurationMinutes:   task.DurationMinutes,
		Collaborative:     task.Collaborative,
		EjeArticulador:    task.EjeArticulador,
		WeekNumber:        task.WeekNumber,
		PublishAt:         task.PublishAt,
		Status:            task.Status,
		IsPublished:       task.Published(),
		CreatedAt:         task.CreatedAt,
	}
}

func toTaskDTOs(tasks []domain.Task) []taskDTO {
	out := make([]taskDTO, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskDTO(task))
	}
	return out
}

type readingDTO struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	ReadingTime int       `json:"readingTime"`
	Topic       string    `json:"topic"`
	PublishAt   time.Time `json:"publishDate"`
	IsPublished bool      `json:"isPublished"`
}

func toReadingDTO(reading domain.Reading) readingDTO {
	return readingDTO{
		ID:          reading.ID,
		Title:       reading.Title,
		Content:     reading.Content,
		Author:      reading.Author,
		ReadingTime: reading.ReadingTime,
		Topic:       reading.Topic,
		PublishAt:   reading.PublishAt,
		IsPublished: reading.Published,
	}
}

type scheduleDTO struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Subject        string    `json:"subject"`
	Topic          string    `json:"topic"`
	WeekNumber     int       `json:"weekNumber"`
	Year           int       `json:"year"`
	PublishDays    []string  `json:"publishDays"`
	PublishTime    string    `json:"publishTime"`
	Active         bool      `json:"isActive"`
	TasksGenerated int       `json:"tasksGenerated"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toScheduleDTO(schedule domain.Schedule) scheduleDTO {
	return scheduleDTO{
		ID:             schedule.ID,
		Name:           schedule.Name,
		Subject:        schedule.Subject,
		Topic:          schedule.Topic,
		WeekNumber:     schedule.WeekNumber,
		Year:           schedule.Year,
		PublishDays:    schedule.PublishDays,
		PublishTime:    schedule.PublishTime,
		Active:         schedule.Active,
		TasksGenerated: schedule.TasksGenerated,
		CreatedAt:      schedule.CreatedAt,
	}
}

// publishedTasks отдаёт задания ученикам. Перед выборкой запускается проход
// публикатора: страховка от дрейфа минутного таймера.
func (h *Handler) publishedTasks(w http.ResponseWriter, r *http.Request) {
	if _, err := h.scheduler.ProcessScheduledPublications(); err != nil {
		h.log.Error().Err(err).Msg("просмотровый проход публикатора не удался")
	}

	var weekNumber *int
	if raw := r.URL.Query().Get("week"); raw != "" {
		week, err := strconv.Atoi(raw)
		if err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("semana inválida"))
			return
		}
		weekNumber = &week
	}

	tasks, err := h.tasks.PublishedTasks(weekNumber, h.tasksLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось выбрать задания")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("las tareas no están disponibles por el momento"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"tasks": toTaskDTOs(tasks)})
}

func (h *Handler) latestReading(w http.ResponseWriter, r *http.Request) {
	if _, err := h.scheduler.ProcessScheduledPublications(); err != nil {
		h.log.Error().Err(err).Msg("просмотровый проход публикатора не удался")
	}

	latest, err := h.readings.Latest()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, errors.New("la lectura de hoy aún no está disponible"))
			return
		}
		h.log.Error().Err(err).Msg("не удалось получить лектуру")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("la lectura no está disponible por el momento"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toReadingDTO(latest))
}

func (h *Handler) adminTasks(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	tasks, total, err := h.tasks.AllTasks(page, h.pageSize)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось выбрать задания для админки")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	pages := (total + h.pageSize - 1) / h.pageSize
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"tasks": toTaskDTOs(tasks),
		"total": total,
		"pages": pages,
	})
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type            domain.TaskType      `json:"type"`
		Title           string               `json:"title"`
		Description     string               `json:"description"`
		Subject         string               `json:"subject"`
		Instructions    []domain.Instruction `json:"instructions"`
		Materials       []string             `json:"materials"`
		Attachments     []domain.Attachment  `json:"attachments"`
		DurationMinutes *int                 `json:"duration"`
		Collaborative   bool                 `json:"isCollaborative"`
		WeekNumber      *int                 `json:"weekNumber"`
		PublishAt       time.Time            `json:"publishDate"`
		Status          domain.TaskStatus    `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("cuerpo inválido"))
		return
	}
	var createdBy *int64
	if claims := httpinfra.ClaimsFromContext(r.Context()); claims != nil {
		createdBy = &claims.UserID
	}
	task, err := h.tasks.CreateManualTask(domain.Task{
		Type:            req.Type,
		Title:           req.Title,
		Description:     req.Description,
		Subject:         req.Subject,
		Instructions:    req.Instructions,
		Materials:       req.Materials,
		Attachments:     req.Attachments,
		DurationMinutes: req.DurationMinutes,
		Collaborative:   req.Collaborative,
		WeekNumber:      req.WeekNumber,
		PublishAt:       req.PublishAt,
		Status:          req.Status,
		CreatedBy:       createdBy,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			httpinfra.WriteError(w, http.StatusBadRequest, err)
			return
		}
		h.log.Error().Err(err).Msg("не удалось создать задание")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toTaskDTO(task))
}

func (h *Handler) publishTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("id inválido"))
		return
	}
	task, err := h.tasks.PublishTask(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, errors.New("tarea no encontrada"))
			return
		}
		h.log.Error().Err(err).Int64("task_id", id).Msg("не удалось опубликовать задание")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toTaskDTO(task))
}

func (h *Handler) generateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		Topic      string `json:"topic"`
		WeekNumber int    `json:"weekNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("cuerpo inválido"))
		return
	}
	if req.WeekNumber == 0 {
		req.WeekNumber = scheduler.WeekNumber(h.now().In(h.loc))
	}
	var createdBy *int64
	if claims := httpinfra.ClaimsFromContext(r.Context()); claims != nil {
		createdBy = &claims.UserID
	}
	task, err := h.tasks.GenerateTask(r.Context(), req.Subject, req.Topic, req.WeekNumber, createdBy)
	if err != nil {
		var parseErr *domain.GenerationParseError
		switch {
		case errors.Is(err, domain.ErrValidation):
			httpinfra.WriteError(w, http.StatusBadRequest, err)
		case errors.As(err, &parseErr):
			h.log.Error().Err(err).Str("raw", parseErr.Raw).Msg("ответ модели не разобран")
			httpinfra.WriteError(w, http.StatusBadGateway, errors.New("error al generar la tarea, intenta de nuevo"))
		default:
			h.log.Error().Err(err).Msg("генерация задания не удалась")
			httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		}
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toTaskDTO(task))
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.ListSchedules()
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось выбрать расписания")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	out := make([]scheduleDTO, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, toScheduleDTO(schedule))
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"schedules": out})
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Subject     string   `json:"subject"`
		Topic       string   `json:"topic"`
		WeekNumber  int      `json:"weekNumber"`
		Year        int      `json:"year"`
		PublishDays []string `json:"publishDays"`
		PublishTime string   `json:"publishTime"`
		Active      *bool    `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("cuerpo inválido"))
		return
	}
	if req.Name == "" || req.Topic == "" || !domain.ValidSubject(req.Subject) {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("nombre, tema y campo formativo son requeridos"))
		return
	}
	if req.Year == 0 {
		req.Year = h.now().In(h.loc).Year()
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	var createdBy *int64
	if claims := httpinfra.ClaimsFromContext(r.Context()); claims != nil {
		createdBy = &claims.UserID
	}
	schedule, err := h.schedules.CreateSchedule(domain.Schedule{
		Name:        req.Name,
		Subject:     req.Subject,
		Topic:       req.Topic,
		WeekNumber:  req.WeekNumber,
		Year:        req.Year,
		PublishDays: req.PublishDays,
		PublishTime: req.PublishTime,
		Active:      active,
		CreatedBy:   createdBy,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось создать расписание")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toScheduleDTO(schedule))
}

func (h *Handler) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "scheduleID"), 10, 64)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("id inválido"))
		return
	}
	var req struct {
		Active *bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("cuerpo inválido"))
		return
	}
	if err := h.schedules.SetScheduleActive(id, *req.Active); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpinfra.WriteError(w, http.StatusNotFound, errors.New("horario no encontrado"))
			return
		}
		h.log.Error().Err(err).Msg("не удалось обновить расписание")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) generateReading(w http.ResponseWriter, r *http.Request) {
	generated, err := h.scheduler.GenerateDailyReading(r.Context())
	if err != nil {
		var parseErr *domain.GenerationParseError
		if errors.As(err, &parseErr) {
			h.log.Error().Err(err).Str("raw", parseErr.Raw).Msg("ответ модели не разобран")
			httpinfra.WriteError(w, http.StatusBadGateway, errors.New("error al generar la lectura, intenta de nuevo"))
			return
		}
		h.log.Error().Err(err).Msg("генерация лектуры не удалась")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("error interno"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toReadingDTO(generated))
}
