package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"universo-edu/internal/domain"
	"universo-edu/internal/infra/metrics"
)

// Postgres реализует репозитории контента на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.TaskRepo     = (*Postgres)(nil)
	_ domain.ReadingRepo  = (*Postgres)(nil)
	_ domain.ScheduleRepo = (*Postgres)(nil)
	_ domain.UserRepo     = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

const taskColumns = `id, type, title, description, subject, learning_objective, instructions, materials, attachments,
duration_minutes, collaborative, eje_articulador, difficulty, week_number, publish_at, status, created_by, created_at, updated_at`

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		task            domain.Task
		instructionsRaw []byte
		materialsRaw    []byte
		attachmentsRaw  []byte
	)
	err := row.Scan(
		&task.ID, &task.Type, &task.Title, &task.Description, &task.Subject, &task.LearningObjective,
		&instructionsRaw, &materialsRaw, &attachmentsRaw,
		&task.DurationMinutes, &task.Collaborative, &task.EjeArticulador, &task.Difficulty,
		&task.WeekNumber, &task.PublishAt, &task.Status, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return domain.Task{}, err
	}
	if len(instructionsRaw) > 0 {
		if err := json.Unmarshal(instructionsRaw, &task.Instructions); err != nil {
			return domain.Task{}, fmt.Errorf("декодирование инструкций: %w", err)
		}
	}
	if len(materialsRaw) > 0 {
		if err := json.Unmarshal(materialsRaw, &task.Materials); err != nil {
			return domain.Task{}, fmt.Errorf("декодирование материалов: %w", err)
		}
	}
	if len(attachmentsRaw) > 0 {
		if err := json.Unmarshal(attachmentsRaw, &task.Attachments); err != nil {
			return domain.Task{}, fmt.Errorf("декодирование вложений: %w", err)
		}
	}
	return task, nil
}

// CreateTask сохраняет задание или объявление.
func (p *Postgres) CreateTask(task domain.Task) (domain.Task, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	if task.Type == "" {
		task.Type = domain.TaskTypeTask
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusDraft
	}
	instructions, err := json.Marshal(task.Instructions)
	if err != nil {
		return domain.Task{}, fmt.Errorf("кодирование инструкций: %w", err)
	}
	materials, err := json.Marshal(task.Materials)
	if err != nil {
		return domain.Task{}, fmt.Errorf("кодирование материалов: %w", err)
	}
	attachments, err := json.Marshal(task.Attachments)
	if err != nil {
		return domain.Task{}, fmt.Errorf("кодирование вложений: %w", err)
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO tasks (type, title, description, subject, learning_objective, instructions, materials, attachments,
duration_minutes, collaborative, eje_articulador, difficulty, week_number, publish_at, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
RETURNING `+taskColumns, task.Type, task.Title, task.Description, task.Subject, task.LearningObjective,
		instructions, materials, attachments, task.DurationMinutes, task.Collaborative,
		task.EjeArticulador, task.Difficulty, task.WeekNumber, task.PublishAt, task.Status, task.CreatedBy)
	created, err := scanTask(row)
	metrics.ObserveNetworkRequest("postgres", "task_insert", "tasks", start, err)
	if err != nil {
		return domain.Task{}, fmt.Errorf("создание задания: %w", err)
	}
	return created, nil
}

// GetTask возвращает задание по идентификатору.
func (p *Postgres) GetTask(id int64) (domain.Task, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	metrics.ObserveNetworkRequest("postgres", "task_get", "tasks", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, fmt.Errorf("получение задания: %w", err)
	}
	return task, nil
}

// ListPublishedTasks возвращает опубликованные задания для учеников.
func (p *Postgres) ListPublishedTasks(weekNumber *int, now time.Time, limit int) ([]domain.Task, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 AND publish_at <= $2`
	args := []any{domain.TaskStatusPublished, now}
	if weekNumber != nil {
		query += ` AND week_number = $3`
		args = append(args, *weekNumber)
	}
	query += fmt.Sprintf(` ORDER BY publish_at DESC LIMIT %d`, limit)

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "task_list_published", "tasks", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка опубликованных заданий: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListTasks возвращает страницу заданий и общее количество (для админки).
func (p *Postgres) ListTasks(limit, offset int) ([]domain.Task, int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "task_list", "tasks", start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("выборка заданий: %w", err)
	}
	defer rows.Close()
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM tasks`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("подсчёт заданий: %w", err)
	}
	return tasks, total, nil
}

// ListDueTasks возвращает запланированные задания с наступившей датой публикации.
func (p *Postgres) ListDueTasks(now time.Time) ([]domain.Task, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = $1 AND publish_at <= $2`,
		domain.TaskStatusScheduled, now)
	metrics.ObserveNetworkRequest("postgres", "task_list_due", "tasks", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка заданий к публикации: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// SetTaskStatus переводит задание в указанное состояние.
func (p *Postgres) SetTaskStatus(id int64, status domain.TaskStatus) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE tasks SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	metrics.ObserveNetworkRequest("postgres", "task_set_status", "tasks", start, err)
	if err != nil {
		return fmt.Errorf("обновление статуса задания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PublishTaskNow публикует задание вручную, выставляя дату публикации в now.
func (p *Postgres) PublishTaskNow(id int64, at time.Time) (domain.Task, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE tasks SET status = $1, publish_at = $2, updated_at = now() WHERE id = $3
RETURNING `+taskColumns, domain.TaskStatusPublished, at, id)
	task, err := scanTask(row)
	metrics.ObserveNetworkRequest("postgres", "task_publish_now", "tasks", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, fmt.Errorf("публикация задания: %w", err)
	}
	return task, nil
}

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение задания: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

const readingColumns = `id, title, content, author, reading_time, topic, publish_at, published, created_at`

func scanReading(row pgx.Row) (domain.Reading, error) {
	var reading domain.Reading
	err := row.Scan(&reading.ID, &reading.Title, &reading.Content, &reading.Author, &reading.ReadingTime,
		&reading.Topic, &reading.PublishAt, &reading.Published, &reading.CreatedAt)
	return reading, err
}

// CreateReading сохраняет лектуру.
func (p *Postgres) CreateReading(reading domain.Reading) (domain.Reading, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO readings (title, content, author, reading_time, topic, publish_at, published, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,now())
RETURNING `+readingColumns,
		reading.Title, reading.Content, reading.Author, reading.ReadingTime, reading.Topic, reading.PublishAt, reading.Published)
	created, err := scanReading(row)
	metrics.ObserveNetworkRequest("postgres", "reading_insert", "readings", start, err)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("создание лектуры: %w", err)
	}
	return created, nil
}

// FindReadingBetween возвращает лектуру с датой публикации в интервале.
func (p *Postgres) FindReadingBetween(from, to time.Time) (domain.Reading, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+readingColumns+` FROM readings WHERE publish_at >= $1 AND publish_at <= $2 LIMIT 1`, from, to)
	reading, err := scanReading(row)
	metrics.ObserveNetworkRequest("postgres", "reading_find_between", "readings", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reading{}, domain.ErrNotFound
		}
		return domain.Reading{}, fmt.Errorf("поиск лектуры: %w", err)
	}
	return reading, nil
}

// ListDueReadings возвращает неопубликованные лектуры с наступившей датой.
func (p *Postgres) ListDueReadings(now time.Time) ([]domain.Reading, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+readingColumns+` FROM readings WHERE published = false AND publish_at <= $1`, now)
	metrics.ObserveNetworkRequest("postgres", "reading_list_due", "readings", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка лектур к публикации: %w", err)
	}
	defer rows.Close()

	var readings []domain.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение лектуры: %w", err)
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

// MarkReadingPublished помечает лектуру опубликованной.
func (p *Postgres) MarkReadingPublished(id int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE readings SET published = true WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "reading_publish", "readings", start, err)
	if err != nil {
		return fmt.Errorf("публикация лектуры: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LatestPublishedReading возвращает самую свежую опубликованную лектуру.
func (p *Postgres) LatestPublishedReading(now time.Time) (domain.Reading, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+readingColumns+` FROM readings WHERE published = true AND publish_at <= $1
ORDER BY publish_at DESC LIMIT 1`, now)
	reading, err := scanReading(row)
	metrics.ObserveNetworkRequest("postgres", "reading_latest", "readings", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reading{}, domain.ErrNotFound
		}
		return domain.Reading{}, fmt.Errorf("получение лектуры: %w", err)
	}
	return reading, nil
}

const scheduleColumns = `id, name, subject, topic, week_number, year, publish_days, publish_time, timezone,
active, tasks_generated, created_by, created_at, updated_at`

func scanSchedule(row pgx.Row) (domain.Schedule, error) {
	var schedule domain.Schedule
	err := row.Scan(&schedule.ID, &schedule.Name, &schedule.Subject, &schedule.Topic, &schedule.WeekNumber,
		&schedule.Year, &schedule.PublishDays, &schedule.PublishTime, &schedule.Timezone,
		&schedule.Active, &schedule.TasksGenerated, &schedule.CreatedBy, &schedule.CreatedAt, &schedule.UpdatedAt)
	return schedule, err
}

// CreateSchedule сохраняет правило генерации.
func (p *Postgres) CreateSchedule(schedule domain.Schedule) (domain.Schedule, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	if schedule.Timezone == "" {
		schedule.Timezone = "America/Mexico_City"
	}
	if schedule.PublishTime == "" {
		schedule.PublishTime = "13:00"
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO schedules (name, subject, topic, week_number, year, publish_days, publish_time, timezone, active, tasks_generated, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,now(),now())
RETURNING `+scheduleColumns,
		schedule.Name, schedule.Subject, schedule.Topic, schedule.WeekNumber, schedule.Year,
		schedule.PublishDays, schedule.PublishTime, schedule.Timezone, schedule.Active, schedule.CreatedBy)
	created, err := scanSchedule(row)
	metrics.ObserveNetworkRequest("postgres", "schedule_insert", "schedules", start, err)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("создание расписания: %w", err)
	}
	return created, nil
}

// ListSchedules возвращает все правила.
func (p *Postgres) ListSchedules() ([]domain.Schedule, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at DESC`)
	metrics.ObserveNetworkRequest("postgres", "schedule_list", "schedules", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка расписаний: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ListActiveSchedules возвращает активные правила для дня недели и номера недели.
func (p *Postgres) ListActiveSchedules(day string, weekNumber int) ([]domain.Schedule, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	day = strings.ToLower(day)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+scheduleColumns+` FROM schedules
WHERE active = true AND week_number = $1 AND $2 = ANY(publish_days)`, weekNumber, day)
	metrics.ObserveNetworkRequest("postgres", "schedule_list_active", "schedules", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка активных расписаний: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// SetScheduleActive включает или выключает правило.
func (p *Postgres) SetScheduleActive(id int64, active bool) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE schedules SET active = $1, updated_at = now() WHERE id = $2`, active, id)
	metrics.ObserveNetworkRequest("postgres", "schedule_set_active", "schedules", start, err)
	if err != nil {
		return fmt.Errorf("обновление расписания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementTasksGenerated увеличивает счётчик сгенерированных заданий.
func (p *Postgres) IncrementTasksGenerated(id int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE schedules SET tasks_generated = tasks_generated + 1, updated_at = now() WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "schedule_increment", "schedules", start, err)
	if err != nil {
		return fmt.Errorf("обновление счётчика расписания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const userColumns = `id, email, password_hash, name, role, school, active, created_at`

// CreateUser сохраняет учителя или администратора.
func (p *Postgres) CreateUser(user domain.User) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	if user.Role == "" {
		user.Role = domain.RoleTeacher
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO users (email, password_hash, name, role, school, active, created_at)
VALUES (lower($1),$2,$3,$4,$5,true,now())
RETURNING `+userColumns,
		strings.TrimSpace(user.Email), user.PasswordHash, user.Name, user.Role, user.School)
	var created domain.User
	err := row.Scan(&created.ID, &created.Email, &created.PasswordHash, &created.Name, &created.Role,
		&created.School, &created.Active, &created.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "user_insert", "users", start, err)
	if err != nil {
		return domain.User{}, fmt.Errorf("создание пользователя: %w", err)
	}
	return created, nil
}

// GetUserByEmail возвращает пользователя по почте.
func (p *Postgres) GetUserByEmail(email string) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1) AND active = true`, strings.TrimSpace(email))
	var user domain.User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Role, &user.School, &user.Active, &user.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "user_get", "users", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение расписания: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}
