package domain

import (
	"context"
	"time"
)

// ChatTurn одна реплика для модели.
type ChatTurn struct {
	Role    ChatRole
	Content string
}

// ChatParams параметры генерации. Нулевые значения означают "по умолчанию провайдера".
type ChatParams struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// ChatCompleter единая точка входа к LLM-провайдерам.
// Реализация обязана вернуть какой-то текст даже без доступных провайдеров.
type ChatCompleter interface {
	Chat(ctx context.Context, turns []ChatTurn, params ChatParams) (string, error)
}

// TaskRepo управляет заданиями и объявлениями.
type TaskRepo interface {
	CreateTask(task Task) (Task, error)
	GetTask(id int64) (Task, error)
	ListPublishedTasks(weekNumber *int, now time.Time, limit int) ([]Task, error)
	ListTasks(limit, offset int) ([]Task, int, error)
	ListDueTasks(now time.Time) ([]Task, error)
	SetTaskStatus(id int64, status TaskStatus) error
	PublishTaskNow(id int64, at time.Time) (Task, error)
}

// ReadingRepo управляет лектурами.
type ReadingRepo interface {
	CreateReading(reading Reading) (Reading, error)
	FindReadingBetween(from, to time.Time) (Reading, error)
	ListDueReadings(now time.Time) ([]Reading, error)
	MarkReadingPublished(id int64) error
	LatestPublishedReading(now time.Time) (Reading, error)
}

// ScheduleRepo управляет правилами генерации.
type ScheduleRepo interface {
	CreateSchedule(schedule Schedule) (Schedule, error)
	ListSchedules() ([]Schedule, error)
	ListActiveSchedules(day string, weekNumber int) ([]Schedule, error)
	SetScheduleActive(id int64, active bool) error
	IncrementTasksGenerated(id int64) error
}

// UserRepo управляет учителями и администраторами.
type UserRepo interface {
	CreateUser(user User) (User, error)
	GetUserByEmail(email string) (User, error)
}

// SessionRepo хранит диалоги. Save обновляет TTL неактивности.
type SessionRepo interface {
	GetSession(id string) (ChatSession, error)
	SaveSession(session ChatSession) error
	DeleteSession(id string) error
}
