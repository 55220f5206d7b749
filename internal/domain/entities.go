package domain

import "time"

// TaskStatus описывает состояние публикации задания.
type TaskStatus string

const (
	// TaskStatusDraft черновик, публикуется только вручную.
	TaskStatusDraft TaskStatus = "draft"
	// TaskStatusScheduled ожидает наступления даты публикации.
	TaskStatusScheduled TaskStatus = "scheduled"
	// TaskStatusPublished опубликовано, терминальное состояние.
	TaskStatusPublished TaskStatus = "published"
)

// TaskType различает задание и объявление.
type TaskType string

const (
	// TaskTypeTask учебное задание.
	TaskTypeTask TaskType = "task"
	// TaskTypeNotice объявление для учеников.
	TaskTypeNotice TaskType = "notice"
)

// Instruction один шаг задания.
type Instruction struct {
	Step int    `json:"step"`
	Text string `json:"text"`
}

// AttachmentKind тип вложения задания.
type AttachmentKind string

const (
	AttachmentVideo AttachmentKind = "video"
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment вложение задания.
type Attachment struct {
	Kind  AttachmentKind `json:"kind"`
	URL   string         `json:"url"`
	Title string         `json:"title"`
}

// Task описывает задание или объявление для учеников.
type Task struct {
	ID                int64
	Type              TaskType
	Title             string
	Description       string
	Subject           string
	LearningObjective string
	Instructions      []Instruction
	Materials         []string
	Attachments       []Attachment
	DurationMinutes   *int
	Collaborative     bool
	EjeArticulador    string
	Difficulty        string
	WeekNumber        *int
	PublishAt         time.Time
	Status            TaskStatus
	CreatedBy         *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Published выводится из статуса, отдельный флаг наружу считается на границе API.
func (t Task) Published() bool {
	return t.Status == TaskStatusPublished
}

// Reading представляет "Лектуру дня".
type Reading struct {
	ID          int64
	Title       string
	Content     string
	Author      string
	ReadingTime int
	Topic       string
	PublishAt   time.Time
	Published   bool
	CreatedAt   time.Time
}

// Schedule правило регулярной генерации заданий.
type Schedule struct {
	ID             int64
	Name           string
	Subject        string
	Topic          string
	WeekNumber     int
	Year           int
	PublishDays    []string
	PublishTime    string
	Timezone       string
	Active         bool
	TasksGenerated int
	CreatedBy      *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChatRole роль участника диалога.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage одно сообщение диалога.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession хранит память одного анонимного диалога с учеником.
type ChatSession struct {
	SessionID      string        `json:"session_id"`
	Subject        string        `json:"subject"`
	Messages       []ChatMessage `json:"messages"`
	Active         bool          `json:"active"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

// UserRole роль аутентифицированного пользователя.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
)

// User администратор или учитель. Ученики работают анонимно.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	Role         UserRole
	School       string
	Active       bool
	CreatedAt    time.Time
}
