package taskgen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"universo-edu/internal/domain"
)

type stubTaskRepo struct {
	created []domain.Task
}

func (s *stubTaskRepo) CreateTask(task domain.Task) (domain.Task, error) {
	task.ID = int64(len(s.created) + 1)
	s.created = append(s.created, task)
	return task, nil
}
func (s *stubTaskRepo) GetTask(int64) (domain.Task, error) { return domain.Task{}, domain.ErrNotFound }
func (s *stubTaskRepo) ListPublishedTasks(*int, time.Time, int) ([]domain.Task, error) {
	return nil, nil
}
func (s *stubTaskRepo) ListTasks(int, int) ([]domain.Task, int, error)         { return nil, 0, nil }
func (s *stubTaskRepo) ListDueTasks(time.Time) ([]domain.Task, error)          { return nil, nil }
func (s *stubTaskRepo) SetTaskStatus(int64, domain.TaskStatus) error           { return nil }
func (s *stubTaskRepo) PublishTaskNow(int64, time.Time) (domain.Task, error) {
	return domain.Task{}, domain.ErrNotFound
}

type stubGateway struct {
	response string
	err      error
}

func (s *stubGateway) Chat(context.Context, []domain.ChatTurn, domain.ChatParams) (string, error) {
	return s.response, s.err
}

func newTestService(repo domain.TaskRepo, gateway domain.ChatCompleter, now time.Time) *Service {
	svc := NewService(repo, gateway, time.UTC, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc
}

const validResponse = `Aquí está el proyecto:
{"title":"Detectives de Fracciones","description":"desc","learningObjective":"obj",
"instructions":[{"step":1,"text":"uno"},{"step":2,"text":"dos"}],
"materials":["Cuaderno"],"duration":"30 minutos","isCollaborative":true,"ejeArticulador":"Inclusión"}`

func TestGenerateTask(t *testing.T) {
	repo := &stubTaskRepo{}
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) // понедельник
	svc := newTestService(repo, &stubGateway{response: validResponse}, now)

	task, err := svc.GenerateTask(context.Background(), domain.SubjectSaberes, "fracciones", 10, nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if task.Title != "Detectives de Fracciones" {
		t.Fatalf("неверный заголовок: %q", task.Title)
	}
	if task.Status != domain.TaskStatusScheduled {
		t.Fatalf("ожидали статус scheduled, получили %q", task.Status)
	}
	if task.DurationMinutes == nil || *task.DurationMinutes != 30 {
		t.Fatalf("ожидали 30 минут, получили %v", task.DurationMinutes)
	}
	if task.WeekNumber == nil || *task.WeekNumber != 10 {
		t.Fatalf("ожидали номер недели 10")
	}
	want := time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC)
	if !task.PublishAt.Equal(want) {
		t.Fatalf("ожидали публикацию %v, получили %v", want, task.PublishAt)
	}
	if len(repo.created) != 1 {
		t.Fatalf("ожидали одну запись в репозитории")
	}
}

func TestGenerateTaskUnknownSubject(t *testing.T) {
	svc := newTestService(&stubTaskRepo{}, &stubGateway{response: validResponse}, time.Now())
	_, err := svc.GenerateTask(context.Background(), "Astrología", "tema", 1, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
}

func TestGenerateTaskParseError(t *testing.T) {
	repo := &stubTaskRepo{}
	svc := newTestService(repo, &stubGateway{response: "lo siento, no puedo"}, time.Now())

	_, err := svc.GenerateTask(context.Background(), domain.SubjectSaberes, "fracciones", 1, nil)
	var parseErr *domain.GenerationParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("ожидали GenerationParseError, получили %v", err)
	}
	if parseErr.Raw != "lo siento, no puedo" {
		t.Fatalf("ошибка должна нести исходный ответ: %q", parseErr.Raw)
	}
	if len(repo.created) != 0 {
		t.Fatalf("при ошибке разбора ничего не сохраняется")
	}
}

func TestNextPublishDate(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "утро буднего дня",
			now:  time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), // понедельник
			want: time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "после 13:00 переносим на завтра",
			now:  time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "ровно 13:00 не сегодня",
			now:  time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "пятница после обеда уходит на понедельник",
			now:  time.Date(2024, 3, 8, 14, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "суббота уходит на понедельник",
			now:  time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "воскресенье уходит на понедельник",
			now:  time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextPublishDate(tc.now)
			if !got.Equal(tc.want) {
				t.Fatalf("NextPublishDate(%v) = %v, ожидали %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestParseDurationMinutes(t *testing.T) {
	if got := parseDurationMinutes("30 minutos"); got == nil || *got != 30 {
		t.Fatalf("ожидали 30, получили %v", got)
	}
	if got := parseDurationMinutes("45"); got == nil || *got != 45 {
		t.Fatalf("ожидали 45, получили %v", got)
	}
	if got := parseDurationMinutes("media hora"); got != nil {
		t.Fatalf("нечисловая длительность должна давать nil")
	}
	if got := parseDurationMinutes(""); got != nil {
		t.Fatalf("пустая строка должна давать nil")
	}
}

func TestCreateManualTaskValidation(t *testing.T) {
	svc := newTestService(&stubTaskRepo{}, &stubGateway{}, time.Now())

	if _, err := svc.CreateManualTask(domain.Task{Type: domain.TaskTypeTask}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("пустой заголовок должен отклоняться: %v", err)
	}
	if _, err := svc.CreateManualTask(domain.Task{Type: domain.TaskTypeTask, Title: "t", Subject: "x"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("неизвестное поле должно отклоняться: %v", err)
	}
	if _, err := svc.CreateManualTask(domain.Task{Type: domain.TaskTypeTask, Title: "t", Subject: domain.SubjectSaberes, Status: domain.TaskStatusPublished}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("published как начальный статус должен отклоняться: %v", err)
	}
}

func TestCreateManualTaskScheduledGetsPublishDate(t *testing.T) {
	repo := &stubTaskRepo{}
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &stubGateway{}, now)

	task, err := svc.CreateManualTask(domain.Task{
		Type: domain.TaskTypeNotice, Title: "aviso", Status: domain.TaskStatusScheduled,
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if task.PublishAt.IsZero() {
		t.Fatalf("ожидали подстановку даты публикации")
	}
}
