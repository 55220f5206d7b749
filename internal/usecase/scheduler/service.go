package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"universo-edu/internal/domain"
	"universo-edu/internal/infra/metrics"
)

// TaskGenerator генерирует задание по параметрам расписания.
type TaskGenerator interface {
	GenerateTask(ctx context.Context, subject, topic string, weekNumber int, createdBy *int64) (domain.Task, error)
}

// ReadingGenerator создаёт лектуру дня.
type ReadingGenerator interface {
	GenerateDaily(ctx context.Context) (domain.Reading, error)
}

// Service управляет публикацией контента по времени и регулярной генерацией.
// Рассчитан на один процесс: несколько экземпляров дадут дублирующие
// публикации и генерации.
type Service struct {
	tasks     domain.TaskRepo
	readings  domain.ReadingRepo
	schedules domain.ScheduleRepo
	taskGen   TaskGenerator
	readGen   ReadingGenerator

	loc          *time.Location
	now          func() time.Time
	generateHour int
	readingHour  int
	log          zerolog.Logger
}

// NewService создаёт планировщик. generateHour и readingHour — часы запуска
// генерации заданий и лектуры в будни, в часовом поясе loc.
func NewService(tasks domain.TaskRepo, readings domain.ReadingRepo, schedules domain.ScheduleRepo,
	taskGen TaskGenerator, readGen ReadingGenerator, loc *time.Location,
	generateHour, readingHour int, logger zerolog.Logger) *Service {
	return &Service{
		tasks:        tasks,
		readings:     readings,
		schedules:    schedules,
		taskGen:      taskGen,
		readGen:      readGen,
		loc:          loc,
		now:          time.Now,
		generateHour: generateHour,
		readingHour:  readingHour,
		log:          logger,
	}
}

// Run запускает минутный цикл до отмены контекста. Каждый тик проходит
// публикатор; генерация заданий и лектуры выполняется раз в будний день
// в свои часы.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastGenerateDay, lastReadingDay string
	s.log.Info().Str("tz", s.loc.String()).Msg("планировщик запущен")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("планировщик остановлен")
			return
		case <-ticker.C:
		}

		if _, err := s.ProcessScheduledPublications(); err != nil {
			s.log.Error().Err(err).Msg("проход публикатора завершился ошибкой")
		}

		now := s.now().In(s.loc)
		if isWeekday(now.Weekday()) {
			day := now.Format("2006-01-02")
			if now.Hour() == s.generateHour && lastGenerateDay != day {
				lastGenerateDay = day
				s.GenerateFromSchedules(ctx)
			}
			if now.Hour() == s.readingHour && lastReadingDay != day {
				lastReadingDay = day
				if _, err := s.readGen.GenerateDaily(ctx); err != nil {
					s.log.Error().Err(err).Msg("не удалось сгенерировать лектуру дня")
				}
			}
		}
	}
}

// ProcessScheduledPublications публикует задания и лектуры с наступившей
// датой. Идемпотентно: выборка исключает уже опубликованное, повторный
// или конкурентный вызов безопасен.
func (s *Service) ProcessScheduledPublications() (int, error) {
	start := time.Now()
	defer func() { metrics.PublishSweepSeconds.Observe(time.Since(start).Seconds()) }()

	now := s.now().In(s.loc)
	published := 0

	dueTasks, err := s.tasks.ListDueTasks(now)
	if err != nil {
		return 0, err
	}
	for _, task := range dueTasks {
		if err := s.tasks.SetTaskStatus(task.ID, domain.TaskStatusPublished); err != nil {
			s.log.Error().Err(err).Int64("task_id", task.ID).Msg("не удалось опубликовать задание")
			continue
		}
		metrics.PublishedContentTotal.WithLabelValues(string(task.Type)).Inc()
		s.log.Info().Str("type", string(task.Type)).Str("title", task.Title).Msg("опубликовано")
		published++
	}

	dueReadings, err := s.readings.ListDueReadings(now)
	if err != nil {
		return published, err
	}
	for _, reading := range dueReadings {
		if err := s.readings.MarkReadingPublished(reading.ID); err != nil {
			s.log.Error().Err(err).Int64("reading_id", reading.ID).Msg("не удалось опубликовать лектуру")
			continue
		}
		metrics.PublishedContentTotal.WithLabelValues("reading").Inc()
		s.log.Info().Str("title", reading.Title).Msg("лектура опубликована")
		published++
	}

	return published, nil
}

// GenerateFromSchedules запускает генерацию по активным правилам текущего
// дня недели и ISO-недели. Сбой одного правила не прерывает остальные.
func (s *Service) GenerateFromSchedules(ctx context.Context) {
	now := s.now().In(s.loc)
	day := DayName(now.Weekday())
	week := WeekNumber(now)

	schedules, err := s.schedules.ListActiveSchedules(day, week)
	if err != nil {
		s.log.Error().Err(err).Msg("не удалось выбрать активные расписания")
		return
	}
	s.log.Info().Int("count", len(schedules)).Str("day", day).Int("week", week).Msg("найдены активные расписания")

	for _, schedule := range schedules {
		task, err := s.taskGen.GenerateTask(ctx, schedule.Subject, schedule.Topic, week, schedule.CreatedBy)
		if err != nil {
			s.log.Error().Err(err).Str("schedule", schedule.Name).Msg("генерация по расписанию не удалась")
			continue
		}
		if err := s.schedules.IncrementTasksGenerated(schedule.ID); err != nil {
			s.log.Error().Err(err).Str("schedule", schedule.Name).Msg("не удалось обновить счётчик расписания")
		}
		s.log.Info().Str("title", task.Title).Str("schedule", schedule.Name).Msg("задание по расписанию создано")
	}
}

// GenerateDailyReading принудительно запускает генерацию лектуры дня.
func (s *Service) GenerateDailyReading(ctx context.Context) (domain.Reading, error) {
	return s.readGen.GenerateDaily(ctx)
}

// WeekNumber считает номер ISO-недели: дата сдвигается к четвергу своей
// недели (правило ISO 8601), затем номер выводится от начала года четверга.
func WeekNumber(t time.Time) int {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	dayNum := int(d.Weekday())
	if dayNum == 0 {
		dayNum = 7
	}
	d = d.AddDate(0, 0, 4-dayNum)
	yearStart := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int(d.Sub(yearStart) / (24 * time.Hour))
	return (days + 7) / 7
}

// DayName возвращает имя дня недели в нижнем регистре, как хранится
// в publish_days расписаний.
func DayName(day time.Weekday) string {
	return strings.ToLower(day.String())
}

func isWeekday(day time.Weekday) bool {
	return day >= time.Monday && day <= time.Friday
}
