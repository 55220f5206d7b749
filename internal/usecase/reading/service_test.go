package reading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"universo-edu/internal/domain"
)

type stubReadingRepo struct {
	existing *domain.Reading
	created  []domain.Reading
	latest   *domain.Reading
}

func (s *stubReadingRepo) CreateReading(reading domain.Reading) (domain.Reading, error) {
	reading.ID = int64(len(s.created) + 1)
	s.created = append(s.created, reading)
	return reading, nil
}
func (s *stubReadingRepo) FindReadingBetween(time.Time, time.Time) (domain.Reading, error) {
	if s.existing != nil {
		return *s.existing, nil
	}
	return domain.Reading{}, domain.ErrNotFound
}
func (s *stubReadingRepo) ListDueReadings(time.Time) ([]domain.Reading, error) { return nil, nil }
func (s *stubReadingRepo) MarkReadingPublished(int64) error                    { return nil }
func (s *stubReadingRepo) LatestPublishedReading(time.Time) (domain.Reading, error) {
	if s.latest != nil {
		return *s.latest, nil
	}
	return domain.Reading{}, domain.ErrNotFound
}

type stubGateway struct {
	response string
	calls    int
}

func (s *stubGateway) Chat(context.Context, []domain.ChatTurn, domain.ChatParams) (string, error) {
	s.calls++
	return s.response, nil
}

const validResponse = `{"title":"La historia de Sofía","content":"<p>texto</p>","author":"María López","topic":"Convivencia Escolar"}`

func newTestService(repo domain.ReadingRepo, gateway domain.ChatCompleter, now time.Time) *Service {
	svc := NewService(repo, gateway, time.UTC, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestGenerateDaily(t *testing.T) {
	repo := &stubReadingRepo{}
	gateway := &stubGateway{response: validResponse}
	now := time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC)
	svc := newTestService(repo, gateway, now)

	reading, err := svc.GenerateDaily(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if reading.Title != "La historia de Sofía" {
		t.Fatalf("неверный заголовок: %q", reading.Title)
	}
	if reading.Published {
		t.Fatalf("лектура создаётся неопубликованной")
	}
	if reading.ReadingTime != 15 {
		t.Fatalf("ожидали время чтения 15 минут, получили %d", reading.ReadingTime)
	}
	want := time.Date(2024, 3, 4, 13, 30, 0, 0, time.UTC)
	if !reading.PublishAt.Equal(want) {
		t.Fatalf("ожидали публикацию %v, получили %v", want, reading.PublishAt)
	}
}

func TestGenerateDailyIdempotent(t *testing.T) {
	existing := domain.Reading{ID: 5, Title: "ya existe"}
	repo := &stubReadingRepo{existing: &existing}
	gateway := &stubGateway{response: validResponse}
	svc := newTestService(repo, gateway, time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC))

	reading, err := svc.GenerateDaily(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if reading.ID != 5 {
		t.Fatalf("ожидали существующую лектуру, получили %+v", reading)
	}
	if gateway.calls != 0 {
		t.Fatalf("при существующей лектуре модель не вызывается")
	}
	if len(repo.created) != 0 {
		t.Fatalf("при существующей лектуре ничего не сохраняется")
	}
}

func TestGenerateDailyParseError(t *testing.T) {
	repo := &stubReadingRepo{}
	svc := newTestService(repo, &stubGateway{response: "no hay JSON aquí"}, time.Now())

	_, err := svc.GenerateDaily(context.Background())
	var parseErr *domain.GenerationParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("ожидали GenerationParseError, получили %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("при ошибке разбора ничего не сохраняется")
	}
}

func TestLatest(t *testing.T) {
	latest := domain.Reading{ID: 2, Title: "última", Published: true}
	svc := newTestService(&stubReadingRepo{latest: &latest}, &stubGateway{}, time.Now())

	reading, err := svc.Latest()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if reading.ID != 2 {
		t.Fatalf("ожидали последнюю опубликованную лектуру")
	}
}
