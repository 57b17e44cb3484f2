// service содержит оркестратор events-parser: обход стран, источников
// и листингов из конфигурации с общими соединениями на весь проход.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pribylovaa/go-events-parser/internal/browser"
	"github.com/pribylovaa/go-events-parser/internal/config"
	"github.com/pribylovaa/go-events-parser/internal/models"
	"github.com/pribylovaa/go-events-parser/internal/storage"
)

// ErrUnknownAdapter — в конфигурации указан адаптер, которого нет в реестре.
var ErrUnknownAdapter = errors.New("unknown adapter")

// Publisher доставляет событие в брокер. Ошибка означает, что событие
// не доставлено после всех попыток.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// CityResolver определяет город по координатам; "" — города нет.
// Ошибки внешнего API наружу не выходят.
type CityResolver interface {
	CityFrom(ctx context.Context, lat, lon string) string
}

// Job — один листинг источника.
type Job struct {
	Country  string
	Source   string
	Category string
	URL      string
	// Currency — код валюты источника для распознанных цен.
	Currency string
}

// Deps — общие ресурсы прохода, которые получает адаптер.
type Deps struct {
	Dedup      storage.Dedup
	Publisher  Publisher
	Geocoder   CityResolver
	Browser    browser.Browser
	Navigation browser.NavOptions
}

// Adapter извлекает события одного листинга.
//
// Требования к реализации:
//  1. ошибка навигации по листингу возвращается как ошибка (источник прерывается);
//  2. сбой отдельной карточки логируется и не прерывает листинг;
//  3. возвращаются только опубликованные события, даже вместе с ошибкой;
//  4. реализация уважает ctx и проверяет его между карточками.
type Adapter interface {
	Parse(ctx context.Context, job Job) ([]models.Event, error)
}

// AdapterFactory создаёт адаптер на один проход.
type AdapterFactory func(deps Deps) Adapter

// Registry — адаптеры по имени из конфигурации (sources[].adapter).
type Registry map[string]AdapterFactory

// GeocoderFactory создаёт геокодер со свежим кэшем на каждый проход.
type GeocoderFactory func() CityResolver

// RunStatus — сведения о последнем завершённом проходе для /status.
type RunStatus struct {
	RunID         string         `json:"run_id"`
	Events        int            `json:"events"`
	PerSource     map[string]int `json:"per_source"`
	FailedSources []string       `json:"failed_sources,omitempty"`
	FinishedAt    time.Time      `json:"finished_at"`
	Duration      string         `json:"duration"`
	Error         string         `json:"error,omitempty"`
}

// Service — оркестратор проходов.
type Service struct {
	cfg         config.Config
	deps        Deps
	newGeocoder GeocoderFactory
	registry    Registry

	mu   sync.RWMutex
	last *RunStatus
}

// New создаёт Service. Все адаптеры из конфигурации должны быть в реестре.
// deps.Geocoder игнорируется: геокодер создаётся на каждый проход через newGeocoder.
func New(cfg config.Config, deps Deps, newGeocoder GeocoderFactory, registry Registry) (*Service, error) {
	const op = "service.New"

	for _, country := range cfg.Countries {
		for _, src := range country.Sources {
			if _, ok := registry[src.Adapter]; !ok {
				return nil, fmt.Errorf("%s: source %q: %w %q", op, src.Name, ErrUnknownAdapter, src.Adapter)
			}
		}
	}
	if newGeocoder == nil {
		return nil, fmt.Errorf("%s: geocoder factory is required", op)
	}

	return &Service{
		cfg:         cfg,
		deps:        deps,
		newGeocoder: newGeocoder,
		registry:    registry,
	}, nil
}

// LastRun возвращает статус последнего прохода; ok=false — проходов ещё не было.
func (s *Service) LastRun() (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return RunStatus{}, false
	}

	return *s.last, true
}

func (s *Service) setLastRun(sum Summary, err error) {
	st := &RunStatus{
		RunID:         sum.RunID,
		Events:        sum.Total(),
		PerSource:     sum.PerSource,
		FailedSources: sum.FailedSources,
		FinishedAt:    time.Now().UTC(),
		Duration:      sum.Duration.String(),
	}
	if err != nil {
		st.Error = err.Error()
	}

	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
}
