package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-events-parser/internal/metrics"
	"github.com/pribylovaa/go-events-parser/internal/models"
	"github.com/pribylovaa/go-events-parser/internal/pkg/log"
)

// Summary — итог одного прохода.
type Summary struct {
	RunID string
	// Events — опубликованные события в порядке обхода.
	Events []models.Event
	// PerSource — число событий по источникам.
	PerSource map[string]int
	// FailedSources — источники, прерванные ошибкой листинга.
	FailedSources []string
	Duration      time.Duration
}

// Total — общее число событий прохода.
func (s Summary) Total() int { return len(s.Events) }

// RunOnce выполняет один проход по всем странам, источникам и листингам.
//
// Ошибка листинга прерывает оставшиеся листинги этого источника, остальные
// источники обрабатываются. Возвращённая ошибка объединяет ошибки всех
// прерванных источников; Summary заполнен и в этом случае.
func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	const op = "service.RunOnce"

	start := time.Now()
	sum := Summary{
		RunID:     uuid.NewString(),
		PerSource: make(map[string]int),
	}

	ctx = log.With(ctx, slog.String("run_id", sum.RunID))
	lg := log.From(ctx)
	lg.Info("run_start", slog.String("op", op), slog.Int("countries", len(s.cfg.Countries)))

	deps := s.deps
	deps.Geocoder = s.newGeocoder()

	var errs []error

sources:
	for _, country := range s.cfg.Countries {
		for _, src := range country.Sources {
			if err := ctx.Err(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", op, err))
				break sources
			}

			adapter := s.registry[src.Adapter](deps)

			for _, page := range src.Pages {
				job := Job{
					Country:  country.Name,
					Source:   src.Name,
					Category: page.Category,
					URL:      page.URL,
					Currency: src.Currency,
				}

				events, err := adapter.Parse(ctx, job)
				sum.Events = append(sum.Events, events...)
				sum.PerSource[src.Name] += len(events)

				if err != nil {
					if ctx.Err() != nil {
						errs = append(errs, fmt.Errorf("%s: %w", op, err))
						break sources
					}

					metrics.ListingsFailed.WithLabelValues(src.Name).Inc()
					lg.Error("source_aborted",
						slog.String("op", op),
						slog.String("source", src.Name),
						slog.String("url", page.URL),
						slog.String("err", err.Error()),
					)
					sum.FailedSources = append(sum.FailedSources, src.Name)
					errs = append(errs, fmt.Errorf("%s: source %s: %w", op, src.Name, err))
					break
				}

				lg.Info("listing_done",
					slog.String("op", op),
					slog.String("source", src.Name),
					slog.String("category", page.Category),
					slog.Int("events", len(events)),
				)
			}
		}
	}

	sum.Duration = time.Since(start)
	err := errors.Join(errs...)

	result := "ok"
	switch {
	case ctx.Err() != nil:
		result = "canceled"
	case err != nil:
		result = "partial"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()
	s.setLastRun(sum, err)

	lg.Info("run_done",
		slog.String("op", op),
		slog.String("result", result),
		slog.Int("events", sum.Total()),
		slog.Int("failed_sources", len(sum.FailedSources)),
		slog.Duration("duration", sum.Duration),
	)

	return sum, err
}

// Start запускает периодические проходы с интервалом cfg.Schedule.Interval.
// Первый проход выполняется сразу. Ошибки прохода логируются,
// останавливается по ctx.
func (s *Service) Start(ctx context.Context) error {
	const op = "service.Start"

	interval := s.cfg.Schedule.Interval
	if interval <= 0 {
		return fmt.Errorf("%s: schedule interval must be positive", op)
	}

	lg := log.From(ctx)
	lg.Info("schedule_start", slog.String("op", op), slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			lg.Info("schedule_stop", slog.String("op", op))
			return nil
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Service) runTick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		log.From(ctx).Warn("run_tick_error",
			slog.String("op", "service.Start"),
			slog.String("err", err.Error()),
		)
	}
}
