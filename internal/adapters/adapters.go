// adapters — общий конвейер извлечения событий из листинга:
// листинг -> ссылки -> (дедуп -> карточка -> поля -> город -> нормализация -> публикация).
//
// Источник описывает только разметку (Extractor); порядок шагов,
// повторы навигации и работа с хранилищем и брокером живут здесь.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/pribylovaa/go-events-parser/internal/browser"
	"github.com/pribylovaa/go-events-parser/internal/metrics"
	"github.com/pribylovaa/go-events-parser/internal/models"
	"github.com/pribylovaa/go-events-parser/internal/normalize"
	"github.com/pribylovaa/go-events-parser/internal/pkg/log"
	"github.com/pribylovaa/go-events-parser/internal/service"
)

// DateRow — строка расписания карточки.
type DateRow struct {
	Date string
	Time string
}

// RawCard — сырые поля карточки; пустая строка — поля нет.
type RawCard struct {
	Title       string
	Description string
	Venue       string
	Address     string
	ImgURL      string
	Price       string
	Latitude    string
	Longitude   string
	Dates       []DateRow
}

// Extractor знает разметку одного сайта.
type Extractor interface {
	// ListingReady — селектор, появление которого означает загруженный листинг.
	ListingReady() string
	// DetailReady — то же для карточки.
	DetailReady() string
	// Links возвращает href карточек в порядке листинга (могут быть относительными).
	Links(page browser.Page) []string
	// Card читает поля карточки. Отсутствующий элемент даёт пустое поле, не ошибку.
	Card(page browser.Page) RawCard
}

// Runner реализует service.Adapter поверх Extractor.
type Runner struct {
	deps service.Deps
	ex   Extractor
}

var _ service.Adapter = (*Runner)(nil)

// New создаёт Runner.
func New(deps service.Deps, ex Extractor) *Runner {
	return &Runner{deps: deps, ex: ex}
}

// Parse обрабатывает один листинг.
//
// Ошибка навигации по листингу прерывает листинг. Сбой карточки (хранилище
// дедупликации, навигация, публикация) логируется, обработка идёт дальше.
// При отмене ctx возвращаются уже опубликованные события.
func (r *Runner) Parse(ctx context.Context, job service.Job) ([]models.Event, error) {
	const op = "adapters.Parse"

	ctx = log.With(ctx, slog.String("source", job.Source), slog.String("category", job.Category))
	lg := log.From(ctx)

	links, err := r.listing(ctx, job.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: listing %s: %w", op, job.URL, err)
	}
	lg.Info("listing_opened",
		slog.String("op", op),
		slog.String("url", job.URL),
		slog.Int("links", len(links)),
	)

	var out []models.Event
	// (url|starts_at) внутри одного листинга.
	seen := make(map[string]struct{})

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("%s: %w", op, err)
		}

		if ev, ok := r.card(ctx, job, link, seen); ok {
			out = append(out, ev)
		}
	}

	lg.Info("listing_processed",
		slog.String("op", op),
		slog.String("url", job.URL),
		slog.Int("events", len(out)),
	)

	return out, nil
}

// listing открывает листинг и возвращает абсолютные ссылки без повторов.
func (r *Runner) listing(ctx context.Context, listingURL string) ([]string, error) {
	page, err := r.deps.Browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer closePage(ctx, page)

	if err := browser.Navigate(ctx, page, listingURL, r.ex.ListingReady(), r.deps.Navigation); err != nil {
		return nil, err
	}

	base := page.URL()
	if base == "" {
		base = listingURL
	}

	var (
		links []string
		dup   = make(map[string]struct{})
	)
	for _, href := range r.ex.Links(page) {
		abs, ok := resolve(base, href)
		if !ok {
			continue
		}
		if _, exists := dup[abs]; exists {
			continue
		}
		dup[abs] = struct{}{}
		links = append(links, abs)
	}

	return links, nil
}

// card проводит одну ссылку через дедуп, извлечение и публикацию.
// ok=true — событие опубликовано.
func (r *Runner) card(ctx context.Context, job service.Job, link string, seen map[string]struct{}) (models.Event, bool) {
	const op = "adapters.card"

	lg := log.From(ctx).With(slog.String("link", link))

	// Без ответа хранилища карточка не считается новой: не открывается и не публикуется.
	isNew, err := r.deps.Dedup.IsNew(ctx, job.Source, link)
	if err != nil {
		metrics.CardsFailed.WithLabelValues(job.Source, metrics.StageDedup).Inc()
		lg.Warn("dedup_check_failed", slog.String("op", op), slog.String("err", err.Error()))
		return models.Event{}, false
	}
	if !isNew {
		metrics.CardsSkipped.WithLabelValues(job.Source, metrics.SkipSeen).Inc()
		lg.Debug("card_skipped_seen", slog.String("op", op))
		return models.Event{}, false
	}

	raw, err := r.detail(ctx, link)
	if err != nil {
		metrics.CardsFailed.WithLabelValues(job.Source, metrics.StageNavigate).Inc()
		lg.Warn("card_navigation_failed", slog.String("op", op), slog.String("err", err.Error()))
		return models.Event{}, false
	}

	if strings.TrimSpace(raw.Title) == "" {
		metrics.CardsSkipped.WithLabelValues(job.Source, metrics.SkipNoTitle).Inc()
		lg.Info("card_skipped_no_title", slog.String("op", op))
		return models.Event{}, false
	}

	ev := r.build(ctx, job, link, raw)

	key := link + "|"
	if ev.StartsAt != nil {
		key += *ev.StartsAt
	}
	if _, dup := seen[key]; dup {
		metrics.CardsSkipped.WithLabelValues(job.Source, metrics.SkipDuplicate).Inc()
		lg.Debug("card_skipped_duplicate", slog.String("op", op))
		return models.Event{}, false
	}
	seen[key] = struct{}{}

	// Отметка «обработано» ставится только после успешной публикации:
	// недоставленное событие будет повторено следующим проходом.
	if err := r.deps.Publisher.Publish(ctx, ev); err != nil {
		metrics.CardsFailed.WithLabelValues(job.Source, metrics.StagePublish).Inc()
		lg.Error("publish_failed", slog.String("op", op), slog.String("err", err.Error()))
		return models.Event{}, false
	}
	metrics.EventsPublished.WithLabelValues(job.Source).Inc()

	if err := r.deps.Dedup.MarkSeen(ctx, job.Source, link); err != nil {
		lg.Warn("mark_seen_failed", slog.String("op", op), slog.String("err", err.Error()))
	}

	payload, err := json.Marshal(ev)
	if err == nil {
		err = r.deps.Dedup.SavePayload(ctx, link, payload)
	}
	if err != nil {
		lg.Warn("save_payload_failed", slog.String("op", op), slog.String("err", err.Error()))
	}

	lg.Info("event_published", slog.String("op", op), slog.String("title", ev.Title))

	return ev, true
}

// detail открывает карточку в собственной странице и читает сырые поля.
// Страница закрывается на любом пути выхода.
func (r *Runner) detail(ctx context.Context, link string) (RawCard, error) {
	page, err := r.deps.Browser.NewPage(ctx)
	if err != nil {
		return RawCard{}, err
	}
	defer closePage(ctx, page)

	if err := browser.Navigate(ctx, page, link, r.ex.DetailReady(), r.deps.Navigation); err != nil {
		return RawCard{}, err
	}

	raw := r.ex.Card(page)
	if raw.ImgURL != "" {
		if abs, ok := resolve(link, raw.ImgURL); ok {
			raw.ImgURL = abs
		}
	}

	return raw, nil
}

// build собирает событие: город по координатам и нормализация сырых значений.
// Из расписания берётся только первая строка.
func (r *Runner) build(ctx context.Context, job service.Job, link string, raw RawCard) models.Event {
	ev := models.Event{
		Link:        link,
		Title:       strings.TrimSpace(raw.Title),
		Description: normalize.Text(raw.Description),
		Country:     strings.TrimSpace(job.Country),
		Category:    strings.TrimSpace(job.Category),
		Venue:       normalize.Text(raw.Venue),
		Address:     normalize.Text(raw.Address),
		ImgURL:      normalize.Text(raw.ImgURL),
		Latitude:    normalize.Float(raw.Latitude),
		Longitude:   normalize.Float(raw.Longitude),
	}

	if r.deps.Geocoder != nil {
		if city := r.deps.Geocoder.CityFrom(ctx, raw.Latitude, raw.Longitude); city != "" {
			ev.City = &city
		}
	}

	if len(raw.Dates) > 0 {
		if ts, ok := normalize.ParseDateTime(raw.Dates[0].Date, raw.Dates[0].Time); ok {
			ev.StartsAt = &ts
		}
	}

	ev.Price, ev.Currency = normalize.ParsePrice(raw.Price, job.Currency)

	return ev
}

func closePage(ctx context.Context, page browser.Page) {
	if err := page.Close(); err != nil {
		log.From(ctx).Warn("page_close_failed",
			slog.String("op", "adapters.closePage"),
			slog.String("err", err.Error()),
		)
	}
}

// resolve приводит href к абсолютному http(s) URL относительно base.
func resolve(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := b.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}

	return abs.String(), true
}
