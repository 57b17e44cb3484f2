// yolo — разметка афиши yolo.ge.
package yolo

import (
	"github.com/pribylovaa/go-events-parser/internal/adapters"
	"github.com/pribylovaa/go-events-parser/internal/browser"
	"github.com/pribylovaa/go-events-parser/internal/service"
)

// Name — имя адаптера в конфигурации (sources[].adapter).
const Name = "yolo"

const (
	cardLink    = ".products-actions__item_title_wrap a"
	detail      = ".product"
	title       = ".product__title"
	image       = ".swiper-slide-fully-visible.swiper-slide-active img"
	// В статической разметке классы активного слайда ещё не проставлены.
	imageStatic = ".swiper-slide img"
	description = ".product__text_block_description"
	date        = ".product__data-selection_date"
	timeOfDay   = ".product__data-selection_time"
	address     = ".product__contacts_info_location a"
	venue       = ".product__contacts_info_title"
	mapBlock    = ".product__contacts_map.map"
	price       = ".product__data-selection_price"
)

// New — service.AdapterFactory для yolo.ge.
func New(deps service.Deps) service.Adapter {
	return adapters.New(deps, Extractor{})
}

// Extractor реализует adapters.Extractor для yolo.ge.
type Extractor struct{}

var _ adapters.Extractor = Extractor{}

func (Extractor) ListingReady() string { return cardLink }

func (Extractor) DetailReady() string { return detail }

func (Extractor) Links(page browser.Page) []string {
	var hrefs []string
	for _, el := range page.QueryAll(cardLink) {
		if href, ok := el.Attr("href"); ok && href != "" {
			hrefs = append(hrefs, href)
		}
	}

	return hrefs
}

func (Extractor) Card(page browser.Page) adapters.RawCard {
	raw := adapters.RawCard{
		Title:       text(page, title),
		Description: text(page, description),
		Venue:       text(page, venue),
		Address:     text(page, address),
		Price:       text(page, price),
		ImgURL:      firstAttr(page, "src", image, imageStatic),
		Latitude:    attr(page, mapBlock, "data-latitude"),
		Longitude:   attr(page, mapBlock, "data-longitude"),
	}

	// Даты и время идут параллельными списками; времени может не быть.
	dates := page.QueryAll(date)
	times := page.QueryAll(timeOfDay)
	for i, d := range dates {
		row := adapters.DateRow{Date: d.Text()}
		if i < len(times) {
			row.Time = times[i].Text()
		}
		raw.Dates = append(raw.Dates, row)
	}

	return raw
}

func text(page browser.Page, selector string) string {
	if el, ok := page.QueryOne(selector); ok {
		return el.Text()
	}
	return ""
}

// firstAttr — атрибут первого найденного селектора с непустым значением.
func firstAttr(page browser.Page, name string, selectors ...string) string {
	for _, sel := range selectors {
		if v := attr(page, sel, name); v != "" {
			return v
		}
	}
	return ""
}

func attr(page browser.Page, selector, name string) string {
	if el, ok := page.QueryOne(selector); ok {
		v, _ := el.Attr(name)
		return v
	}
	return ""
}
