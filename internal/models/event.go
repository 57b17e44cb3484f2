// models содержит доменные сущности events-parser.
// Эти типы используются адаптерами источников, хранилищем и публикатором.
package models

import (
	"crypto/sha1"
	"encoding/hex"
)

// Event — каноническая запись о событии (концерт, выставка и т.п.).
//
// Особенности:
//   - идентичность внутри источника — Link (вместе с именем источника);
//   - опциональные поля — указатели, nil сериализуется в null;
//   - StartsAt — ISO-8601 с явным смещением, никогда не «голая» дата;
//   - Currency заполнена только вместе с Price.
//
// После сборки адаптером запись не изменяется.
type Event struct {
	// Link — каноническая ссылка на страницу события.
	Link string `json:"link"`
	// Title — название, всегда непустое.
	Title string `json:"title"`
	// Description — описание события.
	Description *string `json:"description"`
	// Country — страна из конфигурации источника.
	Country string `json:"country"`
	// Category — категория из конфигурации листинга.
	Category string `json:"category"`
	// StartsAt — время начала в ISO-8601.
	StartsAt *string `json:"starts_at"`
	// Venue — площадка.
	Venue *string `json:"venue"`
	// City — город, определённый обратным геокодированием.
	City *string `json:"city"`
	// Price — минимальная цена.
	Price *float64 `json:"price"`
	// Currency — код валюты (ISO 4217).
	Currency *string `json:"currency"`
	// Age — возрастное ограничение. Пока источники его не отдают.
	Age *int `json:"age"`
	// Address — адрес площадки.
	Address *string `json:"address"`
	// Longitude/Latitude — координаты в десятичных градусах.
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
	// ImgURL — обложка.
	ImgURL *string `json:"img_url"`
}

// URLHash возвращает стабильный hex(sha1) ссылки.
// Используется как ключ полезной нагрузки в Redis и ключ сообщения в Kafka.
func URLHash(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
