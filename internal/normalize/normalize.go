// normalize — чистые функции приведения «сырых» строк со страниц
// к каноническим значениям models.Event.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SourceZone — часовой пояс источников (UTC+4, без перехода на летнее время).
var SourceZone = time.FixedZone("+04", 4*60*60)

// ISOLayout — формат StartsAt: секунды и числовое смещение всегда присутствуют.
const ISOLayout = "2006-01-02T15:04:05-07:00"

var (
	reDate = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
	reTime = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

// ISO-форматы, которые встречаются на сайтах вместо dd.mm.yyyy.
var (
	isoZoned = []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04Z07:00",
	}
	isoLocal = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseDateTime собирает время начала из даты вида dd.mm.yyyy и
// необязательного времени hh:mm в SourceZone.
//
// Правила:
//   - нет времени (или оно нечитаемо) -> 00:00;
//   - дата не dd.mm.yyyy -> попытка разобрать ISO-8601; смещение источника
//     сохраняется, при его отсутствии подставляется SourceZone;
//   - несуществующая дата (31.02) или ничего не подошло -> ok=false.
func ParseDateTime(dateRaw, timeRaw string) (string, bool) {
	d := strings.TrimSpace(dateRaw)
	if d == "" {
		return "", false
	}

	m := reDate.FindStringSubmatch(d)
	if m == nil {
		return parseISO(d)
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	hour, minute := 0, 0
	if tm := reTime.FindStringSubmatch(strings.TrimSpace(timeRaw)); tm != nil {
		h, _ := strconv.Atoi(tm[1])
		mi, _ := strconv.Atoi(tm[2])
		if h < 24 && mi < 60 {
			hour, minute = h, mi
		}
	}

	ts := time.Date(year, time.Month(month), day, hour, minute, 0, 0, SourceZone)
	// time.Date нормализует 31.02 в март — такие даты отбрасываем.
	if ts.Day() != day || int(ts.Month()) != month || ts.Year() != year {
		return "", false
	}

	return ts.Format(ISOLayout), true
}

func parseISO(s string) (string, bool) {
	for _, layout := range isoZoned {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Format(ISOLayout), true
		}
	}

	for _, layout := range isoLocal {
		if ts, err := time.ParseInLocation(layout, s, SourceZone); err == nil {
			return ts.Format(ISOLayout), true
		}
	}

	return "", false
}

// ParsePrice разбирает цену вида "50 GEL", "30-50 ₾", "25,5".
//
// Берётся первая часть до разделителя диапазона, первое слово — число,
// остаток (если есть) — признак валюты. Сам токен валюты не сохраняется:
// возвращается currency, сконфигурированная для источника.
// Нечисловая или отрицательная сумма -> (nil, nil).
func ParsePrice(raw, currency string) (*float64, *string) {
	head := raw
	if i := strings.IndexAny(head, "-–—"); i >= 0 {
		head = head[:i]
	}

	fields := strings.Fields(head)
	if len(fields) == 0 {
		return nil, nil
	}

	number, rest := splitAmount(fields[0])
	amount, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", "."), 64)
	if err != nil || amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, nil
	}

	var cur *string
	if (rest != "" || len(fields) > 1) && currency != "" {
		c := currency
		cur = &c
	}

	return &amount, cur
}

// splitAmount отделяет числовой префикс токена ("50₾" -> "50", "₾").
func splitAmount(tok string) (string, string) {
	i := strings.IndexFunc(tok, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != ','
	})
	if i <= 0 {
		return tok, ""
	}

	return tok[:i], tok[i:]
}

// Text обрезает пробелы; пустая строка -> nil.
func Text(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	return &s
}

// Float разбирает координату; пустое или нечисловое значение -> nil.
func Float(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return &v
}
