package geocoder

import (
	"math"
	"strconv"
	"sync"
)

// Point — координаты, округлённые до 4 знаков (~11 м).
type Point struct {
	Lat float64
	Lon float64
}

// Round округляет координаты до ключа кэша.
func Round(lat, lon float64) Point {
	return Point{Lat: round4(lat), Lon: round4(lon)}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// String — "lat,lon" с 4 знаками после точки.
func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(p.Lon, 'f', 4, 64)
}

// Cache — город по округлённой точке. Пустое значение — «города нет»,
// оно тоже хранится, чтобы не повторять неудачные запросы.
type Cache struct {
	mu sync.RWMutex
	m  map[Point]string
}

// NewCache создаёт пустой кэш.
func NewCache() *Cache {
	return &Cache{m: make(map[Point]string)}
}

// Get возвращает значение и признак наличия.
func (c *Cache) Get(p Point) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	city, ok := c.m[p]
	return city, ok
}

// Set сохраняет значение.
func (c *Cache) Set(p Point, city string) {
	c.mu.Lock()
	c.m[p] = city
	c.mu.Unlock()
}

// Len — число закэшированных точек.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.m)
}
