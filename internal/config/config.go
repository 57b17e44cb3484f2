// config предоставляет структуру конфигурации events-parser
// и функции загрузки из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
//
// Список стран/источников можно вынести в отдельный файл (catalog / CATALOG_PATH),
// тогда он читается, если countries в основном конфиге пуст.
type Config struct {
	Env       string         `yaml:"env"     env:"ENV"          env-default:"local"`
	HTTP      HTTPConfig     `yaml:"http"`
	Redis     RedisConfig    `yaml:"redis"`
	Kafka     KafkaConfig    `yaml:"kafka"`
	Geocoder  GeocoderConfig `yaml:"geocoder"`
	Browser   BrowserConfig  `yaml:"browser"`
	Schedule  ScheduleConfig `yaml:"schedule"`
	Catalog   string         `yaml:"catalog" env:"CATALOG_PATH"`
	Countries []Country      `yaml:"countries"`
}

// HTTPConfig — служебный HTTP-сервер (/livez, /healthz, /metrics).
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50090"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// RedisConfig — хранилище дедупликации.
type RedisConfig struct {
	URL        string        `yaml:"url"         env:"REDIS_URL"         env-required:"true"`
	SeenPrefix string        `yaml:"seen_prefix" env:"REDIS_SEEN_PREFIX" env-default:"events:seen:"`
	DataPrefix string        `yaml:"data_prefix" env:"REDIS_DATA_PREFIX" env-default:"event:data:"`
	PayloadTTL time.Duration `yaml:"payload_ttl" env:"REDIS_PAYLOAD_TTL" env-default:"2160h"`
}

// KafkaConfig — продюсер событий и политика повторов публикации.
type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"         env:"KAFKA_BROKERS"         env-separator:","`
	Topic          string        `yaml:"topic"           env:"KAFKA_TOPIC"           env-default:"events.new"`
	ClientID       string        `yaml:"client_id"       env:"KAFKA_CLIENT_ID"       env-default:"events-parser"`
	Acks           string        `yaml:"acks"            env:"KAFKA_ACKS"            env-default:"all"`
	Idempotence    bool          `yaml:"idempotence"     env:"KAFKA_IDEMPOTENCE"     env-default:"true"`
	Linger         time.Duration `yaml:"linger"          env:"KAFKA_LINGER"          env-default:"50ms"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"KAFKA_REQUEST_TIMEOUT" env-default:"40s"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"   env:"KAFKA_RETRY_BACKOFF"   env-default:"300ms"`
	// DeliveryTimeout ограничивает ожидание delivery report одной попытки.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"KAFKA_DELIVERY_TIMEOUT" env-default:"45s"`
	FlushTimeout    time.Duration `yaml:"flush_timeout"    env:"KAFKA_FLUSH_TIMEOUT"    env-default:"10s"`
	Attempts        int           `yaml:"attempts"         env:"KAFKA_PUBLISH_ATTEMPTS" env-default:"5"`
	BackoffBase     time.Duration `yaml:"backoff_base"     env:"KAFKA_BACKOFF_BASE"     env-default:"500ms"`
}

// GeocoderConfig — обратное геокодирование (Nominatim).
type GeocoderConfig struct {
	URL       string        `yaml:"url"        env:"GEOCODER_URL"        env-default:"https://nominatim.openstreetmap.org/reverse"`
	QPS       float64       `yaml:"qps"        env:"GEOCODER_QPS"        env-default:"1"`
	Language  string        `yaml:"language"   env:"GEOCODER_LANGUAGE"   env-default:"ru"`
	UserAgent string        `yaml:"user_agent" env:"GEOCODER_USER_AGENT" env-default:"events-parser/1.0"`
	Timeout   time.Duration `yaml:"timeout"    env:"GEOCODER_TIMEOUT"    env-default:"15s"`
}

// BrowserConfig — загрузка листингов и карточек.
type BrowserConfig struct {
	UserAgent         string        `yaml:"user_agent"         env:"BROWSER_USER_AGENT"         env-default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123 Safari/537.36"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" env:"BROWSER_NAVIGATION_TIMEOUT" env-default:"30s"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"       env:"BROWSER_WAIT_TIMEOUT"       env-default:"20s"`
	Attempts          int           `yaml:"attempts"           env:"BROWSER_ATTEMPTS"           env-default:"3"`
	RetryStep         time.Duration `yaml:"retry_step"         env:"BROWSER_RETRY_STEP"         env-default:"1s"`
}

// ScheduleConfig — режим запуска.
type ScheduleConfig struct {
	// Interval == 0 — один проход и выход; > 0 — периодические проходы.
	Interval time.Duration `yaml:"interval" env:"SCHEDULE_INTERVAL" env-default:"0s"`
}

// Country — страна и её источники.
type Country struct {
	Name    string   `yaml:"name"`
	Sources []Source `yaml:"sources"`
}

// Source — один сайт-источник.
type Source struct {
	// Name — имя источника, часть ключа дедупликации (events:seen:{name}).
	Name string `yaml:"name"`
	// Adapter — имя зарегистрированного адаптера извлечения.
	Adapter string `yaml:"adapter"`
	// Currency — код валюты, которым помечаются цены источника.
	Currency string `yaml:"currency"`
	Pages    []Page `yaml:"pages"`
}

// Page — листинг и категория, которой помечаются его события.
type Page struct {
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

// catalog — формат отдельного файла со списком источников.
type catalog struct {
	Countries []Country `yaml:"countries"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &cfg, nil
	}

	var (
		c   *Config
		err error
	)

	switch envPath := os.Getenv("CONFIG_PATH"); {
	// 1) Явный путь.
	case path != "":
		c, err = tryRead(path)
	// 2) CONFIG_PATH.
	case envPath != "":
		c, err = tryRead(envPath)
	default:
		// 3) ./local.yaml.
		if _, statErr := os.Stat("local.yaml"); statErr == nil {
			if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
				return nil, fmt.Errorf("failed to read local.yaml: %w", err)
			}
			c = &cfg
			break
		}

		// 4) Только ENV.
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
		c = &cfg
	}
	if err != nil {
		return nil, err
	}

	if err := c.loadCatalog(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadCatalog подгружает страны из отдельного файла, если они не заданы inline.
func (c *Config) loadCatalog() error {
	if len(c.Countries) > 0 || c.Catalog == "" {
		return nil
	}

	var cat catalog
	if err := cleanenv.ReadConfig(c.Catalog, &cat); err != nil {
		return fmt.Errorf("failed to read catalog %s: %w", c.Catalog, err)
	}
	c.Countries = cat.Countries

	return nil
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must contain at least one broker")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required")
	}
	if c.Kafka.Attempts < 1 {
		return fmt.Errorf("kafka.attempts must be >= 1")
	}
	if c.Geocoder.QPS <= 0 {
		return fmt.Errorf("geocoder.qps must be > 0")
	}
	if c.Browser.Attempts < 1 {
		return fmt.Errorf("browser.attempts must be >= 1")
	}
	if c.Schedule.Interval != 0 && c.Schedule.Interval < time.Minute {
		return fmt.Errorf("schedule.interval must be 0 or at least 1m")
	}
	if len(c.Countries) == 0 {
		return fmt.Errorf("countries must contain at least one country")
	}

	for _, country := range c.Countries {
		if country.Name == "" {
			return fmt.Errorf("countries: name is required")
		}
		if len(country.Sources) == 0 {
			return fmt.Errorf("country %q: at least one source is required", country.Name)
		}
		for _, src := range country.Sources {
			if src.Name == "" || src.Adapter == "" {
				return fmt.Errorf("country %q: source name and adapter are required", country.Name)
			}
			if len(src.Pages) == 0 {
				return fmt.Errorf("source %q: at least one page is required", src.Name)
			}
			for _, p := range src.Pages {
				if p.URL == "" || p.Category == "" {
					return fmt.Errorf("source %q: page url and category are required", src.Name)
				}
			}
		}
	}
	return nil
}
