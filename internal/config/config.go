// 包 config：集中读取环境变量（.env 由 godotenv 预先加载），为各组件提供带默认值的配置
package config

import (
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 默认笔记原文根路径（事件笔记与实体笔记均在其下）
const DefaultNotesBaseURL = "https://raw.githubusercontent.com/antoninbld/geo_map_notes/main/docs/notes"

type Config struct {
	Addr    string
	APIBase string
	UIDir   string

	CountriesGeoJSON string

	NotesCatalog       string // file | url | postgres
	NotesCatalogPath   string
	NotesCatalogURL    string
	NotesBaseURL       string
	NotesFetchTimeout  time.Duration
	NotesScanWorkers   int
	NotesCacheSize     int
	NotesCacheTTL      time.Duration
	NotesRedisCacheTTL time.Duration

	PanelWidthPx    int
	PanelMarginPx   int
	FocusZoom       float64
	FocusDuration   time.Duration
	ViewportWidthPx int

	SessionCacheSize int
	SessionTTL       time.Duration

	GeoIPPath string

	PostgresEnabled bool
	Postgres        Postgres
	RedisEnabled    bool
	Redis           Redis

	RateLimitEnabled bool
	RateLimitQPS     int

	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string
}

// Postgres：PG_* 连接参数
type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
	MaxOpen  int
	MaxIdle  int
}

// DSN：postgres:// 连接串；用户名与密码按 URL 规则转义
func (p Postgres) DSN() string {
	u := url.URL{Scheme: "postgres", Host: net.JoinHostPort(p.Host, p.Port), Path: "/" + p.DB}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else {
		u.User = url.User(p.User)
	}
	u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	return u.String()
}

// Redis：REDIS_* 连接参数
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// LoadDotEnv：按顺序加载 .env 与 data/env/.env；文件缺失静默忽略
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// FromEnv：读取全部配置；非法数值回退到默认值
func FromEnv() Config {
	c := Config{
		Addr:               str("ADDR", ":8080"),
		APIBase:            str("API_BASE", "/api"),
		UIDir:              str("UI_DIST", filepath.Join("ui", "dist")),
		CountriesGeoJSON:   str("COUNTRIES_GEOJSON", filepath.Join("data", "countries.geojson")),
		NotesCatalog:       strings.ToLower(str("NOTES_CATALOG", "file")),
		NotesCatalogPath:   str("NOTES_CATALOG_PATH", filepath.Join("data", "data.json")),
		NotesCatalogURL:    os.Getenv("NOTES_CATALOG_URL"),
		NotesBaseURL:       strings.TrimRight(str("NOTES_BASE_URL", DefaultNotesBaseURL), "/"),
		NotesFetchTimeout:  seconds("NOTES_FETCH_TIMEOUT_S", 0),
		NotesScanWorkers:   positiveInt("NOTES_SCAN_CONCURRENCY", 4),
		NotesCacheSize:     positiveInt("NOTES_CACHE_SIZE", 512),
		NotesCacheTTL:      seconds("NOTES_CACHE_TTL_S", 3600),
		NotesRedisCacheTTL: seconds("NOTES_REDIS_TTL_S", 24*3600),
		PanelWidthPx:       positiveInt("PANEL_WIDTH_PX", 400),
		PanelMarginPx:      nonNegativeInt("PANEL_MARGIN_PX", 10),
		FocusZoom:          positiveFloat("FOCUS_ZOOM", 3),
		FocusDuration:      time.Duration(nonNegativeInt("FOCUS_DURATION_MS", 200)) * time.Millisecond,
		ViewportWidthPx:    positiveInt("VIEWPORT_WIDTH_PX", 1280),
		SessionCacheSize:   positiveInt("SESSION_CACHE_SIZE", 256),
		SessionTTL:         seconds("SESSION_TTL_S", 1800),
		GeoIPPath:          os.Getenv("GEOIP_DB_PATH"),
		PostgresEnabled:    os.Getenv("PG_ENABLE") == "true",
		RedisEnabled:       os.Getenv("REDIS_ENABLE") == "true",
		RateLimitEnabled:   os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:       positiveInt("RATE_LIMIT_QPS", 200),
		TLSEnabled:         os.Getenv("TLS_ENABLE") == "true",
		TLSCertPath:        str("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:         str("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
	}
	c.Postgres = Postgres{
		Host:     str("PG_HOST", "localhost"),
		Port:     str("PG_PORT", "5432"),
		User:     str("PG_USER", "postgres"),
		Password: os.Getenv("PG_PASSWORD"),
		DB:       str("PG_DB", "globenotes"),
		SSLMode:  str("PG_SSLMODE", "disable"),
		MaxOpen:  positiveInt("PG_MAX_OPEN_CONNS", 10),
		MaxIdle:  nonNegativeInt("PG_MAX_IDLE_CONNS", 5),
	}
	c.Redis = Redis{
		Addr:     net.JoinHostPort(str("REDIS_HOST", "127.0.0.1"), str("REDIS_PORT", "6379")),
		Password: os.Getenv("REDIS_PASS"),
		DB:       nonNegativeInt("REDIS_DB", 0),
	}
	if c.NotesCatalog == "postgres" {
		c.PostgresEnabled = true
	}
	return c
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func nonNegativeInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func positiveFloat(key string, def float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func seconds(key string, def int) time.Duration {
	return time.Duration(nonNegativeInt(key, def)) * time.Second
}
