// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"globe-notes/internal/api"
	"globe-notes/internal/camera"
	"globe-notes/internal/config"
	"globe-notes/internal/constellation"
	"globe-notes/internal/country"
	"globe-notes/internal/geolocate"
	"globe-notes/internal/globe"
	"globe-notes/internal/links"
	"globe-notes/internal/logger"
	"globe-notes/internal/middleware"
	"globe-notes/internal/migrate"
	"globe-notes/internal/notes"
	"globe-notes/internal/store"
	"globe-notes/internal/utils"

	"github.com/redis/go-redis/v9"
)

// noopStats：没有 Postgres 时的聚焦计数
type noopStats struct{}

func (noopStats) IncrFocus(context.Context, string) error { return nil }

func main() {
	config.LoadDotEnv()
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg := config.FromEnv()
	l.Debug("config_loaded", "api_base", cfg.APIBase, "ui", cfg.UIDir, "catalog", cfg.NotesCatalog)
	ctx := context.Background()

	var st *store.Store
	if cfg.PostgresEnabled {
		db, err := utils.OpenPostgres(cfg.Postgres)
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
	} else {
		l.Info("db_disabled")
	}

	var rc *redis.Client
	if cfg.RedisEnabled {
		rc = utils.OpenRedis(cfg.Redis)
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	} else {
		l.Info("redis_disabled")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	loader := country.NewLoader(cfg.CountriesGeoJSON, client)
	// 背景：国家数据集在后台预热；失败不影响启动，首次请求时重试
	go func() { _, _ = loader.Ensure(ctx) }()

	var ns notes.Store
	if st != nil {
		ns = st
	}
	cat, err := notes.LoadCatalog(ctx, cfg.NotesCatalog, cfg.NotesCatalogPath, cfg.NotesCatalogURL, client, ns)
	if err != nil {
		l.Error("catalog_load_error", "kind", cfg.NotesCatalog, "err", err)
		cat = notes.NewCatalog(nil)
	}
	l.Info("catalog_ready", "notes", cat.Len())

	fetcher := notes.NewHTTPFetcher(notes.FetcherOptions{
		BaseURL:  cfg.NotesBaseURL,
		Timeout:  cfg.NotesFetchTimeout,
		Redis:    rc,
		RedisTTL: cfg.NotesRedisCacheTTL,
		LRUSize:  cfg.NotesCacheSize,
		LRUTTL:   cfg.NotesCacheTTL,
	})

	var stats constellation.Stats = noopStats{}
	var top api.StatsReader
	if st != nil {
		stats, top = st, st
	}

	opts := constellation.DefaultOptions()
	opts.Focus = camera.Options{
		Zoom:          cfg.FocusZoom,
		Duration:      cfg.FocusDuration,
		PanelWidthPx:  cfg.PanelWidthPx,
		PanelMarginPx: cfg.PanelMarginPx,
	}
	shared := globe.Shared{
		Loader:        loader,
		Catalog:       cat,
		Entities:      constellation.NewEntityIndex(cat, fetcher, cfg.NotesScanWorkers),
		Outgoing:      notes.NewOutgoingLinks(fetcher, cat),
		Stats:         api.NewFocusCounter(stats, rc),
		Constellation: opts,
		Links:         links.DefaultOptions(),
		ViewportWidth: cfg.ViewportWidthPx,
	}

	// 背景：mmdb 可选；缺失时定位接口只依赖 CDN 边缘头
	var loc *geolocate.Locator
	if cfg.GeoIPPath != "" {
		if loc, err = geolocate.Open(cfg.GeoIPPath); err != nil {
			l.Error("geoip_open_error", "path", cfg.GeoIPPath, "err", err)
		} else {
			defer loc.Close()
			l.Info("geoip_ready", "path", cfg.GeoIPPath, "kind", loc.Kind())
		}
	}

	// 文档注释：构建路由
	apiMux := api.BuildRoutes(api.Deps{
		Shared:   shared,
		Sessions: api.NewSessions(cfg.SessionCacheSize, cfg.SessionTTL, shared),
		Locator:  loc,
		Stats:    top,
	})
	mux := http.NewServeMux()
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	mux.Handle("/", http.FileServer(http.Dir(cfg.UIDir)))

	// NOTE: 向前端暴露 API 基础路径，避免硬编码
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + cfg.APIBase + "'\n"))
		_, _ = w.Write([]byte("window.__NOTES_BASE_URL__='" + strings.ReplaceAll(cfg.NotesBaseURL, "'", "%27") + "'"))
	})

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler, cfg.RateLimitEnabled, cfg.RateLimitQPS)
	s := &http.Server{Addr: cfg.Addr, Handler: handler}
	if cfg.TLSEnabled {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "globe-notes.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
		if err := s.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath); err != nil {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", cfg.Addr)
	if err := s.ListenAndServe(); err != nil {
		l.Error("server_error", "err", err)
	}
}
