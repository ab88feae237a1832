package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"globe-notes/internal/country"
	"globe-notes/internal/geolocate"
	"globe-notes/internal/globe"
	"globe-notes/internal/logger"
	"globe-notes/internal/metrics"
	"globe-notes/internal/middleware"
	"globe-notes/internal/store"

	"github.com/paulmach/orb"
)

// StatsReader：聚焦排行（Postgres 可用时）
type StatsReader interface {
	TopFocused(ctx context.Context, limit int) ([]store.FocusStat, error)
}

// Deps：路由依赖；Locator 与 Stats 可为空
type Deps struct {
	Shared   globe.Shared
	Sessions *Sessions
	Locator  *geolocate.Locator
	Stats    StatsReader
}

type locateResult struct {
	IP     string     `json:"ip,omitempty"`
	ISO2   string     `json:"iso2,omitempty"`
	ISO3   string     `json:"iso3"`
	Center *orb.Point `json:"center,omitempty"`
	Source string     `json:"source"`
}

type originResult struct {
	Token    string        `json:"token"`
	ISO3     string        `json:"iso3"`
	Center   *orb.Point    `json:"center"`
	Bounds   *[2]orb.Point `json:"bounds"`
	Override bool          `json:"override"`
}

// 文档注释：构建 API 路由
// 背景：会话状态在服务端（场景 + 星座状态机），动作接口返回动作结果与最新场景
// 约束：路由挂在 apiBase 之下，由调用方 StripPrefix；会话 ID 通过 session 查询参数传递
func BuildRoutes(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /resolve", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		idx, _ := d.Shared.Loader.Ensure(r.Context())
		iso3, ok := country.Resolve(idx, token)
		writeJSON(w, http.StatusOK, map[string]any{"token": token, "iso3": iso3, "resolved": ok})
	})

	mux.HandleFunc("GET /origin", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		idx, _ := d.Shared.Loader.Ensure(r.Context())
		iso3, ok := country.Resolve(idx, token)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unresolved", "token": token})
			return
		}
		t := country.ComputeOrigin(idx, country.OrbGeometry{}, iso3)
		out := originResult{Token: token, ISO3: iso3, Center: t.Center, Override: t.Override}
		if t.Bounds != nil {
			out.Bounds = &[2]orb.Point{t.Bounds.Min, t.Bounds.Max}
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("GET /countries", func(w http.ResponseWriter, r *http.Request) {
		idx, err := d.Shared.Loader.Ensure(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "dataset unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": idx.Source(), "countries": idx.Records()})
	})

	mux.HandleFunc("GET /locate", func(w http.ResponseWriter, r *http.Request) {
		res, ok := locate(r, d)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown location", "ip": res.IP})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("session"); id != "" {
			g, ok := d.Sessions.Get(id)
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown session", "session": id})
				return
			}
			writeJSON(w, http.StatusOK, g.Snapshot())
			return
		}
		var start *orb.Point
		if res, ok := locate(r, d); ok {
			start = res.Center
		}
		writeJSON(w, http.StatusCreated, d.Sessions.Open(r.Context(), start).Snapshot())
	})

	mux.HandleFunc("GET /scene", session(d, func(w http.ResponseWriter, r *http.Request, g *globe.Globe) {
		writeJSON(w, http.StatusOK, g.Snapshot())
	}))

	mux.HandleFunc("POST /focus", session(d, func(w http.ResponseWriter, r *http.Request, g *globe.Globe) {
		res := g.Focus(r.Context(), r.URL.Query().Get("token"))
		writeJSON(w, http.StatusOK, map[string]any{"focus": res, "scene": g.Snapshot()})
	}))

	mux.HandleFunc("POST /constellation", session(d, func(w http.ResponseWriter, r *http.Request, g *globe.Globe) {
		entity := strings.TrimSpace(r.URL.Query().Get("entity"))
		if entity == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing entity"})
			return
		}
		ctx := withVisitor(r.Context(), getVisitorIP(r))
		res := g.ShowConstellation(ctx, entity)
		writeJSON(w, http.StatusOK, map[string]any{"constellation": res, "scene": g.Snapshot()})
	}))

	mux.HandleFunc("POST /clear", session(d, func(w http.ResponseWriter, r *http.Request, g *globe.Globe) {
		g.ClearConstellation()
		writeJSON(w, http.StatusOK, g.Snapshot())
	}))

	mux.HandleFunc("POST /overlay/hide", session(d, func(w http.ResponseWriter, r *http.Request, g *globe.Globe) {
		g.HideOverlay()
		writeJSON(w, http.StatusOK, g.Snapshot())
	}))

	mux.HandleFunc("POST /links", session(d, func(w http.ResponseWriter, r *http.Request, g *globe.Globe) {
		note := strings.TrimSpace(r.URL.Query().Get("note"))
		if note == "" {
			g.ClearLinks()
			writeJSON(w, http.StatusOK, map[string]any{"links": []string{}, "scene": g.Snapshot()})
			return
		}
		drawn := g.ShowLinks(r.Context(), note)
		if drawn == nil {
			drawn = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"links": drawn, "scene": g.Snapshot()})
	}))

	mux.HandleFunc("POST /style-reload", session(d, func(w http.ResponseWriter, r *http.Request, g *globe.Globe) {
		g.ReloadStyle(r.Context())
		writeJSON(w, http.StatusOK, g.Snapshot())
	}))

	mux.HandleFunc("GET /entities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"scanned":  d.Shared.Entities.Scanned(),
			"notes":    d.Shared.Catalog.Len(),
			"entities": d.Shared.Entities.Entities(),
		})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{"sessions": d.Sessions.Len(), "notes": d.Shared.Catalog.Len()}
		if d.Stats != nil {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			top, err := d.Stats.TopFocused(r.Context(), limit)
			if err != nil {
				logger.L().Warn("stats_query_error", "err", err)
			} else {
				out["top"] = top
			}
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// session：取出 session 参数对应的会话；未知会话返回 404
func session(d Deps, h func(http.ResponseWriter, *http.Request, *globe.Globe)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("session")
		g, ok := d.Sessions.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown session", "session": id})
			return
		}
		h(w, r, g)
	}
}

// 文档注释：访问者所在国家
// 背景：优先本地 mmdb 查询；查不到时回退 CDN 边缘头
func locate(r *http.Request, d Deps) (locateResult, bool) {
	res := locateResult{IP: getVisitorIP(r)}
	idx, _ := d.Shared.Loader.Ensure(r.Context())
	if d.Locator != nil {
		if iso2, err := d.Locator.LocateISO2(res.IP); err == nil {
			if iso3, ok := idx.ISO3ForISO2(iso2); ok {
				res.ISO2, res.ISO3, res.Source = iso2, iso3, "geoip:"+d.Locator.Kind()
			}
		} else {
			logger.L().Debug("geoip_miss", "ip", res.IP, "err", err)
		}
	}
	if res.ISO3 == "" {
		if geo, ok := middleware.EdgeGeoFrom(r.Context()); ok {
			iso3 := geo.Alpha3
			if iso3 == "" {
				iso3, _ = idx.ISO3ForISO2(geo.Alpha2)
			}
			if iso3 != "" {
				res.ISO2, res.ISO3, res.Source = geo.Alpha2, iso3, "edge"
			}
		}
	}
	if res.ISO3 == "" {
		return res, false
	}
	res.Center = country.ComputeOrigin(idx, country.OrbGeometry{}, res.ISO3).Center
	return res, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
