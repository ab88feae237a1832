// 包 camera：国家聚焦的相机编排（居中+缩放 或 带右侧面板留白的适配外接框）
package camera

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"globe-notes/internal/country"
	"globe-notes/internal/logger"
	"globe-notes/internal/mapengine"
	"globe-notes/internal/metrics"
	"globe-notes/internal/overlay"

	"github.com/paulmach/orb"
)

const (
	// FallbackZoom：适配失败或只有中心点时的缩放级别
	FallbackZoom = 4.2
	// EdgePadding：上、左、下留白（像素）
	EdgePadding = 40
	// 面板打开时会变宽，按 1.25 倍预留
	panelGrowth = 1.25
	panelExtra  = 10
	// 右侧留白上限为 视口宽 - 120
	minVisibleWidth = 120
	// 视口宽度未知时的假定值
	defaultViewport = 800
)

// Mode：相机决策
type Mode string

const (
	ModeNone      Mode = "none"
	ModeOverride  Mode = "override"
	ModeFitBounds Mode = "fitBounds"
	ModeFallback  Mode = "fallback"
	ModeCenter    Mode = "center"
)

// Options：聚焦参数
type Options struct {
	Zoom          float64
	Duration      time.Duration
	PanelWidthPx  int
	PanelMarginPx int
}

// FocusResult：一次聚焦的结果
type FocusResult struct {
	Token      string              `json:"token"`
	ISO3       string              `json:"iso3"`
	Resolved   bool                `json:"resolved"`
	Moved      bool                `json:"moved"`
	Superseded bool                `json:"superseded"`
	Mode       Mode                `json:"mode"`
	Target     country.FocusTarget `json:"target"`
	RightPadPx float64             `json:"rightPadPx"`
}

// Composer：相机编排器（每个地图会话一个）
// 背景：数据集加载是挂起点；加载回来时若已有更新的聚焦请求，放弃本次所有可见变更
type Composer struct {
	loader  *country.Loader
	overlay *overlay.Renderer
	geom    country.Geometry
	seq     atomic.Uint64
}

// NewComposer：geom 为空时使用 orb 面积质心
func NewComposer(loader *country.Loader, ov *overlay.Renderer, geom country.Geometry) *Composer {
	if geom == nil {
		geom = country.OrbGeometry{}
	}
	return &Composer{loader: loader, overlay: ov, geom: geom}
}

// Loader：共享的国家索引加载器
func (c *Composer) Loader() *country.Loader { return c.loader }

// Geometry：几何能力
func (c *Composer) Geometry() country.Geometry { return c.geom }

// RightPadding：右侧面板留白
// 约束：round(面板宽*1.25) + 面板边距 + 10，且不超过 max(0, 视口宽-120)；视口宽为 0 时按 800 计
func RightPadding(panelWidthPx, panelMarginPx, viewportWidth int) float64 {
	w := viewportWidth
	if w <= 0 {
		w = defaultViewport
	}
	pad := math.Round(float64(panelWidthPx)*panelGrowth) + float64(panelMarginPx) + panelExtra
	return math.Min(pad, math.Max(0, float64(w-minVisibleWidth)))
}

// Focus：解析令牌、显示叠加层并移动相机
// 约束：解析失败静默返回；从不向外抛错，相机失败只会让后续动作停止
func (c *Composer) Focus(ctx context.Context, m mapengine.Map, token string, opts Options) FocusResult {
	res := FocusResult{Token: token, Mode: ModeNone}
	ticket := c.seq.Add(1)
	idx, _ := c.loader.Ensure(ctx)
	if c.seq.Load() != ticket {
		res.Superseded = true
		return res
	}
	iso3, ok := country.Resolve(idx, token)
	if !ok {
		return res
	}
	res.ISO3, res.Resolved = iso3, true
	c.overlay.Show(m, iso3)

	target := country.ComputeOrigin(idx, c.geom, iso3)
	res.Target = target
	vw := 0
	_ = mapengine.Guard("viewportWidth", func() error { vw = m.ViewportWidth(); return nil })
	rightPad := RightPadding(opts.PanelWidthPx, opts.PanelMarginPx, vw)
	res.RightPadPx = rightPad

	switch {
	case target.Override && target.Center != nil:
		res.Moved = c.ease(m, *target.Center, opts.Zoom, opts.Duration)
		res.Mode = ModeOverride
	case target.Bounds != nil:
		err := mapengine.Guard("fitBounds", func() error {
			return m.FitBounds(*target.Bounds, mapengine.FitOptions{
				Padding:  mapengine.Padding{Top: EdgePadding, Left: EdgePadding, Bottom: EdgePadding, Right: rightPad},
				Duration: opts.Duration,
			})
		})
		if err == nil {
			res.Moved = true
			res.Mode = ModeFitBounds
			break
		}
		logger.L().Debug("camera_fit_failed", "iso3", iso3, "err", err)
		metrics.CameraFallbackTotal.Inc()
		res.Mode = ModeFallback
		if target.Center != nil {
			res.Moved = c.ease(m, *target.Center, math.Max(currentZoom(m), FallbackZoom), opts.Duration)
		}
	case target.Center != nil:
		res.Moved = c.ease(m, *target.Center, FallbackZoom, opts.Duration)
		res.Mode = ModeCenter
	}
	metrics.FocusTotal.WithLabelValues(string(res.Mode)).Inc()
	return res
}

func (c *Composer) ease(m mapengine.Map, center orb.Point, zoom float64, d time.Duration) bool {
	err := mapengine.Guard("easeTo", func() error {
		return m.EaseTo(mapengine.CameraOptions{Center: &center, Zoom: &zoom, Duration: d})
	})
	if err != nil {
		logger.L().Debug("camera_ease_failed", "err", err)
		return false
	}
	return true
}

func currentZoom(m mapengine.Map) float64 {
	z := 0.0
	_ = mapengine.Guard("getZoom", func() error { z = m.GetZoom(); return nil })
	return z
}
