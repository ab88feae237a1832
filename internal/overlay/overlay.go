// 包 overlay：国家多边形叠加层（填充 + 轮廓），按 ISO3 显示单个国家
package overlay

import (
	"context"

	"globe-notes/internal/country"
	"globe-notes/internal/logger"
	"globe-notes/internal/mapengine"
	"globe-notes/internal/metrics"
)

const (
	SourceID  = "country-overlay-src"
	FillID    = "country-overlay-fill"
	OutlineID = "country-overlay-outline"

	// 不会与任何真实代码相等的过滤值
	NoneSentinel = "__NONE__"

	// CodeProperty：写入数据源要素的规范三字母代码（与索引一致）
	CodeProperty = "_iso3"
)

// Renderer：国家叠加层
// 约束：所有图层操作失败都被吞掉并记录日志，叠加层故障不影响笔记浏览
type Renderer struct {
	loader *country.Loader
}

func NewRenderer(loader *country.Loader) *Renderer {
	return &Renderer{loader: loader}
}

// CodeExpr：要素的规范代码
// 约束：原始代码属性可能是 "-99" 占位或小写，只比较 collection 写入的 CodeProperty
func CodeExpr() []any { return mapengine.Get(CodeProperty) }

// FilterFor：匹配代码等于 iso3 的要素
func FilterFor(iso3 string) mapengine.Filter { return mapengine.Eq(CodeExpr(), iso3) }

// NoneFilter：不匹配任何要素
func NoneFilter() mapengine.Filter { return FilterFor(NoneSentinel) }

// EnsureLayers：幂等地确保数据源与两个图层存在（先查后建），初始隐藏且过滤为哨兵值
// 背景：每次样式重载都会调用；数据集已加载时把要素写入数据源
func (r *Renderer) EnsureLayers(ctx context.Context, m mapengine.Map) {
	idx, _ := r.loader.Ensure(ctx)
	src, ok := m.GetSource(SourceID)
	if !ok {
		s := mapengine.Source{Type: "geojson", URL: idx.Source()}
		if idx.Ready() {
			s.Data = collection(idx)
		}
		r.try("addSource", func() error { return m.AddSource(SourceID, s) })
	} else if (src.Data == nil || len(src.Data.Features) == 0) && idx.Ready() {
		r.try("setSourceData", func() error { return m.SetSourceData(SourceID, collection(idx)) })
	}
	if _, ok := m.GetLayer(FillID); !ok {
		r.try("addLayer", func() error {
			return m.AddLayer(mapengine.Layer{
				ID: FillID, Type: "fill", Source: SourceID, Filter: NoneFilter(),
				Layout: map[string]any{"visibility": mapengine.Hidden},
				Paint:  map[string]any{"fill-color": "#60a5fa", "fill-opacity": 0.25},
			}, "")
		})
	}
	if _, ok := m.GetLayer(OutlineID); !ok {
		r.try("addLayer", func() error {
			return m.AddLayer(mapengine.Layer{
				ID: OutlineID, Type: "line", Source: SourceID, Filter: NoneFilter(),
				Layout: map[string]any{"visibility": mapengine.Hidden},
				Paint:  map[string]any{"line-color": "#3b82f6", "line-width": 1.5},
			}, "")
		})
	}
	r.BringToFront(m)
}

// Show：两个图层只显示 iso3 并设为可见；iso3 为空时不做任何事
func (r *Renderer) Show(m mapengine.Map, iso3 string) {
	if iso3 == "" {
		return
	}
	f := FilterFor(iso3)
	for _, id := range []string{FillID, OutlineID} {
		id := id
		r.try("setFilter", func() error { return m.SetFilter(id, f) })
		r.try("setLayoutProperty", func() error { return m.SetLayoutProperty(id, "visibility", mapengine.Visible) })
	}
}

// Hide：隐藏并把过滤器复位为哨兵值，再次显示前不会闪出旧国家
func (r *Renderer) Hide(m mapengine.Map) {
	for _, id := range []string{FillID, OutlineID} {
		id := id
		r.try("setLayoutProperty", func() error { return m.SetLayoutProperty(id, "visibility", mapengine.Hidden) })
		r.try("setFilter", func() error { return m.SetFilter(id, NoneFilter()) })
	}
}

// BringToFront：移到所有图层之上；图层不存在时为空操作
func (r *Renderer) BringToFront(m mapengine.Map) {
	for _, id := range []string{FillID, OutlineID} {
		if _, ok := m.GetLayer(id); !ok {
			continue
		}
		id := id
		r.try("moveLayer", func() error { return m.MoveLayer(id, "") })
	}
}

func (r *Renderer) try(op string, fn func() error) {
	if err := mapengine.Guard(op, fn); err != nil {
		metrics.LayerErrorsTotal.WithLabelValues(op).Inc()
		logger.L().Debug("overlay_layer_error", "op", op, "err", err)
	}
}
