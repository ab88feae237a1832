// 包 links：笔记之间的连线图层（note-links 数据源 + note-links-line 图层）
package links

import (
	"globe-notes/internal/logger"
	"globe-notes/internal/mapengine"
	"globe-notes/internal/metrics"
	"globe-notes/internal/notes"

	"github.com/paulmach/orb/geojson"
)

const (
	SourceID = "note-links"
	LayerID  = "note-links-line"
)

// Options：连线外观
type Options struct {
	Color         string
	Width         float64
	Opacity       float64
	CurveStyle    string
	CurveStrength float64
	CurveSteps    int
}

// DefaultOptions：默认外观（暗红、贝塞尔曲线）
func DefaultOptions() Options {
	return Options{
		Color:         "#9e0909",
		Width:         2.5,
		Opacity:       0.95,
		CurveStyle:    StyleBezier,
		CurveStrength: 0.3,
		CurveSteps:    96,
	}
}

// Layer：连线图层
type Layer struct {
	opts Options
}

func NewLayer(opts Options) *Layer {
	if opts.CurveSteps <= 0 {
		opts.CurveSteps = 96
	}
	return &Layer{opts: opts}
}

func (l *Layer) paint() map[string]any {
	return map[string]any{
		"line-color":   l.opts.Color,
		"line-width":   l.opts.Width,
		"line-opacity": l.opts.Opacity,
	}
}

// EnsureLayer：先查后建；图层已存在时刷新画笔属性；最后移到最上层
func (l *Layer) EnsureLayer(m mapengine.Map) {
	if _, ok := m.GetSource(SourceID); !ok {
		try("addSource", func() error {
			return m.AddSource(SourceID, mapengine.Source{Type: "geojson", Data: mapengine.EmptyCollection()})
		})
	}
	if _, ok := m.GetLayer(LayerID); !ok {
		try("addLayer", func() error {
			return m.AddLayer(mapengine.Layer{
				ID: LayerID, Type: "line", Source: SourceID,
				Layout: map[string]any{"line-cap": "round", "line-join": "round"},
				Paint:  l.paint(),
			}, "")
		})
	} else {
		for k, v := range l.paint() {
			k, v := k, v
			try("setPaintProperty", func() error { return m.SetPaintProperty(LayerID, k, v) })
		}
	}
	l.toFront(m)
}

// DrawFrom：从 from 画到每个目录内且有坐标的目标；from 未知或无坐标时清空数据源
// 返回实际画出的目标
func (l *Layer) DrawFrom(m mapengine.Map, cat *notes.Catalog, from string, targets []string) []string {
	src, ok := cat.Get(from)
	if !ok || !src.HasCoords {
		l.Clear(m)
		return nil
	}
	a := src.Point()
	fc := geojson.NewFeatureCollection()
	var drawn []string
	for _, to := range targets {
		dst, ok := cat.Get(to)
		if !ok || !dst.HasCoords {
			continue
		}
		f := geojson.NewFeature(CurveBetween(a, dst.Point(), l.opts.CurveStyle, l.opts.CurveStrength, l.opts.CurveSteps))
		f.Properties["from"] = from
		f.Properties["to"] = to
		fc.Append(f)
		drawn = append(drawn, to)
	}
	try("setSourceData", func() error { return m.SetSourceData(SourceID, fc) })
	l.toFront(m)
	return drawn
}

// Clear：清空连线
func (l *Layer) Clear(m mapengine.Map) {
	if _, ok := m.GetSource(SourceID); !ok {
		return
	}
	try("setSourceData", func() error { return m.SetSourceData(SourceID, mapengine.EmptyCollection()) })
}

func (l *Layer) toFront(m mapengine.Map) {
	if _, ok := m.GetLayer(LayerID); ok {
		try("moveLayer", func() error { return m.MoveLayer(LayerID, "") })
	}
}

func try(op string, fn func() error) {
	if err := mapengine.Guard(op, fn); err != nil {
		metrics.LayerErrorsTotal.WithLabelValues(op).Inc()
		logger.L().Debug("links_layer_error", "op", op, "err", err)
	}
}
