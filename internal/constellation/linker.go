package constellation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"globe-notes/internal/camera"
	"globe-notes/internal/logger"
	"globe-notes/internal/mapengine"
	"globe-notes/internal/metrics"
	"globe-notes/internal/notes"
	"globe-notes/internal/overlay"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	FocusSourceID = "entity-focus"
	LinksLayerID  = "entity-focus-links"
	PointLayerID  = "entity-focus-point"

	// CountryPrefix：国家实体 ID 前缀
	CountryPrefix = "ent-country-"

	focusColor = "#db6402"
	arcHeight  = 0.18
)

// State：星座状态机
type State string

const (
	StateIdle           State = "idle"
	StateLoading        State = "loading"
	StateCountryFocused State = "countryFocused"
	StateFreeFocused    State = "freeFocused"
	StateCleared        State = "cleared"
)

// Options：星座聚焦参数
type Options struct {
	Focus            camera.Options
	FitDuration      time.Duration
	FallbackDuration time.Duration
	MinPitch         float64
}

// DefaultOptions：国家聚焦 zoom 3 / 200ms，适配 650ms，回退 600ms，俯仰至少 55°
func DefaultOptions() Options {
	return Options{
		Focus:            camera.Options{Zoom: 3, Duration: 200 * time.Millisecond, PanelWidthPx: 400, PanelMarginPx: 10},
		FitDuration:      650 * time.Millisecond,
		FallbackDuration: 600 * time.Millisecond,
		MinPitch:         55,
	}
}

// Stats：聚焦计数（可选，Postgres）
type Stats interface {
	IncrFocus(ctx context.Context, entityID string) error
}

// Result：一次星座请求的结果
type Result struct {
	Entity     string     `json:"entity"`
	State      State      `json:"state"`
	Linked     []string   `json:"linked"`
	Origin     *orb.Point `json:"origin,omitempty"`
	ISO3       string     `json:"iso3,omitempty"`
	Framed     bool       `json:"framed"`
	Superseded bool       `json:"superseded"`
}

// Deps：会话内的协作者；Arcs 与 Stats 可为空
type Deps struct {
	Map      mapengine.Map
	Arcs     mapengine.ArcRenderer
	Overlay  *overlay.Renderer
	Composer *camera.Composer
	Catalog  *notes.Catalog
	Index    *EntityIndex
	Stats    Stats
}

// Linker：实体星座（每个地图会话一个）
// 背景：扫描笔记是挂起点；扫描回来时若已有更新的请求（含清除），放弃本次所有可见变更
type Linker struct {
	d    Deps
	opts Options
	seq  atomic.Uint64

	mu      sync.Mutex
	state   State
	focused string
}

func NewLinker(d Deps, opts Options) *Linker {
	return &Linker{d: d, opts: opts, state: StateIdle}
}

// State：当前状态
func (l *Linker) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// FocusedCountry：当前聚焦的国家实体 ID，没有时为空
func (l *Linker) FocusedCountry() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.focused
}

func (l *Linker) set(s State, focused string) {
	l.mu.Lock()
	l.state, l.focused = s, focused
	l.mu.Unlock()
	metrics.ConstellationTotal.WithLabelValues(string(s)).Inc()
}

// EnsureFocusLayers：幂等地确保 entity-focus 数据源与两个图层（插在聚类图层之下）
func (l *Linker) EnsureFocusLayers() {
	m := l.d.Map
	if _, ok := m.GetSource(FocusSourceID); !ok {
		try("addSource", func() error {
			return m.AddSource(FocusSourceID, mapengine.Source{Type: "geojson", Data: mapengine.EmptyCollection()})
		})
	}
	before := ""
	if _, ok := m.GetLayer(notes.ClustersLayerID); ok {
		before = notes.ClustersLayerID
	}
	if _, ok := m.GetLayer(LinksLayerID); !ok {
		try("addLayer", func() error {
			return m.AddLayer(mapengine.Layer{
				ID: LinksLayerID, Type: "line", Source: FocusSourceID,
				Filter: mapengine.Eq(mapengine.Get("kind"), "edge"),
				Layout: map[string]any{"visibility": mapengine.Hidden},
				Paint: map[string]any{
					"line-width": 2, "line-color": focusColor, "line-opacity": 0.8,
					"line-dasharray": []float64{1.5, 1.5},
				},
			}, before)
		})
	}
	if _, ok := m.GetLayer(PointLayerID); !ok {
		try("addLayer", func() error {
			return m.AddLayer(mapengine.Layer{
				ID: PointLayerID, Type: "circle", Source: FocusSourceID,
				Filter: mapengine.Eq(mapengine.Get("kind"), "origin"),
				Layout: map[string]any{"visibility": mapengine.Hidden},
				Paint: map[string]any{
					"circle-radius": 6, "circle-color": focusColor,
					"circle-stroke-width": 2, "circle-stroke-color": "#fff",
				},
			}, before)
		})
	}
}

// ShowEntityConstellation：显示实体与其关联笔记之间的连线
// 约束：
// - 没有关联笔记时等同清除，状态为 Cleared
// - 国家实体交给相机编排器取景，已取景时不再适配连线外接框
// - 不向外返回错误，图层与相机失败只记录日志
func (l *Linker) ShowEntityConstellation(ctx context.Context, entityID string) Result {
	res := Result{Entity: entityID}
	ticket := l.seq.Add(1)
	l.set(StateLoading, l.FocusedCountry())

	linked := l.d.Index.EnsureFilled(ctx, entityID)
	if l.seq.Load() != ticket {
		res.Superseded = true
		return res
	}
	res.Linked = linked
	if len(linked) == 0 {
		l.clearVisuals()
		l.set(StateCleared, "")
		res.State = StateCleared
		return res
	}
	if l.d.Stats != nil {
		if err := l.d.Stats.IncrFocus(ctx, entityID); err != nil {
			logger.L().Warn("focus_stats_error", "entity", entityID, "err", err)
		}
	}

	var origin *orb.Point
	if strings.HasPrefix(entityID, CountryPrefix) {
		fr := l.d.Composer.Focus(ctx, l.d.Map, entityID, l.opts.Focus)
		if l.seq.Load() != ticket {
			res.Superseded = true
			return res
		}
		res.ISO3, res.Framed = fr.ISO3, fr.Moved
		if fr.Moved {
			l.ensurePitch()
		}
		if fr.Resolved {
			l.d.Overlay.BringToFront(l.d.Map)
		} else {
			l.d.Overlay.Hide(l.d.Map)
		}
		origin = fr.Target.Center
		res.State = StateCountryFocused
	} else {
		l.d.Overlay.Hide(l.d.Map)
		res.State = StateFreeFocused
	}
	if origin == nil {
		origin = l.centroid(linked)
	}
	res.Origin = origin

	fc, bounds := l.edges(entityID, *origin, linked)
	try("setSourceData", func() error { return l.d.Map.SetSourceData(FocusSourceID, fc) })
	l.setFocusVisibility(mapengine.Visible)
	if l.d.Arcs != nil {
		arcs := make([]mapengine.Arc, 0, len(linked))
		for _, id := range linked {
			if n, ok := l.d.Catalog.Get(id); ok && n.HasCoords {
				arcs = append(arcs, mapengine.Arc{From: *origin, To: n.Point(), Color: focusColor, HeightFactor: arcHeight})
			}
		}
		try("setArcs", func() error { return l.d.Arcs.SetArcs(arcs) })
		try("setLayoutProperty", func() error {
			return l.d.Map.SetLayoutProperty(LinksLayerID, "visibility", mapengine.Hidden)
		})
	}
	l.dim(linked)

	if !res.Framed {
		l.frame(bounds, *origin)
	}
	focused := ""
	if res.State == StateCountryFocused {
		focused = entityID
	}
	l.set(res.State, focused)
	return res
}

// ClearEntityFocus：隐藏焦点图层、清空连线与弧线、取消所有变暗、隐藏国家叠加层，回到 Idle
// 同时作废尚在扫描中的星座请求
func (l *Linker) ClearEntityFocus() {
	l.seq.Add(1)
	l.clearVisuals()
	l.set(StateIdle, "")
}

func (l *Linker) clearVisuals() {
	m := l.d.Map
	l.setFocusVisibility(mapengine.Hidden)
	if _, ok := m.GetSource(FocusSourceID); ok {
		try("setSourceData", func() error { return m.SetSourceData(FocusSourceID, mapengine.EmptyCollection()) })
	}
	l.undimAll()
	if l.d.Arcs != nil {
		try("clearArcs", l.d.Arcs.Clear)
	}
	l.d.Overlay.Hide(m)
}

func (l *Linker) setFocusVisibility(v string) {
	for _, id := range []string{LinksLayerID, PointLayerID} {
		id := id
		try("setLayoutProperty", func() error { return l.d.Map.SetLayoutProperty(id, "visibility", v) })
	}
}

// centroid：关联笔记坐标的算术平均；都没有坐标时取当前相机中心
func (l *Linker) centroid(linked []string) *orb.Point {
	var sx, sy float64
	n := 0
	for _, id := range linked {
		if note, ok := l.d.Catalog.Get(id); ok && note.HasCoords {
			sx += note.Lon
			sy += note.Lat
			n++
		}
	}
	if n > 0 {
		p := orb.Point{sx / float64(n), sy / float64(n)}
		return &p
	}
	var p orb.Point
	_ = mapengine.Guard("getCenter", func() error { p = l.d.Map.GetCenter(); return nil })
	return &p
}

// edges：起点要素 + 每条关联笔记一条连线，连同包含起点的外接框
func (l *Linker) edges(entityID string, origin orb.Point, linked []string) (*geojson.FeatureCollection, orb.Bound) {
	fc := geojson.NewFeatureCollection()
	o := geojson.NewFeature(origin)
	o.Properties["kind"] = "origin"
	o.Properties["entityId"] = entityID
	fc.Append(o)
	bounds := origin.Bound()
	for _, id := range linked {
		n, ok := l.d.Catalog.Get(id)
		if !ok || !n.HasCoords {
			continue
		}
		f := geojson.NewFeature(orb.LineString{origin, n.Point()})
		f.Properties["kind"] = "edge"
		f.Properties["entityId"] = entityID
		f.Properties["to"] = id
		fc.Append(f)
		bounds = bounds.Extend(n.Point())
	}
	return fc, bounds
}

// dim：先把所有笔记变暗，再恢复关联笔记
func (l *Linker) dim(linked []string) {
	if _, ok := l.d.Map.GetSource(notes.SourceID); !ok {
		return
	}
	for _, n := range l.d.Catalog.All() {
		ref := mapengine.FeatureRef{Source: notes.SourceID, ID: n.ID}
		try("setFeatureState", func() error { return l.d.Map.SetFeatureState(ref, map[string]any{"dim": true}) })
	}
	for _, id := range linked {
		ref := mapengine.FeatureRef{Source: notes.SourceID, ID: id}
		try("setFeatureState", func() error { return l.d.Map.SetFeatureState(ref, map[string]any{"dim": false}) })
	}
}

func (l *Linker) undimAll() {
	if _, ok := l.d.Map.GetSource(notes.SourceID); !ok {
		return
	}
	for _, n := range l.d.Catalog.All() {
		ref := mapengine.FeatureRef{Source: notes.SourceID, ID: n.ID}
		try("setFeatureState", func() error { return l.d.Map.SetFeatureState(ref, map[string]any{"dim": false}) })
	}
}

// frame：适配连线外接框，失败时回退为 起点 + max(当前缩放, 4.2)
func (l *Linker) frame(b orb.Bound, origin orb.Point) {
	m := l.d.Map
	vw := 0
	_ = mapengine.Guard("viewportWidth", func() error { vw = m.ViewportWidth(); return nil })
	right := camera.RightPadding(l.opts.Focus.PanelWidthPx, l.opts.Focus.PanelMarginPx, vw)
	err := mapengine.Guard("fitBounds", func() error {
		return m.FitBounds(b, mapengine.FitOptions{
			Padding:  mapengine.Padding{Top: camera.EdgePadding, Left: camera.EdgePadding, Bottom: camera.EdgePadding, Right: right},
			Duration: l.opts.FitDuration,
		})
	})
	if err != nil {
		logger.L().Debug("constellation_fit_failed", "err", err)
		metrics.CameraFallbackTotal.Inc()
		zoom := camera.FallbackZoom
		_ = mapengine.Guard("getZoom", func() error {
			if z := m.GetZoom(); z > zoom {
				zoom = z
			}
			return nil
		})
		try("easeTo", func() error {
			return m.EaseTo(mapengine.CameraOptions{Center: &origin, Zoom: &zoom, Duration: l.opts.FallbackDuration})
		})
	}
	l.ensurePitch()
}

// ensurePitch：俯仰角低于下限时立即抬升
func (l *Linker) ensurePitch() {
	floor := l.opts.MinPitch
	pitch := 0.0
	_ = mapengine.Guard("getPitch", func() error { pitch = l.d.Map.GetPitch(); return nil })
	if pitch >= floor {
		return
	}
	try("easeTo", func() error { return l.d.Map.EaseTo(mapengine.CameraOptions{Pitch: &floor}) })
}

func try(op string, fn func() error) {
	if err := mapengine.Guard(op, fn); err != nil {
		metrics.LayerErrorsTotal.WithLabelValues(op).Inc()
		logger.L().Debug("constellation_layer_error", "op", op, "err", err)
	}
}
