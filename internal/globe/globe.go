// 包 globe：一个地图会话的上下文（场景、弧线、叠加层、相机编排、星座、连线）
package globe

import (
	"context"
	"sync"
	"time"

	"globe-notes/internal/camera"
	"globe-notes/internal/constellation"
	"globe-notes/internal/country"
	"globe-notes/internal/links"
	"globe-notes/internal/logger"
	"globe-notes/internal/mapengine"
	"globe-notes/internal/metrics"
	"globe-notes/internal/notes"
	"globe-notes/internal/overlay"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WorldCenter：初始视角中心
var WorldCenter = orb.Point{0, 20}

const (
	// ArrivalZoom：世界缩放 2.2 + 0.45
	ArrivalZoom = 2.65
	BasePitch   = 25
)

// Shared：进程内共享、跨会话复用的依赖
type Shared struct {
	Loader        *country.Loader
	Catalog       *notes.Catalog
	Entities      *constellation.EntityIndex
	Outgoing      *notes.OutgoingLinks
	Stats         constellation.Stats
	Constellation constellation.Options
	Links         links.Options
	ViewportWidth int
}

// Globe：一个地图会话
// 约束：Shared 中的国家索引与实体索引在会话间共享；场景、弧线与状态机属于本会话
type Globe struct {
	ID      string
	Created time.Time

	shared   Shared
	scene    *mapengine.Scene
	arcs     *mapengine.ArcSet
	overlay  *overlay.Renderer
	composer *camera.Composer
	linker   *constellation.Linker
	links    *links.Layer

	mu        sync.Mutex
	lastLinks *linksState
}

type linksState struct {
	From    string
	Targets []string
}

// New：建立场景并完成首次样式加载；start 非空时以其作为初始相机中心
func New(ctx context.Context, id string, sh Shared, start *orb.Point) *Globe {
	cam := mapengine.CameraState{Center: WorldCenter, Zoom: ArrivalZoom, Pitch: BasePitch}
	if start != nil {
		cam.Center = *start
	}
	scene := mapengine.NewScene(mapengine.SceneOptions{Width: sh.ViewportWidth, Camera: cam})
	ov := overlay.NewRenderer(sh.Loader)
	comp := camera.NewComposer(sh.Loader, ov, nil)
	arcs := mapengine.NewArcSet()
	g := &Globe{
		ID:       id,
		Created:  time.Now(),
		shared:   sh,
		scene:    scene,
		arcs:     arcs,
		overlay:  ov,
		composer: comp,
		links:    links.NewLayer(sh.Links),
	}
	g.linker = constellation.NewLinker(constellation.Deps{
		Map: scene, Arcs: arcs, Overlay: ov, Composer: comp,
		Catalog: sh.Catalog, Index: sh.Entities, Stats: sh.Stats,
	}, sh.Constellation)
	g.OnStyleLoad(ctx)
	return g
}

func (g *Globe) Scene() *mapengine.Scene { return g.scene }
func (g *Globe) Arcs() *mapengine.ArcSet { return g.arcs }
func (g *Globe) Linker() *constellation.Linker { return g.linker }
func (g *Globe) Overlay() *overlay.Renderer { return g.overlay }

// EnsureNotesLayers：笔记点数据源（聚类，id 提升为要素 id）与三个图层；数据源已存在时刷新数据
func (g *Globe) EnsureNotesLayers() {
	m := g.scene
	fc := notesCollection(g.shared.Catalog)
	if _, ok := m.GetSource(notes.SourceID); !ok {
		try("addSource", func() error {
			return m.AddSource(notes.SourceID, mapengine.Source{Type: "geojson", Data: fc, Cluster: true, PromoteID: "id"})
		})
	} else {
		try("setSourceData", func() error { return m.SetSourceData(notes.SourceID, fc) })
	}
	if _, ok := m.GetLayer(notes.ClustersLayerID); !ok {
		try("addLayer", func() error {
			return m.AddLayer(mapengine.Layer{
				ID: notes.ClustersLayerID, Type: "circle", Source: notes.SourceID,
				Filter: mapengine.Has("point_count"),
				Paint:  map[string]any{"circle-color": "#ba274f", "circle-radius": 20},
			}, "")
		})
	}
	if _, ok := m.GetLayer(notes.ClusterCountLayerID); !ok {
		try("addLayer", func() error {
			return m.AddLayer(mapengine.Layer{
				ID: notes.ClusterCountLayerID, Type: "symbol", Source: notes.SourceID,
				Filter: mapengine.Has("point_count"),
				Layout: map[string]any{"text-field": []any{"get", "point_count_abbreviated"}, "text-size": 12},
			}, "")
		})
	}
	if _, ok := m.GetLayer(notes.PointLayerID); !ok {
		try("addLayer", func() error {
			return m.AddLayer(mapengine.Layer{
				ID: notes.PointLayerID, Type: "circle", Source: notes.SourceID,
				Filter: mapengine.Not(mapengine.Has("point_count")),
				Paint:  map[string]any{"circle-radius": 6, "circle-opacity": dimOpacity},
			}, "")
		})
	}
}

// dimOpacity：要素状态 dim 为真时半透明
var dimOpacity = []any{"case", []any{"boolean", []any{"feature-state", "dim"}, false}, 0.25, 1}

func notesCollection(cat *notes.Catalog) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range cat.All() {
		if !n.HasCoords {
			continue
		}
		f := geojson.NewFeature(n.Point())
		f.ID = n.ID
		f.Properties["id"] = n.ID
		f.Properties["title"] = n.Title
		fc.Append(f)
	}
	return fc
}

// OnStyleLoad：样式（重新）加载后恢复所有图层、当前聚焦国家与最近一次连线
func (g *Globe) OnStyleLoad(ctx context.Context) {
	g.overlay.EnsureLayers(ctx, g.scene)
	g.EnsureNotesLayers()
	g.links.EnsureLayer(g.scene)
	g.linker.EnsureFocusLayers()

	if ent := g.linker.FocusedCountry(); ent != "" {
		idx, _ := g.shared.Loader.Ensure(ctx)
		if iso3, ok := country.Resolve(idx, ent); ok {
			g.overlay.Show(g.scene, iso3)
		}
		g.overlay.BringToFront(g.scene)
	}
	g.mu.Lock()
	last := g.lastLinks
	g.mu.Unlock()
	if last != nil {
		g.links.DrawFrom(g.scene, g.shared.Catalog, last.From, last.Targets)
	}
}

// ReloadStyle：丢弃全部数据源与图层后重新执行 OnStyleLoad
func (g *Globe) ReloadStyle(ctx context.Context) {
	g.scene.ReloadStyle()
	g.OnStyleLoad(ctx)
	logger.L().Debug("style_reloaded", "session", g.ID)
}

// Focus：按令牌聚焦国家
func (g *Globe) Focus(ctx context.Context, token string) camera.FocusResult {
	return g.composer.Focus(ctx, g.scene, token, g.shared.Constellation.Focus)
}

// ShowConstellation：显示实体星座
func (g *Globe) ShowConstellation(ctx context.Context, entityID string) constellation.Result {
	return g.linker.ShowEntityConstellation(ctx, entityID)
}

// ClearConstellation：清除实体星座
func (g *Globe) ClearConstellation() { g.linker.ClearEntityFocus() }

// HideOverlay：隐藏国家叠加层
func (g *Globe) HideOverlay() { g.overlay.Hide(g.scene) }

// ShowLinks：画出笔记的出链并记住，供样式重载后重画
func (g *Globe) ShowLinks(ctx context.Context, noteID string) []string {
	targets := g.shared.Outgoing.For(ctx, noteID)
	drawn := g.links.DrawFrom(g.scene, g.shared.Catalog, noteID, targets)
	g.mu.Lock()
	if drawn == nil {
		g.lastLinks = nil
	} else {
		g.lastLinks = &linksState{From: noteID, Targets: targets}
	}
	g.mu.Unlock()
	return drawn
}

// ClearLinks：清空连线
func (g *Globe) ClearLinks() {
	g.links.Clear(g.scene)
	g.mu.Lock()
	g.lastLinks = nil
	g.mu.Unlock()
}

// Snapshot：会话视图（场景 + 弧线 + 星座状态）
type Snapshot struct {
	Session        string                  `json:"session"`
	Scene          mapengine.SceneSnapshot `json:"scene"`
	Arcs           []mapengine.ArcGeometry `json:"arcs"`
	State          constellation.State     `json:"state"`
	FocusedCountry string                  `json:"focusedCountry,omitempty"`
}

func (g *Globe) Snapshot() Snapshot {
	return Snapshot{
		Session:        g.ID,
		Scene:          g.scene.Snapshot(),
		Arcs:           g.arcs.Arcs(),
		State:          g.linker.State(),
		FocusedCountry: g.linker.FocusedCountry(),
	}
}

func try(op string, fn func() error) {
	if err := mapengine.Guard(op, fn); err != nil {
		metrics.LayerErrorsTotal.WithLabelValues(op).Inc()
		logger.L().Debug("notes_layer_error", "op", op, "err", err)
	}
}
