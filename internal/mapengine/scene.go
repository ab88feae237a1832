package mapengine

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 文档注释：Scene 是 Map 的内存实现
// 背景：服务端为每个地图会话保存一份场景（数据源、有序图层、过滤器、要素状态、相机），
// 通过 HTTP 以快照形式返回给浏览器回放；测试中用作假地图
// 约束：并发安全；FitBounds 遇到零面积/空外接框或留白超出视口时返回错误且相机不动
type Scene struct {
	mu       sync.Mutex
	sources  map[string]*Source
	layers   []*Layer
	state    map[FeatureRef]map[string]any
	camera   CameraState
	moves    []CameraMove
	width    int
	height   int
	faults   map[string]error
	reloads  int
	maxMoves int
}

// CameraState：当前相机
type CameraState struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
	Pitch  float64   `json:"pitch"`
}

// CameraMove：一次相机动画请求
type CameraMove struct {
	Op         string         `json:"op"`
	Center     *orb.Point     `json:"center,omitempty"`
	Zoom       *float64       `json:"zoom,omitempty"`
	Pitch      *float64       `json:"pitch,omitempty"`
	Bounds     *[2][2]float64 `json:"bounds,omitempty"`
	Padding    *Padding       `json:"padding,omitempty"`
	DurationMs int64          `json:"durationMs"`
}

// SceneOptions：视口尺寸与初始相机
type SceneOptions struct {
	Width  int
	Height int
	Camera CameraState
}

// NewScene：宽高缺省为 1280x800
func NewScene(opts SceneOptions) *Scene {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	return &Scene{
		sources:  map[string]*Source{},
		state:    map[FeatureRef]map[string]any{},
		camera:   opts.Camera,
		width:    opts.Width,
		height:   opts.Height,
		faults:   map[string]error{},
		maxMoves: 64,
	}
}

// FailOn：令指定操作返回 err（err 为 nil 时取消），模拟样式重载期间的图层竞态
func (s *Scene) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// ReloadStyle：模拟切换底图样式，清空全部数据源、图层与要素状态，相机保持
func (s *Scene) ReloadStyle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = map[string]*Source{}
	s.layers = nil
	s.state = map[FeatureRef]map[string]any{}
	s.reloads++
}

func (s *Scene) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		return err
	}
	return nil
}

func (s *Scene) AddSource(id string, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("addSource"); err != nil {
		return err
	}
	if _, ok := s.sources[id]; ok {
		return fmt.Errorf("source %q: %w", id, ErrDuplicateID)
	}
	if src.Data == nil && src.URL == "" {
		src.Data = EmptyCollection()
	}
	s.sources[id] = &src
	return nil
}

func (s *Scene) GetSource(id string) (Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return Source{}, false
	}
	return *src, true
}

func (s *Scene) SetSourceData(id string, fc *geojson.FeatureCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("setSourceData"); err != nil {
		return err
	}
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %q: %w", id, ErrNoSuchSource)
	}
	if fc == nil {
		fc = EmptyCollection()
	}
	src.Data = fc
	return nil
}

func (s *Scene) AddLayer(layer Layer, beforeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("addLayer"); err != nil {
		return err
	}
	if s.layerIndex(layer.ID) >= 0 {
		return fmt.Errorf("layer %q: %w", layer.ID, ErrDuplicateID)
	}
	if _, ok := s.sources[layer.Source]; !ok {
		return fmt.Errorf("layer %q source %q: %w", layer.ID, layer.Source, ErrNoSuchSource)
	}
	l := layer
	l.Layout = cloneMap(layer.Layout)
	l.Paint = cloneMap(layer.Paint)
	s.insert(&l, beforeID)
	return nil
}

func (s *Scene) GetLayer(id string) (Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.layerIndex(id)
	if i < 0 {
		return Layer{}, false
	}
	l := *s.layers[i]
	l.Layout = cloneMap(l.Layout)
	l.Paint = cloneMap(l.Paint)
	return l, true
}

func (s *Scene) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("removeLayer"); err != nil {
		return err
	}
	i := s.layerIndex(id)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", id, ErrNoSuchLayer)
	}
	s.layers = append(s.layers[:i], s.layers[i+1:]...)
	return nil
}

func (s *Scene) SetFilter(layerID string, f Filter) error {
	return s.mutateLayer("setFilter", layerID, func(l *Layer) { l.Filter = f })
}

func (s *Scene) SetLayoutProperty(layerID, name string, value any) error {
	return s.mutateLayer("setLayoutProperty", layerID, func(l *Layer) {
		if l.Layout == nil {
			l.Layout = map[string]any{}
		}
		setOrDelete(l.Layout, name, value)
	})
}

func (s *Scene) SetPaintProperty(layerID, name string, value any) error {
	return s.mutateLayer("setPaintProperty", layerID, func(l *Layer) {
		if l.Paint == nil {
			l.Paint = map[string]any{}
		}
		setOrDelete(l.Paint, name, value)
	})
}

func (s *Scene) MoveLayer(layerID, beforeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("moveLayer"); err != nil {
		return err
	}
	i := s.layerIndex(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", layerID, ErrNoSuchLayer)
	}
	l := s.layers[i]
	s.layers = append(s.layers[:i], s.layers[i+1:]...)
	s.insert(l, beforeID)
	return nil
}

func (s *Scene) EaseTo(opts CameraOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("easeTo"); err != nil {
		return err
	}
	if opts.Center != nil {
		s.camera.Center = *opts.Center
	}
	if opts.Zoom != nil {
		s.camera.Zoom = *opts.Zoom
	}
	if opts.Pitch != nil {
		s.camera.Pitch = *opts.Pitch
	}
	s.record(CameraMove{Op: "easeTo", Center: opts.Center, Zoom: opts.Zoom, Pitch: opts.Pitch, DurationMs: opts.Duration.Milliseconds()})
	return nil
}

// FitBounds：按留白后的可用像素估算缩放级别（512 像素瓦片，线性纬度）
func (s *Scene) FitBounds(b orb.Bound, opts FitOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("fitBounds"); err != nil {
		return err
	}
	dx := b.Max[0] - b.Min[0]
	dy := b.Max[1] - b.Min[1]
	if !(dx > 0) || !(dy > 0) {
		return fmt.Errorf("%v: %w", b, ErrDegenerateBounds)
	}
	p := opts.Padding
	availW := float64(s.width) - p.Left - p.Right
	availH := float64(s.height) - p.Top - p.Bottom
	if availW <= 0 || availH <= 0 {
		return fmt.Errorf("padding %+v in %dx%d: %w", p, s.width, s.height, ErrPaddingOverflow)
	}
	zw := math.Log2(availW * 360 / (dx * 512))
	zh := math.Log2(availH * 180 / (dy * 512))
	zoom := math.Max(0, math.Min(22, math.Min(zw, zh)))
	center := b.Center()
	s.camera.Center = center
	s.camera.Zoom = zoom
	bb := [2][2]float64{{b.Min[0], b.Min[1]}, {b.Max[0], b.Max[1]}}
	pad := p
	s.record(CameraMove{Op: "fitBounds", Center: &center, Zoom: &zoom, Bounds: &bb, Padding: &pad, DurationMs: opts.Duration.Milliseconds()})
	return nil
}

func (s *Scene) GetZoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera.Zoom
}

func (s *Scene) GetPitch() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera.Pitch
}

func (s *Scene) GetCenter() orb.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera.Center
}

func (s *Scene) ViewportWidth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

// SetViewport：浏览器回报容器尺寸
func (s *Scene) SetViewport(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width > 0 {
		s.width = width
	}
	if height > 0 {
		s.height = height
	}
}

func (s *Scene) SetFeatureState(ref FeatureRef, state map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("setFeatureState"); err != nil {
		return err
	}
	if _, ok := s.sources[ref.Source]; !ok {
		return fmt.Errorf("feature state %s/%s: %w", ref.Source, ref.ID, ErrNoSuchSource)
	}
	cur := s.state[ref]
	if cur == nil {
		cur = map[string]any{}
		s.state[ref] = cur
	}
	for k, v := range state {
		cur[k] = v
	}
	return nil
}

func (s *Scene) GetFeatureState(ref FeatureRef) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMap(s.state[ref])
}

// Camera：当前相机
func (s *Scene) Camera() CameraState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// Moves：相机动画记录（最旧在前）
func (s *Scene) Moves() []CameraMove {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CameraMove(nil), s.moves...)
}

// LayerOrder：图层 id，自底向上
func (s *Scene) LayerOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.ID
	}
	return out
}

// SourceCount：数据源数量
func (s *Scene) SourceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// VisibleFeatures：图层当前绘制的要素（不可见时为空）
func (s *Scene) VisibleFeatures(layerID string) []*geojson.Feature {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.layerIndex(layerID)
	if i < 0 {
		return nil
	}
	l := s.layers[i]
	if l.Visibility() == Hidden {
		return nil
	}
	src := s.sources[l.Source]
	if src == nil || src.Data == nil {
		return nil
	}
	var out []*geojson.Feature
	for _, f := range src.Data.Features {
		if l.Filter.Matches(f.Properties) {
			out = append(out, f)
		}
	}
	return out
}

// SceneSnapshot：可序列化的场景视图
type SceneSnapshot struct {
	Viewport     [2]int                    `json:"viewport"`
	Sources      []SourceSnapshot          `json:"sources"`
	Layers       []LayerSnapshot           `json:"layers"`
	Camera       CameraState               `json:"camera"`
	Moves        []CameraMove              `json:"moves"`
	FeatureState map[string]map[string]any `json:"featureState"`
	StyleReloads int                       `json:"styleReloads"`
}

type SourceSnapshot struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Features int    `json:"features"`
	Cluster  bool   `json:"cluster,omitempty"`
}

type LayerSnapshot struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	Visibility string         `json:"visibility"`
	Filter     Filter         `json:"filter,omitempty"`
	Paint      map[string]any `json:"paint,omitempty"`
}

// Snapshot：当前场景的只读拷贝
func (s *Scene) Snapshot() SceneSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := SceneSnapshot{
		Viewport:     [2]int{s.width, s.height},
		Camera:       s.camera,
		Moves:        append([]CameraMove(nil), s.moves...),
		FeatureState: map[string]map[string]any{},
		StyleReloads: s.reloads,
	}
	ids := make([]string, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		src := s.sources[id]
		n := 0
		if src.Data != nil {
			n = len(src.Data.Features)
		}
		snap.Sources = append(snap.Sources, SourceSnapshot{ID: id, Type: src.Type, URL: src.URL, Features: n, Cluster: src.Cluster})
	}
	for _, l := range s.layers {
		snap.Layers = append(snap.Layers, LayerSnapshot{
			ID: l.ID, Type: l.Type, Source: l.Source, Visibility: l.Visibility(), Filter: l.Filter, Paint: cloneMap(l.Paint),
		})
	}
	for ref, st := range s.state {
		snap.FeatureState[ref.Source+"/"+ref.ID] = cloneMap(st)
	}
	return snap
}

func (s *Scene) mutateLayer(op, id string, fn func(*Layer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(op); err != nil {
		return err
	}
	i := s.layerIndex(id)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", id, ErrNoSuchLayer)
	}
	fn(s.layers[i])
	return nil
}

func (s *Scene) layerIndex(id string) int {
	for i, l := range s.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// insert：beforeID 不存在或为空时追加到最上层
func (s *Scene) insert(l *Layer, beforeID string) {
	if beforeID != "" {
		if j := s.layerIndex(beforeID); j >= 0 {
			s.layers = append(s.layers, nil)
			copy(s.layers[j+1:], s.layers[j:])
			s.layers[j] = l
			return
		}
	}
	s.layers = append(s.layers, l)
}

func (s *Scene) record(m CameraMove) {
	s.moves = append(s.moves, m)
	if len(s.moves) > s.maxMoves {
		s.moves = s.moves[len(s.moves)-s.maxMoves:]
	}
}

func setOrDelete(m map[string]any, k string, v any) {
	if v == nil {
		delete(m, k)
		return
	}
	m[k] = v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Map = (*Scene)(nil)
