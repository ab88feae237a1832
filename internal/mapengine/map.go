// 包 mapengine：地图引擎能力接口与内存实现
// 背景：叠加层、相机与星座逻辑只通过 Map 接口操作数据源、图层与相机；
// 浏览器中的渲染引擎与服务端的 Scene 都实现该接口
package mapengine

import (
	"errors"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrNoSuchLayer      = errors.New("no such layer")
	ErrNoSuchSource     = errors.New("no such source")
	ErrDuplicateID      = errors.New("id already exists")
	ErrDegenerateBounds = errors.New("degenerate bounds")
	ErrPaddingOverflow  = errors.New("padding exceeds viewport")
)

// 可见性取值
const (
	Visible = "visible"
	Hidden  = "none"
)

// Source：GeoJSON 数据源
type Source struct {
	Type    string                     `json:"type"`
	URL     string                     `json:"url,omitempty"`
	Data    *geojson.FeatureCollection `json:"-"`
	Cluster bool                       `json:"cluster,omitempty"`
	// PromoteID：把该属性提升为要素 id（要素状态以此为键）
	PromoteID string `json:"promoteId,omitempty"`
}

// Layer：样式图层
type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Filter Filter         `json:"filter,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// Visibility：布局属性 visibility，缺省为可见
func (l Layer) Visibility() string {
	if v, ok := l.Layout["visibility"].(string); ok && v != "" {
		return v
	}
	return Visible
}

// CameraOptions：EaseTo 参数；nil 字段保持当前值
type CameraOptions struct {
	Center   *orb.Point    `json:"center,omitempty"`
	Zoom     *float64      `json:"zoom,omitempty"`
	Pitch    *float64      `json:"pitch,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Padding：屏幕像素留白
type Padding struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

type FitOptions struct {
	Padding  Padding       `json:"padding"`
	Duration time.Duration `json:"duration"`
}

// FeatureRef：要素状态键
type FeatureRef struct {
	Source string `json:"source"`
	ID     string `json:"id"`
}

// Map：地图引擎能力
// 约束：可能失败的操作返回 error；调用方以 Guard 包裹，实现中的 panic 同样转为 error
type Map interface {
	AddSource(id string, src Source) error
	GetSource(id string) (Source, bool)
	SetSourceData(id string, fc *geojson.FeatureCollection) error

	AddLayer(layer Layer, beforeID string) error
	GetLayer(id string) (Layer, bool)
	RemoveLayer(id string) error
	SetFilter(layerID string, f Filter) error
	SetLayoutProperty(layerID, name string, value any) error
	SetPaintProperty(layerID, name string, value any) error
	// MoveLayer：beforeID 为空时移到最上层
	MoveLayer(layerID, beforeID string) error

	EaseTo(opts CameraOptions) error
	FitBounds(b orb.Bound, opts FitOptions) error
	GetZoom() float64
	GetPitch() float64
	GetCenter() orb.Point
	// ViewportWidth：容器宽度（像素），未知时为 0
	ViewportWidth() int

	SetFeatureState(ref FeatureRef, state map[string]any) error
	GetFeatureState(ref FeatureRef) map[string]any
}

// Arc：三维弧线参数（起点、终点、颜色、高度系数）
type Arc struct {
	From          orb.Point `json:"from"`
	To            orb.Point `json:"to"`
	Color         string    `json:"color"`
	HeightFactor  float64   `json:"heightFactor"`
	LateralFactor float64   `json:"lateralFactor,omitempty"`
}

// ArcRenderer：三维弧线渲染能力（纯装饰，可缺省）
type ArcRenderer interface {
	SetArcs(arcs []Arc) error
	Clear() error
}

// EmptyCollection：空要素集合
func EmptyCollection() *geojson.FeatureCollection { return geojson.NewFeatureCollection() }
