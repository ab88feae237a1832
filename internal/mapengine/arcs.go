package mapengine

import (
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// 弧线默认参数
const (
	DefaultArcColor     = "#db6402"
	DefaultHeightFactor = 0.35
	DefaultLateral      = 0.25
)

// ArcControl：弧线控制点（经纬度 + 离地高度，米）
type ArcControl struct {
	Point     orb.Point `json:"point"`
	AltitudeM float64   `json:"altitudeM"`
}

// ArcGeometry：一条弧线的五个控制点（起点、1/3、顶点、2/3、终点）
type ArcGeometry struct {
	Arc
	DistanceKm float64       `json:"distanceKm"`
	Controls   [5]ArcControl `json:"controls"`
}

// ArcSet：ArcRenderer 的内存实现，保存弧线参数与计算出的控制点供前端绘制管状网格
type ArcSet struct {
	mu   sync.Mutex
	arcs []ArcGeometry
}

func NewArcSet() *ArcSet { return &ArcSet{} }

// SetArcs：替换全部弧线
func (a *ArcSet) SetArcs(arcs []Arc) error {
	out := make([]ArcGeometry, 0, len(arcs))
	for _, arc := range arcs {
		out = append(out, ComputeArc(arc))
	}
	a.mu.Lock()
	a.arcs = out
	a.mu.Unlock()
	return nil
}

func (a *ArcSet) Clear() error {
	a.mu.Lock()
	a.arcs = nil
	a.mu.Unlock()
	return nil
}

// Arcs：当前弧线
func (a *ArcSet) Arcs() []ArcGeometry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ArcGeometry(nil), a.arcs...)
}

// ComputeArc：沿大圆计算控制点
// 约束：顶点高度 max(800km, 距离km*10000*高度系数)；端点 max(150km, 0.18*顶点)；
// 肩点 max(300km, 0.5*顶点)；顶点沿 方位角+90° 侧移 距离*侧移系数，肩点侧移其 0.6 倍
func ComputeArc(arc Arc) ArcGeometry {
	if arc.HeightFactor <= 0 {
		arc.HeightFactor = DefaultHeightFactor
	}
	if arc.LateralFactor <= 0 {
		arc.LateralFactor = DefaultLateral
	}
	if arc.Color == "" {
		arc.Color = DefaultArcColor
	}
	distM := math.Max(10, geo.Distance(arc.From, arc.To))
	distKm := distM / 1000
	bearing := geo.Bearing(arc.From, arc.To)
	perp := bearing + 90
	lateralM := distM * arc.LateralFactor

	p1 := geo.PointAtBearingAndDistance(arc.From, bearing, distM/3)
	p2 := geo.PointAtBearingAndDistance(arc.From, bearing, 2*distM/3)
	mid := geo.Midpoint(arc.From, arc.To)

	altApex := math.Max(800_000, distKm*10_000*arc.HeightFactor)
	altBase := math.Max(150_000, altApex*0.18)
	altShoulder := math.Max(300_000, altApex*0.5)

	return ArcGeometry{
		Arc:        arc,
		DistanceKm: distKm,
		Controls: [5]ArcControl{
			{Point: arc.From, AltitudeM: altBase},
			{Point: geo.PointAtBearingAndDistance(p1, perp, lateralM*0.6), AltitudeM: altShoulder},
			{Point: geo.PointAtBearingAndDistance(mid, perp, lateralM), AltitudeM: altApex},
			{Point: geo.PointAtBearingAndDistance(p2, perp, lateralM*0.6), AltitudeM: altShoulder},
			{Point: arc.To, AltitudeM: altBase},
		},
	}
}

var _ ArcRenderer = (*ArcSet)(nil)
