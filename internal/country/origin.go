package country

import (
	"encoding/json"

	"github.com/paulmach/orb"
)

// OriginOverrides：人工选定的国家落点 [经度, 纬度]
// 背景：极地、跨 180° 经线或面积过大的国家，几何中心在画面上没有意义（落在海上或画面外）
var OriginOverrides = map[string]orb.Point{
	"RUS": {100, 60},
	"USA": {-98.5, 39.5},
	"CAN": {-100, 60},
	"FRA": {2.5, 46.5},
	"NOR": {10, 62},
	"NZL": {172.5, -41.5},
	"FJI": {178, -17.8},
	"KIR": {-157.4, 1.9},
	"AUS": {134, -25.5},
	"GRL": {-41, 72},
	"CHL": {-71, -35.7},
	"DNK": {10, 56},
	"NLD": {5.3, 52.2},
	"GBR": {-2, 54},
}

// Override：查人工落点
func Override(iso3 string) (orb.Point, bool) {
	p, ok := OriginOverrides[iso3]
	return p, ok
}

// FocusTarget：相机目标；Center/Bounds 均可能为空
type FocusTarget struct {
	Center   *orb.Point `json:"center"`
	Bounds   *orb.Bound `json:"bounds"`
	Override bool       `json:"override"`
}

// Empty：既无中心也无外接框
func (t FocusTarget) Empty() bool { return t.Center == nil && t.Bounds == nil }

// ComputeOrigin：计算国家的代表落点
// 约束：有人工落点时中心替换为人工值（即使索引中没有该国要素）；外接框仍取几何结果
// geom 为空时使用 ManualGeometry
func ComputeOrigin(idx *Index, geom Geometry, iso3 string) FocusTarget {
	var t FocusTarget
	if geom == nil {
		geom = ManualGeometry{}
	}
	if idx != nil {
		if f, ok := idx.Feature(iso3); ok && f.Geometry != nil {
			if c, b, ok := geom.Center(f.Geometry); ok {
				t.Center = &c
				t.Bounds = &b
			}
		}
	}
	if p, ok := Override(iso3); ok {
		c := p
		t.Center = &c
		t.Override = true
	}
	return t
}

// MarshalJSON：center 为 [lon,lat]，bounds 为 [[minLon,minLat],[maxLon,maxLat]]，缺失时为 null
func (t FocusTarget) MarshalJSON() ([]byte, error) {
	out := struct {
		Center   *orb.Point    `json:"center"`
		Bounds   *[2]orb.Point `json:"bounds"`
		Override bool          `json:"override"`
	}{Center: t.Center, Override: t.Override}
	if t.Bounds != nil {
		out.Bounds = &[2]orb.Point{t.Bounds.Min, t.Bounds.Max}
	}
	return json.Marshal(out)
}
