package country

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Geometry：几何计算能力（外接框 + 代表点）
type Geometry interface {
	Center(g orb.Geometry) (center orb.Point, bound orb.Bound, ok bool)
}

// OrbGeometry：面积加权质心 + 外接框
// 约束：凹形或群岛国家的质心仍落在有意义的位置；跨 180° 经线的外接框沿用 orb 的平面语义
type OrbGeometry struct{}

func (OrbGeometry) Center(g orb.Geometry) (orb.Point, orb.Bound, bool) {
	if g == nil || isEmptyGeometry(g) {
		return orb.Point{}, orb.Bound{}, false
	}
	b := g.Bound()
	c, area := planar.CentroidArea(g)
	if area == 0 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		c = b.Center()
	}
	return c, b, true
}

// ManualGeometry：不依赖面积计算的兜底实现
// 背景：展开所有环坐标取轴对齐外接框，中心为外接框中点
// 约束：经度跨度超过 180° 的环先把负经度平移 +360 再参与归约，避免中心落到 0°,0° 附近
type ManualGeometry struct{}

func (ManualGeometry) Center(g orb.Geometry) (orb.Point, orb.Bound, bool) {
	rings := flattenRings(g)
	first := true
	var b orb.Bound
	for _, r := range rings {
		for _, p := range unwrapRing(r) {
			if first {
				b = orb.Bound{Min: p, Max: p}
				first = false
				continue
			}
			b = b.Extend(p)
		}
	}
	if first {
		return orb.Point{}, orb.Bound{}, false
	}
	c := b.Center()
	if c[0] > 180 {
		c[0] -= 360
	}
	return c, b, true
}

func flattenRings(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		return v
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, p := range v {
			out = append(out, p...)
		}
		return out
	case orb.Ring:
		return []orb.Ring{v}
	}
	return nil
}

func unwrapRing(r orb.Ring) orb.Ring {
	if len(r) == 0 {
		return r
	}
	minLon, maxLon := r[0][0], r[0][0]
	for _, p := range r[1:] {
		minLon = math.Min(minLon, p[0])
		maxLon = math.Max(maxLon, p[0])
	}
	if maxLon-minLon <= 180 {
		return r
	}
	out := make(orb.Ring, len(r))
	for i, p := range r {
		if p[0] < 0 {
			p[0] += 360
		}
		out[i] = p
	}
	return out
}

func isEmptyGeometry(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiPolygon:
		for _, p := range v {
			if len(p) > 0 && len(p[0]) > 0 {
				return false
			}
		}
		return true
	case orb.Point:
		return false
	}
	return false
}
