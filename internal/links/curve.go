package links

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// 曲线样式
const (
	StyleBezier   = "bezier"
	StyleGeodesic = "geodesic"
	StyleStraight = "straight"
)

// CurveBetween：两点之间的折线坐标
// 约束：
// - bezier：二次贝塞尔，控制点为中点沿法线 (-vy, vx) 偏移 strength×|v|，共 steps+1 个点
// - geodesic：大圆插值，点数 max(2, steps)
// - 其他样式或两点重合时返回直线段
func CurveBetween(a, b orb.Point, style string, strength float64, steps int) orb.LineString {
	if a.Equal(b) {
		return orb.LineString{a, b}
	}
	switch style {
	case StyleBezier:
		return bezier(a, b, strength, steps)
	case StyleGeodesic:
		return geodesic(a, b, steps)
	}
	return orb.LineString{a, b}
}

func bezier(a, b orb.Point, strength float64, steps int) orb.LineString {
	if steps < 1 {
		steps = 1
	}
	vx, vy := b[0]-a[0], b[1]-a[1]
	c := orb.Point{(a[0]+b[0])/2 - vy*strength, (a[1]+b[1])/2 + vx*strength}
	ls := make(orb.LineString, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		u := 1 - t
		ls = append(ls, orb.Point{
			u*u*a[0] + 2*u*t*c[0] + t*t*b[0],
			u*u*a[1] + 2*u*t*c[1] + t*t*b[1],
		})
	}
	return ls
}

func geodesic(a, b orb.Point, steps int) orb.LineString {
	n := steps
	if n < 2 {
		n = 2
	}
	dist := geo.Distance(a, b)
	bearing := geo.Bearing(a, b)
	ls := make(orb.LineString, 0, n)
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		switch i {
		case 0:
			ls = append(ls, a)
		case n - 1:
			ls = append(ls, b)
		default:
			p := geo.PointAtBearingAndDistance(a, bearing, f*dist)
			ls = append(ls, orb.Point{normLon(p[0]), p[1]})
		}
	}
	return ls
}

func normLon(lon float64) float64 {
	return math.Mod(lon+540, 360) - 180
}
