package overlay

import (
	"globe-notes/internal/country"

	"github.com/paulmach/orb/geojson"
)

// collection：索引要素的集合视图
// 约束：几何共享；属性复制后写入 CodeProperty，索引中的要素不被修改
func collection(idx *country.Index) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range idx.Features() {
		if f == nil {
			continue
		}
		nf := geojson.NewFeature(f.Geometry)
		nf.ID = f.ID
		nf.BBox = f.BBox
		nf.Properties = f.Properties.Clone()
		if iso3 := country.FeatureISO3(f.Properties); iso3 != "" {
			nf.Properties[CodeProperty] = iso3
		}
		fc.Append(nf)
	}
	return fc
}
