// 包 countrytest：测试用的小型国家数据集
package countrytest

import (
	"globe-notes/internal/country"

	"github.com/paulmach/orb/geojson"
)

// Dataset：法国、美国、俄罗斯（俄罗斯跨 180° 经线）与埃及、以色列
const Dataset = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"ADM0_A3":"FRA","ISO_A2":"FR","NAME":"France","NAME_FR":"France"},
  "geometry":{"type":"Polygon","coordinates":[[[-5,42],[8,42],[8,51],[-5,51],[-5,42]]]}},
 {"type":"Feature","properties":{"ADM0_A3":"USA","ISO_A2":"US","NAME":"United States","NAME_FR":"États-Unis"},
  "geometry":{"type":"Polygon","coordinates":[[[-125,24],[-66,24],[-66,49],[-125,49],[-125,24]]]}},
 {"type":"Feature","properties":{"ADM0_A3":"RUS","ISO_A2":"RU","NAME":"Russia","NAME_FR":"Russie"},
  "geometry":{"type":"MultiPolygon","coordinates":[[[[30,45],[180,45],[180,75],[30,75],[30,45]]],[[[-180,60],[-170,60],[-170,70],[-180,70],[-180,60]]]]}},
 {"type":"Feature","properties":{"ADM0_A3":"EGY","ISO_A2":"EG","NAME":"Egypt","NAME_FR":"Égypte"},
  "geometry":{"type":"Polygon","coordinates":[[[25,22],[35,22],[35,31.5],[25,31.5],[25,22]]]}},
 {"type":"Feature","properties":{"ADM0_A3":"ISR","ISO_A2":"IL","NAME":"Israel","NAME_FR":"Israël"},
  "geometry":{"type":"Polygon","coordinates":[[[34.3,29.5],[35.9,29.5],[35.9,33.3],[34.3,33.3],[34.3,29.5]]]}}
]}`

// Index：由 Dataset 构建的索引
func Index() *country.Index {
	fc, err := geojson.UnmarshalFeatureCollection([]byte(Dataset))
	if err != nil {
		panic(err)
	}
	return country.Build(fc, "countrytest")
}

// Loader：已就绪的加载器
func Loader() *country.Loader { return country.NewStaticLoader(Index()) }
