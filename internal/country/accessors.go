package country

import (
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Accessor：按属性名读取要素属性
// 背景：国家数据集没有固定的属性模式（Natural Earth、geoBoundaries 及自制数据各不相同），
// 下列有序列表即数据集兼容约定；按顺序尝试，首个有效值胜出
type Accessor struct {
	Key string
}

// Get：读取字符串属性并去除首尾空白；非字符串或缺失时返回空串
func (a Accessor) Get(p geojson.Properties) string {
	if p == nil {
		return ""
	}
	v, ok := p[a.Key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// 国家三字母代码属性，优先级从高到低
var CodeAccessors = []Accessor{
	{"ADM0_A3"}, {"ISO_A3"}, {"SOV_A3"}, {"GU_A3"}, {"ISO3"}, {"ISO_3"}, {"ISO3_CODE"},
}

// 两字母代码属性
var ISO2Accessors = []Accessor{{"ISO_A2"}, {"ISO2"}, {"ISO_2"}}

// 名称属性；SOVEREIGNT 单独处理，见 sovereignAccessor
var NameAccessors = []Accessor{
	{"NAME"}, {"NAME_EN"}, {"NAME_FR"}, {"NAME_LONG"}, {"ADMIN"}, {"BRK_NAME"}, {"FORMAL_EN"}, {"FORMAL_FR"},
}

// 宗主国名称：属地要素与宗主国共享该值，只在别名尚未占用时登记
var sovereignAccessor = Accessor{"SOVEREIGNT"}

// FeatureISO3：要素的规范三字母代码
// 约束：取首个形如 [A-Z]{3} 的候选值；"-99" 等占位值跳过
func FeatureISO3(p geojson.Properties) string {
	for _, a := range CodeAccessors {
		if c := strings.ToUpper(a.Get(p)); isAlpha(c, 3) {
			return c
		}
	}
	return ""
}

// FeatureISO2：要素的两字母代码；无有效值返回空串
func FeatureISO2(p geojson.Properties) string {
	for _, a := range ISO2Accessors {
		if c := strings.ToUpper(a.Get(p)); isAlpha(c, 2) {
			return c
		}
	}
	return ""
}

// FeatureName：展示用名称
func FeatureName(p geojson.Properties) string {
	for _, a := range NameAccessors {
		if v := a.Get(p); v != "" {
			return v
		}
	}
	return sovereignAccessor.Get(p)
}

// matchesCode：任一代码属性等于 iso3 即视为同一国家
func matchesCode(p geojson.Properties, iso3 string) bool {
	for _, a := range CodeAccessors {
		if strings.EqualFold(a.Get(p), iso3) {
			return true
		}
	}
	return false
}

func isAlpha(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
