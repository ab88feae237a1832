// 包 geolocate：访问者 IP → 国家代码，用作新会话的初始视角
package geolocate

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"
	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

var (
	ErrInvalidIP = errors.New("invalid ip")
	ErrNotFound  = errors.New("country not found")
	ErrNoDB      = errors.New("no geoip database")
)

// rawCountry：非 MaxMind 布局的 mmdb（如 ipinfo lite 的 country_code）与 MaxMind 布局兼容读取
type rawCountry struct {
	CountryCode string `maxminddb:"country_code"`
	Country     struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// Locator：国家库读取器
// 背景：GeoIP2 / GeoLite2 / DB-IP 国家或城市库走 geoip2；其他 mmdb 按原始记录读取国家代码；
// .xdb 文件走 ip2region（仅 IPv4，国家字段为名称，经 xdbCountries 转为 ISO2）
type Locator struct {
	geo *geoip2.Reader
	raw *maxminddb.Reader
	xdb *xdb.Searcher
}

// Open：按库类型选择读取方式
func Open(path string) (*Locator, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xdb") {
		s, err := xdb.NewWithFileOnly(xdb.IPv4, path)
		if err != nil {
			return nil, fmt.Errorf("open ip2region db: %w", err)
		}
		return &Locator{xdb: s}, nil
	}
	mm, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	if !isGeoIP2Layout(mm.Metadata.DatabaseType) {
		return &Locator{raw: mm}, nil
	}
	_ = mm.Close()
	g, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return &Locator{geo: g}, nil
}

func isGeoIP2Layout(dbType string) bool {
	t := strings.ToLower(dbType)
	if !strings.Contains(t, "country") && !strings.Contains(t, "city") {
		return false
	}
	return strings.HasPrefix(t, "geoip2") || strings.HasPrefix(t, "geolite2") || strings.HasPrefix(t, "dbip")
}

// Kind：geoip2 或 raw；未打开时为空
func (l *Locator) Kind() string {
	switch {
	case l == nil:
		return ""
	case l.geo != nil:
		return "geoip2"
	case l.raw != nil:
		return "raw"
	case l.xdb != nil:
		return "ip2region"
	}
	return ""
}

// LocateISO2：返回大写 ISO2
func (l *Locator) LocateISO2(ipStr string) (string, error) {
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return "", ErrInvalidIP
	}
	var code string
	switch {
	case l == nil || (l.geo == nil && l.raw == nil && l.xdb == nil):
		return "", ErrNoDB
	case l.xdb != nil:
		if ip.To4() == nil {
			return "", ErrNotFound
		}
		region, err := l.xdb.SearchByStr(ip.String())
		if err != nil {
			return "", err
		}
		code = xdbCountryISO2(region)
	case l.geo != nil:
		rec, err := l.geo.Country(ip)
		if err != nil {
			return "", err
		}
		code = rec.Country.IsoCode
	default:
		var rec rawCountry
		if err := l.raw.Lookup(ip, &rec); err != nil {
			return "", err
		}
		code = rec.CountryCode
		if code == "" {
			code = rec.Country.ISOCode
		}
	}
	if len(code) != 2 {
		return "", ErrNotFound
	}
	return strings.ToUpper(code), nil
}

func (l *Locator) Close() error {
	if l == nil {
		return nil
	}
	if l.geo != nil {
		return l.geo.Close()
	}
	if l.raw != nil {
		return l.raw.Close()
	}
	if l.xdb != nil {
		l.xdb.Close()
	}
	return nil
}

// xdbCountries：ip2region 国家名称 → ISO2（默认库为中文名称）
var xdbCountries = map[string]string{
	"中国": "CN", "香港": "HK", "澳门": "MO", "台湾": "TW",
	"美国": "US", "加拿大": "CA", "墨西哥": "MX", "巴西": "BR",
	"英国": "GB", "法国": "FR", "德国": "DE", "意大利": "IT", "西班牙": "ES", "荷兰": "NL",
	"俄罗斯": "RU", "乌克兰": "UA", "土耳其": "TR",
	"日本": "JP", "韩国": "KR", "新加坡": "SG", "印度": "IN", "澳大利亚": "AU",
	"埃及": "EG", "以色列": "IL", "伊朗": "IR", "南非": "ZA",
}

// xdbCountryISO2：解析 "国家|区域|省份|城市|ISP"；国家字段已是两字母代码时直接使用
func xdbCountryISO2(region string) string {
	name := strings.TrimSpace(strings.SplitN(region, "|", 2)[0])
	if name == "" || name == "0" || strings.EqualFold(name, "unknown") {
		return ""
	}
	if len(name) == 2 && name[0] < 0x80 && name[1] < 0x80 {
		return strings.ToUpper(name)
	}
	return xdbCountries[name]
}
