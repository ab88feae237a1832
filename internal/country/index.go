package country

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"globe-notes/internal/logger"
	"globe-notes/internal/metrics"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/singleflight"
)

var (
	ErrDatasetEmpty  = errors.New("country dataset has no usable features")
	ErrDatasetStatus = errors.New("country dataset fetch returned non-OK status")
)

// Index：国家查询表
// 约束：构建完成后只读；并发读安全
type Index struct {
	source     string
	iso2ToIso3 map[string]string
	nameToIso3 map[string]string
	features   []*geojson.Feature
	byISO3     map[string]*geojson.Feature
}

// Record：索引中的一个国家（列表展示用）
type Record struct {
	ISO3 string `json:"iso3"`
	ISO2 string `json:"iso2,omitempty"`
	Name string `json:"name,omitempty"`
}

func emptyIndex() *Index {
	return &Index{
		iso2ToIso3: map[string]string{},
		nameToIso3: map[string]string{},
		byISO3:     map[string]*geojson.Feature{},
	}
}

// Build：由 FeatureCollection 构建索引
// 约束：无有效代码的要素不进入查询表，但保留在 features 中；种子别名最后写入
func Build(fc *geojson.FeatureCollection, source string) *Index {
	idx := emptyIndex()
	idx.source = source
	if fc == nil {
		return idx
	}
	idx.features = fc.Features
	var codes []string
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		iso3 := FeatureISO3(f.Properties)
		if iso3 == "" {
			continue
		}
		codes = append(codes, iso3)
		if _, ok := idx.byISO3[iso3]; !ok {
			idx.byISO3[iso3] = f
		}
		// 其余代码变体也指向同一要素，便于按任一变体查几何
		for _, a := range CodeAccessors {
			if c := strings.ToUpper(a.Get(f.Properties)); isAlpha(c, 3) {
				if _, ok := idx.byISO3[c]; !ok {
					idx.byISO3[c] = f
				}
			}
		}
		if iso2 := FeatureISO2(f.Properties); iso2 != "" {
			idx.iso2ToIso3[iso2] = iso3
		}
		for _, a := range NameAccessors {
			if s := Slugify(a.Get(f.Properties)); s != "" {
				idx.nameToIso3[s] = iso3
			}
		}
	}
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		iso3 := FeatureISO3(f.Properties)
		if iso3 == "" {
			continue
		}
		if s := Slugify(sovereignAccessor.Get(f.Properties)); s != "" {
			if _, ok := idx.nameToIso3[s]; !ok {
				idx.nameToIso3[s] = iso3
			}
		}
	}
	// 代码自身作为别名
	for _, c := range codes {
		idx.nameToIso3[strings.ToLower(c)] = c
	}
	for alias, iso3 := range seedAliases {
		idx.nameToIso3[alias] = iso3
	}
	return idx
}

// Source：数据来源（路径或 URL）
func (x *Index) Source() string { return x.source }

// Ready：是否至少有一个可用国家
func (x *Index) Ready() bool { return len(x.byISO3) > 0 }

// Len：可解析国家数
func (x *Index) Len() int { return len(x.Records()) }

// ISO3ForISO2：两字母代码查表（大写输入）
func (x *Index) ISO3ForISO2(iso2 string) (string, bool) {
	v, ok := x.iso2ToIso3[iso2]
	return v, ok
}

// ISO3ForName：slug 查表
func (x *Index) ISO3ForName(slug string) (string, bool) {
	v, ok := x.nameToIso3[slug]
	return v, ok
}

// Feature：按任一代码变体查要素
func (x *Index) Feature(iso3 string) (*geojson.Feature, bool) {
	f, ok := x.byISO3[strings.ToUpper(iso3)]
	return f, ok
}

// Features：原始要素（按数据集顺序）
func (x *Index) Features() []*geojson.Feature { return x.features }

// Records：每个规范代码一条，按 iso3 排序
func (x *Index) Records() []Record {
	seen := map[string]bool{}
	var out []Record
	for _, f := range x.features {
		if f == nil {
			continue
		}
		iso3 := FeatureISO3(f.Properties)
		if iso3 == "" || seen[iso3] {
			continue
		}
		seen[iso3] = true
		out = append(out, Record{ISO3: iso3, ISO2: FeatureISO2(f.Properties), Name: FeatureName(f.Properties)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISO3 < out[j].ISO3 })
	return out
}

// Loader：国家索引的惰性加载器
// 背景：首次需要时从文件或 http(s) 地址读取一次并缓存；并发调用合并为一次加载
// 约束：加载失败不缓存，下次调用重试；失败期间 Current 返回空索引（解析不可用而非致命）
type Loader struct {
	source string
	client *http.Client
	sf     singleflight.Group
	idx    atomic.Pointer[Index]

	// 加载次数（成功与失败均计），测试用
	loads atomic.Int64
	mu    sync.Mutex
	last  error
}

// NewLoader：client 为空时使用 http.DefaultClient
func NewLoader(source string, client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{source: source, client: client}
}

// NewStaticLoader：包装已构建的索引（测试与离线工具）
func NewStaticLoader(idx *Index) *Loader {
	l := &Loader{source: idx.source, client: http.DefaultClient}
	l.idx.Store(idx)
	return l
}

// Ensure：确保索引已构建
// 约束：同一来源只成功构建一次；返回的索引永不为 nil
func (l *Loader) Ensure(ctx context.Context) (*Index, error) {
	if idx := l.idx.Load(); idx != nil {
		return idx, nil
	}
	v, err, _ := l.sf.Do(l.source, func() (any, error) {
		if idx := l.idx.Load(); idx != nil {
			return idx, nil
		}
		idx, err := l.load(ctx)
		l.mu.Lock()
		l.last = err
		l.mu.Unlock()
		if err != nil {
			metrics.DatasetLoadsTotal.WithLabelValues("error").Inc()
			logger.L().Warn("country_index_load_error", "source", l.source, "err", err)
			return nil, err
		}
		l.idx.Store(idx)
		metrics.DatasetLoadsTotal.WithLabelValues("ok").Inc()
		logger.L().Info("country_index_built", "source", l.source, "countries", len(idx.byISO3), "aliases", len(idx.nameToIso3))
		return idx, nil
	})
	if err != nil {
		return emptyIndex(), err
	}
	return v.(*Index), nil
}

// Current：不触发加载，返回当前索引或空索引
func (l *Loader) Current() *Index {
	if idx := l.idx.Load(); idx != nil {
		return idx
	}
	return emptyIndex()
}

// LastError：最近一次加载错误
func (l *Loader) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Loads：已发生的加载尝试次数
func (l *Loader) Loads() int64 { return l.loads.Load() }

func (l *Loader) load(ctx context.Context) (*Index, error) {
	l.loads.Add(1)
	b, err := readSource(ctx, l.client, l.source)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", l.source, err)
	}
	idx := Build(fc, l.source)
	if !idx.Ready() {
		return nil, ErrDatasetEmpty
	}
	return idx, nil
}

func readSource(ctx context.Context, client *http.Client, source string) ([]byte, error) {
	if source == "" {
		return nil, errors.New("country dataset source not configured")
	}
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.ReadFile(source)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrDatasetStatus, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
