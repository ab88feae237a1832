// 包 constellation：实体星座（实体 → 提及它的笔记）的索引、连线与聚焦
package constellation

import (
	"context"
	"sort"
	"strings"
	"sync"

	"globe-notes/internal/country"
	"globe-notes/internal/logger"
	"globe-notes/internal/metrics"
	"globe-notes/internal/notes"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// entityNames：front-matter 里常见的实体名 → 实体 ID（键已去音调并小写）
var entityNames = map[string]string{
	"anouar al sadate": "ent-person-anouar-al-sadate",
	"sadate":           "ent-person-anouar-al-sadate",
	"egypte":           "ent-country-egypte",
	"israel":           "ent-country-israel",
	"usa":              "ent-country-usa",
	"urss":             "ent-country-urss",
	"cia":              "ent-org-cia",
	"kgb":              "ent-org-kgb",
}

// NormalizeEntityLabel：实体名归一为实体 ID
// 约束：已带 ent- 前缀的原样返回；其余去音调、小写、去首尾空白后查表，查不到返回 false
func NormalizeEntityLabel(label string) (string, bool) {
	if label == "" {
		return "", false
	}
	if strings.HasPrefix(label, "ent-") {
		return label, true
	}
	key := strings.TrimSpace(strings.ToLower(country.StripDiacritics(label)))
	id, ok := entityNames[key]
	return id, ok
}

// EntityIndex：实体 → 笔记集合，进程内共享
// 背景：
// - 每条笔记至多扫描一次：抓取前即登记为已扫描，失败视为没有实体，不再重试
// - 并发的填充请求合并为同一轮扫描（singleflight），扫描内部按 workers 限流并发抓取
type EntityIndex struct {
	catalog *notes.Catalog
	fetcher notes.Fetcher
	workers int

	mu       sync.RWMutex
	scanned  map[string]bool
	byEntity map[string]map[string]bool
	inflight bool

	sf singleflight.Group
}

// NewEntityIndex：workers 小于 1 时按 4
func NewEntityIndex(cat *notes.Catalog, f notes.Fetcher, workers int) *EntityIndex {
	if workers < 1 {
		workers = 4
	}
	return &EntityIndex{
		catalog:  cat,
		fetcher:  f,
		workers:  workers,
		scanned:  map[string]bool{},
		byEntity: map[string]map[string]bool{},
	}
}

// EnsureFilled：扫描所有尚未扫描的笔记，返回 entityID 关联的笔记 ID（已排序）
// 约束：
// - 扫描脱离调用方的取消信号运行，调用方断开不会把笔记误记为“无实体”
// - 扫描进行中到达的调用（此时笔记已全部领取）也等待该轮扫描结束
func (x *EntityIndex) EnsureFilled(ctx context.Context, entityID string) []string {
	if x.needsScan() {
		scanCtx := context.WithoutCancel(ctx)
		_, _, _ = x.sf.Do("scan", func() (any, error) {
			x.scan(scanCtx)
			return nil, nil
		})
	}
	return x.Linked(entityID)
}

// Linked：当前已知的关联笔记，不触发扫描
func (x *EntityIndex) Linked(entityID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	set := x.byEntity[entityID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Scanned：已扫描笔记数
func (x *EntityIndex) Scanned() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.scanned)
}

// Entities：已登记的实体 ID 及其笔记数
func (x *EntityIndex) Entities() map[string]int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string]int, len(x.byEntity))
	for id, set := range x.byEntity {
		out[id] = len(set)
	}
	return out
}

// needsScan：仍有未领取的笔记，或有一轮扫描尚未结束
func (x *EntityIndex) needsScan() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.inflight || x.catalog.Len() > len(x.scanned)
}

// claim：领取全部未扫描的笔记并立即登记为已扫描；领取到笔记时标记扫描进行中
func (x *EntityIndex) claim() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	var ids []string
	for _, n := range x.catalog.All() {
		if x.scanned[n.ID] {
			continue
		}
		x.scanned[n.ID] = true
		ids = append(ids, n.ID)
	}
	if len(ids) > 0 {
		x.inflight = true
	}
	return ids
}

func (x *EntityIndex) scan(ctx context.Context) {
	ids := x.claim()
	if len(ids) == 0 {
		return
	}
	defer func() {
		x.mu.Lock()
		x.inflight = false
		x.mu.Unlock()
	}()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			x.scanOne(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	logger.L().Debug("entity_scan_done", "notes", len(ids), "entities", len(x.Entities()))
}

func (x *EntityIndex) scanOne(ctx context.Context, id string) {
	defer metrics.NotesScannedTotal.Inc()
	md, err := x.fetcher.Fetch(ctx, id)
	if err != nil {
		return
	}
	meta, _ := notes.ParseFrontMatter(md)
	for _, label := range meta.Entities {
		ent, ok := NormalizeEntityLabel(label)
		if !ok {
			continue
		}
		x.mu.Lock()
		set := x.byEntity[ent]
		if set == nil {
			set = map[string]bool{}
			x.byEntity[ent] = set
		}
		set[id] = true
		x.mu.Unlock()
	}
}
