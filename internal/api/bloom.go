package api

import (
	"context"
	"hash/fnv"
	"time"

	"globe-notes/internal/constellation"

	"github.com/redis/go-redis/v9"
)

const (
	bloomBits   = 1 << 20
	bloomHashes = 4
)

// 文档注释：计算布隆过滤器位置
// 背景：FNV64a 加索引扰动生成 k 个位置，用于 GetBit/SetBit
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// 文档注释：检查并写入布隆过滤器位图
// 返回：true 表示首次见到（已写入）；false 表示已存在
// 异常：Redis 出错时返回 error 且视为首次；rc 为 nil 时总是首次
func bloomCheckAndSet(ctx context.Context, rc *redis.Client, key string, positions []int64, ttl time.Duration) (bool, error) {
	if rc == nil {
		return true, nil
	}
	seen := true
	for _, p := range positions {
		b, err := rc.GetBit(ctx, key, p).Result()
		if err != nil {
			return true, err
		}
		if b == 0 {
			seen = false
		}
	}
	if seen {
		return false, nil
	}
	for _, p := range positions {
		_, _ = rc.SetBit(ctx, key, p, 1).Result()
	}
	_ = rc.Expire(ctx, key, ttl).Err()
	return true, nil
}

type visitorKey struct{}

func withVisitor(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, visitorKey{}, ip)
}

func visitorFrom(ctx context.Context) string {
	s, _ := ctx.Value(visitorKey{}).(string)
	return s
}

// FocusCounter：聚焦计数去重（同一访客同一实体每天只计一次）
// 约束：没有 Redis 或取不到访客时不去重
type FocusCounter struct {
	next constellation.Stats
	rc   *redis.Client
	now  func() time.Time
}

func NewFocusCounter(next constellation.Stats, rc *redis.Client) *FocusCounter {
	return &FocusCounter{next: next, rc: rc, now: time.Now}
}

func (f *FocusCounter) IncrFocus(ctx context.Context, entityID string) error {
	if v := visitorFrom(ctx); v != "" && f.rc != nil {
		key := "bloom:focus:" + f.now().Format("20060102")
		first, err := bloomCheckAndSet(ctx, f.rc, key, bloomPositions([]byte(v+"|"+entityID), bloomBits, bloomHashes), 48*time.Hour)
		if err == nil && !first {
			return nil
		}
	}
	return f.next.IncrFocus(ctx, entityID)
}
