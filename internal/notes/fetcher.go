package notes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"globe-notes/internal/logger"
	"globe-notes/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ErrFetchStatus：远端返回非 200
var ErrFetchStatus = errors.New("unexpected status")

// Fetcher：按笔记 ID 取 markdown 原文
type Fetcher interface {
	Fetch(ctx context.Context, id string) (string, error)
}

// FetcherOptions：抓取器参数
type FetcherOptions struct {
	BaseURL  string
	Client   *http.Client
	Timeout  time.Duration // 0 表示不设超时
	Redis    *redis.Client
	RedisTTL time.Duration
	LRUSize  int
	LRUTTL   time.Duration
}

// HTTPFetcher：两级缓存的笔记抓取器
// 背景：
// - 一级为进程内 expirable LRU，二级为 Redis（键 note:<id>）
// - 只缓存成功的结果；失败由调用方决定是否重试
type HTTPFetcher struct {
	base     string
	client   *http.Client
	timeout  time.Duration
	rc       *redis.Client
	redisTTL time.Duration
	lru      *expirable.LRU[string, string]
}

// NewHTTPFetcher：构造抓取器；LRUSize 为 0 时使用 512
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.LRUSize <= 0 {
		opts.LRUSize = 512
	}
	if opts.RedisTTL <= 0 {
		opts.RedisTTL = 6 * time.Hour
	}
	return &HTTPFetcher{
		base:     opts.BaseURL,
		client:   opts.Client,
		timeout:  opts.Timeout,
		rc:       opts.Redis,
		redisTTL: opts.RedisTTL,
		lru:      expirable.NewLRU[string, string](opts.LRUSize, nil, opts.LRUTTL),
	}
}

// Fetch：依次查 LRU、Redis、HTTP；HTTP 成功后回填两级缓存
func (f *HTTPFetcher) Fetch(ctx context.Context, id string) (string, error) {
	if md, ok := f.lru.Get(id); ok {
		metrics.NoteFetchTotal.WithLabelValues("lru").Inc()
		return md, nil
	}
	key := "note:" + id
	if f.rc != nil {
		if v, _ := f.rc.Get(ctx, key).Result(); v != "" {
			f.lru.Add(id, v)
			metrics.NoteFetchTotal.WithLabelValues("redis").Inc()
			return v, nil
		}
	}
	md, err := f.get(ctx, ResolveNoteURL(f.base, id))
	if err != nil {
		metrics.NoteFetchTotal.WithLabelValues("error").Inc()
		logger.L().Warn("note_fetch_error", "id", id, "err", err)
		return "", err
	}
	metrics.NoteFetchTotal.WithLabelValues("http").Inc()
	f.lru.Add(id, md)
	if f.rc != nil {
		_ = f.rc.Set(ctx, key, md, f.redisTTL).Err()
	}
	return md, nil
}

func (f *HTTPFetcher) get(ctx context.Context, u string) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %w: %d", u, ErrFetchStatus, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// OutgoingLinks：笔记正文里指向目录内其他笔记的链接，按笔记缓存
// 约束：抓取失败时缓存空列表，同一会话内不再重试
type OutgoingLinks struct {
	fetcher Fetcher
	catalog *Catalog

	mu    sync.Mutex
	cache map[string][]string
}

// NewOutgoingLinks：构造链接解析器
func NewOutgoingLinks(f Fetcher, c *Catalog) *OutgoingLinks {
	return &OutgoingLinks{fetcher: f, catalog: c, cache: map[string][]string{}}
}

// For：返回 id 的出链（仅保留目录中存在且非自身的 ID）
func (o *OutgoingLinks) For(ctx context.Context, id string) []string {
	o.mu.Lock()
	if v, ok := o.cache[id]; ok {
		o.mu.Unlock()
		return v
	}
	o.mu.Unlock()

	out := []string{}
	if md, err := o.fetcher.Fetch(ctx, id); err == nil {
		meta, body := ParseFrontMatter(md)
		seen := map[string]bool{}
		for _, to := range append(WikiLinks(body), meta.Links...) {
			if to == id || seen[to] || !o.catalog.Has(to) {
				continue
			}
			seen[to] = true
			out = append(out, to)
		}
	}
	o.mu.Lock()
	o.cache[id] = out
	o.mu.Unlock()
	return out
}
