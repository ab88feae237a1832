package api

import (
	"context"
	"time"

	"globe-notes/internal/globe"
	"globe-notes/internal/logger"
	"globe-notes/internal/metrics"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
)

// Sessions：地图会话表（容量受限、闲置过期）
type Sessions struct {
	shared globe.Shared
	lru    *expirable.LRU[string, *globe.Globe]
}

func NewSessions(size int, ttl time.Duration, sh globe.Shared) *Sessions {
	if size <= 0 {
		size = 256
	}
	onEvict := func(id string, _ *globe.Globe) {
		metrics.SessionsActive.Dec()
		logger.L().Debug("session_evicted", "session", id)
	}
	return &Sessions{shared: sh, lru: expirable.NewLRU[string, *globe.Globe](size, onEvict, ttl)}
}

// Get：按 ID 取会话
func (s *Sessions) Get(id string) (*globe.Globe, bool) {
	if id == "" {
		return nil, false
	}
	return s.lru.Get(id)
}

// Open：新建会话，ID 由服务端生成；start 为初始视角中心，可为空
// 约束：不持锁构建场景（首次会加载国家数据集），调用方提供的 ID 不会被采用
func (s *Sessions) Open(ctx context.Context, start *orb.Point) *globe.Globe {
	g := globe.New(ctx, uuid.NewString(), s.shared, start)
	s.lru.Add(g.ID, g)
	metrics.SessionsActive.Inc()
	logger.L().Debug("session_opened", "session", g.ID)
	return g
}

func (s *Sessions) Len() int { return s.lru.Len() }
