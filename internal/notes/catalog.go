// 包 notes：笔记目录、笔记原文地址、front-matter 与 wiki 链接解析、原文抓取
package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"

	"globe-notes/internal/logger"

	"github.com/paulmach/orb"
)

// Note：一条带坐标的笔记（事件或实体）
type Note struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	Lon       float64  `json:"lon"`
	Lat       float64  `json:"lat"`
	Tags      []string `json:"tags,omitempty"`
	Country   string   `json:"country,omitempty"`
	HasCoords bool     `json:"-"`
}

// Point：经纬度
func (n Note) Point() orb.Point { return orb.Point{n.Lon, n.Lat} }

// rawNote：data.json 中的条目；坐标可能缺失或为字符串
type rawNote struct {
	ID      any    `json:"id"`
	Title   string `json:"title"`
	Lon     any    `json:"lon"`
	Lat     any    `json:"lat"`
	Tags    []any  `json:"tags"`
	Country string `json:"country"`
}

// Store：笔记目录的持久化来源（Postgres）
type Store interface {
	ListNotes(ctx context.Context) ([]Note, error)
}

// Catalog：笔记目录
// 约束：构建后只读；ID 为空的条目丢弃，重复 ID 保留首个
type Catalog struct {
	notes []Note
	byID  map[string]int
	tags  []string
}

// NewCatalog：建立 ID 索引与排序去重的标签表
func NewCatalog(list []Note) *Catalog {
	c := &Catalog{byID: map[string]int{}}
	tagSet := map[string]bool{}
	for _, n := range list {
		n.ID = strings.TrimSpace(n.ID)
		if n.ID == "" {
			continue
		}
		if _, dup := c.byID[n.ID]; dup {
			continue
		}
		if !n.HasCoords {
			n.HasCoords = validCoord(n.Lon, n.Lat)
		}
		var tags []string
		for _, t := range n.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
				tagSet[t] = true
			}
		}
		n.Tags = tags
		c.byID[n.ID] = len(c.notes)
		c.notes = append(c.notes, n)
	}
	for t := range tagSet {
		c.tags = append(c.tags, t)
	}
	sort.Strings(c.tags)
	return c
}

// ParseCatalog：解析 data.json（笔记数组）
func ParseCatalog(b []byte) (*Catalog, error) {
	var raw []rawNote
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	list := make([]Note, 0, len(raw))
	for _, r := range raw {
		n := Note{ID: scalar(r.ID), Title: r.Title, Country: r.Country}
		lon, okLon := number(r.Lon)
		lat, okLat := number(r.Lat)
		n.Lon, n.Lat = lon, lat
		n.HasCoords = okLon && okLat && validCoord(lon, lat)
		for _, t := range r.Tags {
			n.Tags = append(n.Tags, scalar(t))
		}
		list = append(list, n)
	}
	return NewCatalog(list), nil
}

// LoadCatalog：按来源读取目录：file 读本地文件，url 走 HTTP，postgres 读 store
func LoadCatalog(ctx context.Context, kind, path, url string, client *http.Client, st Store) (*Catalog, error) {
	switch strings.ToLower(kind) {
	case "", "file":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseCatalog(b)
	case "url":
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("catalog %s: %w: %d", url, ErrFetchStatus, resp.StatusCode)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return ParseCatalog(b)
	case "postgres":
		if st == nil {
			return nil, errors.New("postgres catalog requested without a store")
		}
		list, err := st.ListNotes(ctx)
		if err != nil {
			return nil, err
		}
		logger.L().Info("notes_catalog_loaded", "source", "postgres", "notes", len(list))
		return NewCatalog(list), nil
	}
	return nil, fmt.Errorf("unknown catalog kind %q", kind)
}

// All：全部笔记（目录顺序）
func (c *Catalog) All() []Note { return c.notes }

// Len：笔记数
func (c *Catalog) Len() int { return len(c.notes) }

// Get：按 ID 查笔记
func (c *Catalog) Get(id string) (Note, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Note{}, false
	}
	return c.notes[i], true
}

// Has：ID 是否存在
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Tags：排序去重后的标签
func (c *Catalog) Tags() []string { return c.tags }

// IDs：全部笔记 ID
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.notes))
	for i, n := range c.notes {
		out[i] = n.ID
	}
	return out
}

func validCoord(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == math.Trunc(x) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprint(x)
	}
	return fmt.Sprint(v)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		var f float64
		if _, err := fmt.Sscan(strings.TrimSpace(x), &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
