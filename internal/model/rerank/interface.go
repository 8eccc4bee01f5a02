package rerank

import (
	"context"
)

// Item 单条重排结果：候选下标与相关性得分
type Item struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Reranker 重排接口；失败时由调用方降级为向量序
type Reranker interface {
	// Rerank 对 docs 重排，按得分降序最多返回 topN 条
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]Item, error)
	// Enabled 是否已配置可用
	Enabled() bool
}
