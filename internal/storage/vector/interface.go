package vector

import (
	"context"
)

// Store 向量存储接口
type Store interface {
	// Create 创建向量索引
	Create(ctx context.Context, index *Index) error
	// Add 添加向量
	Add(ctx context.Context, indexName string, vectors []*Vector) error
	// Search 按相似度降序搜索向量
	Search(ctx context.Context, indexName string, query []float64, options *SearchOptions) ([]*SearchResult, error)
	// DeleteIndex 删除索引（rebuild-index 时由外部 Ingestor 重建）
	DeleteIndex(ctx context.Context, indexName string) error
	// ListIndexes 列出所有索引
	ListIndexes(ctx context.Context) ([]string, error)
	// Count 返回索引内向量条数
	Count(ctx context.Context, indexName string) (int, error)
	// Close 关闭存储连接
	Close() error
}

// Index 向量索引
type Index struct {
	Name      string `json:"name"`      // 索引名称
	Dimension int    `json:"dimension"` // 向量维度
	Distance  string `json:"distance"`  // 距离度量方式，默认 cosine
}

// Vector 向量数据
type Vector struct {
	ID       string            `json:"id"`       // 向量唯一标识
	Values   []float64         `json:"values"`   // 向量值
	Metadata map[string]string `json:"metadata"` // 元数据（text/source/page 等）
}

// SearchOptions 搜索选项
type SearchOptions struct {
	TopK      int     `json:"top_k"`     // 返回前 K 个结果
	Threshold float64 `json:"threshold"` // 相似度阈值，低于该值的命中被丢弃
}

// SearchResult 搜索命中
type SearchResult struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// EnsureIndex 若索引不存在则创建，存在则跳过
func EnsureIndex(ctx context.Context, s Store, name string, dimension int, distance string) error {
	if distance == "" {
		distance = "cosine"
	}
	list, err := s.ListIndexes(ctx)
	if err != nil {
		return err
	}
	for _, n := range list {
		if n == name {
			return nil
		}
	}
	return s.Create(ctx, &Index{Name: name, Dimension: dimension, Distance: distance})
}
