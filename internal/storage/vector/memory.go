// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore 内存向量存储实现
type MemoryStore struct {
	indexes map[string]*memIndex
	mu      sync.RWMutex
}

type memIndex struct {
	index     *Index
	vectors   map[string]*Vector
	insertSeq []string // 保持插入顺序，分数相同时顺序稳定
	dimension int
}

// NewMemoryStore 创建新的内存向量存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		indexes: make(map[string]*memIndex),
	}
}

// Create 创建向量索引
func (s *MemoryStore) Create(ctx context.Context, idx *Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[idx.Name]; exists {
		return fmt.Errorf("index %s already exists", idx.Name)
	}
	s.indexes[idx.Name] = &memIndex{
		index:     idx,
		vectors:   make(map[string]*Vector),
		dimension: idx.Dimension,
	}
	return nil
}

// Add 添加向量
func (s *MemoryStore) Add(ctx context.Context, indexName string, vectors []*Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.indexes[indexName]
	if !exists {
		return fmt.Errorf("index %s not found", indexName)
	}
	for _, v := range vectors {
		if len(v.Values) != idx.dimension {
			return fmt.Errorf("vector dimension %d does not match index dimension %d", len(v.Values), idx.dimension)
		}
		if _, dup := idx.vectors[v.ID]; !dup {
			idx.insertSeq = append(idx.insertSeq, v.ID)
		}
		idx.vectors[v.ID] = v
	}
	return nil
}

// Search 按余弦相似度降序返回 TopK 命中
func (s *MemoryStore) Search(ctx context.Context, indexName string, query []float64, options *SearchOptions) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.indexes[indexName]
	if !exists {
		return nil, fmt.Errorf("index %s not found", indexName)
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), idx.dimension)
	}
	if options == nil {
		options = &SearchOptions{TopK: 10}
	}

	results := make([]*SearchResult, 0, len(idx.insertSeq))
	for _, id := range idx.insertSeq {
		v := idx.vectors[id]
		score := cosineSimilarity(query, v.Values)
		if score < options.Threshold {
			continue
		}
		results = append(results, &SearchResult{
			ID:       v.ID,
			Score:    score,
			Metadata: v.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if options.TopK > 0 && len(results) > options.TopK {
		results = results[:options.TopK]
	}
	return results, nil
}

// DeleteIndex 删除索引
func (s *MemoryStore) DeleteIndex(ctx context.Context, indexName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[indexName]; !exists {
		return fmt.Errorf("index %s not found", indexName)
	}
	delete(s.indexes, indexName)
	return nil
}

// ListIndexes 列出所有索引
func (s *MemoryStore) ListIndexes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Count 返回索引内向量条数
func (s *MemoryStore) Count(ctx context.Context, indexName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.indexes[indexName]
	if !exists {
		return 0, nil
	}
	return len(idx.vectors), nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}

// cosineSimilarity 余弦相似度；零向量返回 0
func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
