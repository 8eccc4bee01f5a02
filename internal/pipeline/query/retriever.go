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

package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"docqa-agent/internal/model/embedding"
	"docqa-agent/internal/model/rerank"
	"docqa-agent/internal/pipeline/common"
	"docqa-agent/internal/storage/cache"
	"docqa-agent/internal/storage/vector"
	pkgerrors "docqa-agent/pkg/errors"
	"docqa-agent/pkg/log"
	"docqa-agent/pkg/metrics"
)

// Retriever 检索管线：Embedding（带缓存）→ 向量候选集 → 可选重排 → 降级策略
type Retriever struct {
	embedder   embedding.Embedder
	store      vector.Store
	reranker   rerank.Reranker
	embedCache cache.Store
	logger     *log.Logger

	indexName     string
	topK          int
	candidateK    int
	rerankEnabled bool
	cacheTTL      time.Duration
}

// Options Retriever 可选参数
type Options struct {
	IndexName     string
	TopK          int
	CandidateK    int
	RerankEnabled bool
	EmbedCache    cache.Store   // nil 则不缓存
	CacheTTL      time.Duration // <=0 默认 1h
	Logger        *log.Logger
}

// NewRetriever 创建检索管线
func NewRetriever(embedder embedding.Embedder, store vector.Store, reranker rerank.Reranker, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.CandidateK < opts.TopK {
		opts.CandidateK = opts.TopK
	}
	if opts.CandidateK <= 0 {
		opts.CandidateK = 12
	}
	if opts.IndexName == "" {
		opts.IndexName = "doc_chunks"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Retriever{
		embedder:      embedder,
		store:         store,
		reranker:      reranker,
		embedCache:    opts.EmbedCache,
		logger:        opts.Logger,
		indexName:     opts.IndexName,
		topK:          opts.TopK,
		candidateK:    opts.CandidateK,
		rerankEnabled: opts.RerankEnabled,
		cacheTTL:      opts.CacheTTL,
	}
}

// Retrieve 执行检索。Embedding 或向量库失败返回 ErrRetrieval（整轮致命）；
// 重排失败不返回错误，降级为向量序并标记 Degraded。
func (r *Retriever) Retrieve(ctx context.Context, query string) (*common.RetrievalResult, error) {
	queryVector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrRetrieval, err.Error())
	}

	searchResults, err := r.store.Search(ctx, r.indexName, queryVector, &vector.SearchOptions{
		TopK: r.candidateK,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrRetrieval, err.Error())
	}

	vectorHits := make([]common.RetrievedHit, 0, len(searchResults))
	for _, sr := range searchResults {
		vectorHits = append(vectorHits, common.RetrievedHit{
			Chunk:       chunkFromMetadata(sr.Metadata),
			VectorScore: sr.Score,
		})
	}

	if len(vectorHits) == 0 {
		return &common.RetrievalResult{
			RerankMessage: "no vector hits",
		}, nil
	}

	result := r.applyRerank(ctx, query, vectorHits)
	metrics.RetrievalHits.Observe(float64(len(result.FinalHits)))
	return result, nil
}

// applyRerank 对候选集重排；失败则降级为向量序截断到 topK
func (r *Retriever) applyRerank(ctx context.Context, query string, vectorHits []common.RetrievedHit) *common.RetrievalResult {
	truncated := vectorHits
	if len(truncated) > r.topK {
		truncated = truncated[:r.topK]
	}

	if !r.rerankEnabled || r.reranker == nil || !r.reranker.Enabled() {
		return &common.RetrievalResult{
			VectorHits:    vectorHits,
			FinalHits:     truncated,
			RerankMessage: "reranker not configured",
		}
	}

	docs := make([]string, len(vectorHits))
	for i, hit := range vectorHits {
		docs[i] = hit.Text
	}

	items, err := r.reranker.Rerank(ctx, query, docs, r.topK)
	if err != nil || len(items) == 0 {
		msg := "rerank returned no items"
		if err != nil {
			msg = err.Error()
		}
		r.logger.Warn("重排失败，降级为向量序", "error", msg)
		metrics.RerankDegradedTotal.Inc()
		return &common.RetrievalResult{
			VectorHits:    vectorHits,
			FinalHits:     truncated,
			Degraded:      true,
			RerankMessage: msg,
		}
	}

	finalHits := make([]common.RetrievedHit, 0, len(items))
	for _, item := range items {
		// 越界下标直接丢弃
		if item.Index < 0 || item.Index >= len(vectorHits) {
			continue
		}
		hit := vectorHits[item.Index]
		score := item.Score
		hit.RerankScore = &score
		finalHits = append(finalHits, hit)
	}
	if len(finalHits) == 0 {
		r.logger.Warn("重排结果全部越界，降级为向量序")
		metrics.RerankDegradedTotal.Inc()
		return &common.RetrievalResult{
			VectorHits:    vectorHits,
			FinalHits:     truncated,
			Degraded:      true,
			RerankMessage: "rerank returned no valid indices",
		}
	}
	if len(finalHits) > r.topK {
		finalHits = finalHits[:r.topK]
	}
	return &common.RetrievalResult{
		VectorHits:    vectorHits,
		FinalHits:     finalHits,
		RerankApplied: true,
		RerankMessage: "reranked",
	}
}

// embedQuery 带缓存的查询向量化
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float64, error) {
	key := embedCacheKey(r.embedder.Model(), query)
	if r.embedCache != nil {
		var cached []float64
		if err := r.embedCache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.ErrRetrieval, "embedding 返回空向量")
	}

	if r.embedCache != nil {
		// 缓存写入失败不影响检索
		if err := r.embedCache.Set(ctx, key, vectors[0], r.cacheTTL); err != nil {
			r.logger.Warn("embedding 缓存写入失败", "error", err)
		}
	}
	return vectors[0], nil
}

func embedCacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "embed:" + hex.EncodeToString(sum[:])
}

func chunkFromMetadata(meta map[string]string) common.Chunk {
	page := 0
	if meta != nil && meta["page"] != "" {
		page, _ = strconv.Atoi(meta["page"])
	}
	c := common.Chunk{Page: page}
	if meta != nil {
		c.Text = meta["text"]
		c.Source = meta["source"]
	}
	return c
}
