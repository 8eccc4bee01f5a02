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

package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIStyleReranker OpenAI 风格 /rerank 端点客户端（Jina/Cohere 兼容协议）
type OpenAIStyleReranker struct {
	baseURL string
	apiKey  string
	model   string
	client  *resty.Client
}

// NewOpenAIStyleReranker 创建重排客户端；任一配置为空视为未启用
func NewOpenAIStyleReranker(baseURL, apiKey, model string, timeout time.Duration) *OpenAIStyleReranker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)

	return &OpenAIStyleReranker{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		client:  client,
	}
}

// Enabled 是否已配置可用
func (r *OpenAIStyleReranker) Enabled() bool {
	return r.baseURL != "" && r.apiKey != "" && r.model != ""
}

// Rerank 对 docs 重排；依次尝试 /v1/rerank 与 /rerank，全部失败返回最后错误
func (r *OpenAIStyleReranker) Rerank(ctx context.Context, query string, docs []string, topN int) ([]Item, error) {
	if !r.Enabled() {
		return nil, fmt.Errorf("reranker 未配置")
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if topN < 1 {
		topN = 1
	}
	if topN > len(docs) {
		topN = len(docs)
	}

	payload := map[string]interface{}{
		"model":            r.model,
		"query":            query,
		"documents":        docs,
		"top_n":            topN,
		"return_documents": false,
	}

	var lastErr error
	for _, endpoint := range r.endpoints() {
		response, err := r.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Authorization", "Bearer "+r.apiKey).
			SetBody(payload).
			Post(endpoint)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", endpoint, err)
			continue
		}
		if response.StatusCode() >= 400 {
			lastErr = fmt.Errorf("%s status=%d", endpoint, response.StatusCode())
			continue
		}

		items, err := parseItems(response.Body(), len(docs))
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", endpoint, err)
			continue
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
		if len(items) > topN {
			items = items[:topN]
		}
		return items, nil
	}
	return nil, lastErr
}

// endpoints 依序返回候选端点，base 以 /v1 结尾时不再重复拼接
func (r *OpenAIStyleReranker) endpoints() []string {
	if strings.HasSuffix(r.baseURL, "/v1") {
		return []string{r.baseURL + "/rerank"}
	}
	return []string{r.baseURL + "/v1/rerank", r.baseURL + "/rerank"}
}

// parseItems 解析响应：结果列表可能位于 results/data/output，
// 下标字段可能叫 index/document_index/id，得分字段 relevance_score/score/similarity
func parseItems(body []byte, totalDocs int) ([]Item, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("解析 rerank 响应失败: %w", err)
	}

	var rawList []map[string]json.RawMessage
	for _, key := range []string{"results", "data", "output"} {
		if raw, ok := payload[key]; ok {
			if err := json.Unmarshal(raw, &rawList); err == nil && len(rawList) > 0 {
				break
			}
		}
	}
	if len(rawList) == 0 {
		return nil, fmt.Errorf("rerank 响应没有结果列表")
	}

	items := make([]Item, 0, len(rawList))
	seen := make(map[int]bool, len(rawList))
	for pos, entry := range rawList {
		idx := pos
		for _, key := range []string{"index", "document_index", "id"} {
			if raw, ok := entry[key]; ok {
				var v int
				if err := json.Unmarshal(raw, &v); err == nil {
					idx = v
					break
				}
			}
		}
		if idx < 0 || idx >= totalDocs || seen[idx] {
			continue
		}

		score := 0.0
		for _, key := range []string{"relevance_score", "score", "similarity"} {
			if raw, ok := entry[key]; ok {
				var v float64
				if err := json.Unmarshal(raw, &v); err == nil {
					score = v
					break
				}
			}
		}
		seen[idx] = true
		items = append(items, Item{Index: idx, Score: score})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("rerank 响应没有合法下标")
	}
	return items, nil
}
