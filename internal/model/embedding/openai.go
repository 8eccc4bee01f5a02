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

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIEmbedder OpenAI 兼容 Embedding 客户端
type OpenAIEmbedder struct {
	model     string
	apiKey    string
	baseURL   string
	dimension int
	client    *resty.Client
}

// NewOpenAIEmbedder 创建 OpenAI 兼容 Embedding 客户端
func NewOpenAIEmbedder(model, apiKey, baseURL string, dimension int, timeout time.Duration) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if dimension <= 0 {
		dimension = 1536
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(1 * time.Second)

	return &OpenAIEmbedder{
		model:     model,
		apiKey:    apiKey,
		baseURL:   baseURL,
		dimension: dimension,
		client:    client,
	}
}

// Embed 调用 embeddings API，返回与 texts 一一对应的向量
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]interface{}{
		"model": e.model,
		"input": texts,
	}

	response, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+e.apiKey).
		SetBody(request).
		Post(e.baseURL + "/embeddings")

	if err != nil {
		return nil, fmt.Errorf("调用 Embedding API failed: %w", err)
	}

	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("Embedding API 返回错误: %s", response.String())
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}

	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, fmt.Errorf("解析 Embedding 响应failed: %w", err)
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("Embedding API 返回条数不匹配: want %d, got %d", len(texts), len(result.Data))
	}

	out := make([][]float64, len(texts))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("Embedding API 返回非法 index: %d", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

// Model 返回模型名称
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Dimension 返回向量维度
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}
