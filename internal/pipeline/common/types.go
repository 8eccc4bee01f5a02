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

package common

// Chunk 检索单元：一段文档文本及其来源
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Page   int    `json:"page"`
}

// RetrievedHit 单条命中：向量得分必有，重排得分在重排生效时才有
type RetrievedHit struct {
	Chunk
	VectorScore float64  `json:"vector_score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// Score 返回用于展示的得分：重排得分优先
func (h RetrievedHit) Score() float64 {
	if h.RerankScore != nil {
		return *h.RerankScore
	}
	return h.VectorScore
}

// RetrievalResult 一次检索的完整结果
type RetrievalResult struct {
	VectorHits    []RetrievedHit `json:"vector_hits"`    // 候选集，向量相似度降序
	FinalHits     []RetrievedHit `json:"final_hits"`     // 最终返回（重排序或降级后的向量序）
	RerankApplied bool           `json:"rerank_applied"` // 重排是否生效
	Degraded      bool           `json:"degraded"`       // 重排失败降级为向量序
	RerankMessage string         `json:"rerank_message"` // 重排状态说明
}
