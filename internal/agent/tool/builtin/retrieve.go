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

// Package builtin 内置工具：retrieve、calculate、budget_analyst。
package builtin

import (
	"context"
	"fmt"
	"strings"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/tool"
	"docqa-agent/internal/pipeline/common"
)

// QuestionPlaceholder Planner 生成计划时的占位输入，执行时替换为用户问题
const QuestionPlaceholder = "用户问题"

// RetrieveFunc 检索回调，生产环境由 query.Retriever 提供
type RetrieveFunc func(ctx context.Context, query string) (*common.RetrievalResult, error)

// RetrieveTool 向量检索工具
type RetrieveTool struct {
	retrieve RetrieveFunc
}

// NewRetrieveTool 创建检索工具
func NewRetrieveTool(fn RetrieveFunc) *RetrieveTool {
	return &RetrieveTool{retrieve: fn}
}

// Name 工具名
func (t *RetrieveTool) Name() string { return "retrieve" }

// Run 执行检索。输入为空或为占位符时回退到用户问题。
// 嵌入或向量库失败原样上抛（轮级失败）；降级不是错误。
func (t *RetrieveTool) Run(ctx context.Context, input string, tc tool.Context) tool.Output {
	query := strings.TrimSpace(input)
	if query == "" || query == QuestionPlaceholder {
		query = tc.Question
	}

	result, err := t.retrieve(ctx, query)
	if err != nil {
		return tool.Fail("retrieve_failed: "+err.Error(), err)
	}

	retrievalText := joinHitText(result.FinalHits)
	citations := make([]memory.Citation, 0, len(result.FinalHits))
	for _, hit := range result.FinalHits {
		citations = append(citations, memory.NewCitation(hit.Source, hit.Page, hit.Score()))
	}

	observation := formatObservation(result)
	if tc.RunState != nil {
		tc.RunState.RetrievalText = retrievalText
		tc.RunState.RerankApplied = result.RerankApplied
		tc.RunState.RerankMessage = result.RerankMessage
		tc.RunState.Citations = append(tc.RunState.Citations, citations...)
	}

	return tool.Output{
		Observation: observation,
		Citations:   citations,
		Delta: memory.Delta{
			Citations:     citations,
			RetrievalText: retrievalText,
			Observations:  map[string]string{"retrieve": observation},
		},
	}
}

func joinHitText(hits []common.RetrievedHit) string {
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, hit.Text)
	}
	return strings.Join(parts, "\n")
}

func formatObservation(result *common.RetrievalResult) string {
	if len(result.FinalHits) == 0 {
		return "no hits"
	}
	lines := make([]string, 0, len(result.FinalHits))
	for i, hit := range result.FinalHits {
		scoreName := "v_score"
		if hit.RerankScore != nil {
			scoreName = "r_score"
		}
		snippet := strings.Join(strings.Fields(hit.Text), " ")
		if runes := []rune(snippet); len(runes) > 120 {
			snippet = string(runes[:120])
		}
		lines = append(lines, fmt.Sprintf("[%d] %s page=%d %s=%.4f text=%s",
			i+1, hit.Source, hit.Page, scoreName, hit.Score(), snippet))
	}
	if result.Degraded {
		lines = append(lines, "rerank_degraded: "+result.RerankMessage)
	}
	return strings.Join(lines, "\n")
}
