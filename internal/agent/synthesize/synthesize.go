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

// Package synthesize 从工具执行轨迹与 Memory 快照生成最终回答。
package synthesize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/router"
	"docqa-agent/internal/model/llm"
	"docqa-agent/pkg/log"
)

// TraceStep 一条轨迹：第几步、工具、输入、观察、耗时与失败原因
type TraceStep struct {
	StepNo      int
	Tool        string
	Input       string
	Reason      string
	Observation string
	Duration    time.Duration
	Failed      bool
}

// Synthesizer 最终回答生成器
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}

// Request 合成请求
type Request struct {
	Question string
	Label    router.Label
	Plan     bool // 本轮是否产生过工具计划
	Traces   []TraceStep
	Memory   memory.Snapshot
}

const chitchatSystemPrompt = `你是一个友好的聊天助手。
保持简短自然，直接回应用户即可。`

const generalSystemPrompt = `你是一个可靠的通用助理。
回答应简洁清晰；如果问题需要外部资料但未提供，说明无法确认。`

const groundedSystemPrompt = `你是一个严谨的 Agentic RAG 助手。
你会收到工具执行轨迹与检索上下文，请基于这些信息回答用户。
禁止编造；若信息不足请明确说明，指出哪一步失败、哪个值无法确定。
关键结论后标注引用 [ref:n]。`

// LLMSynthesizer 通过 LLM 生成回答
type LLMSynthesizer struct {
	client llm.Client
	logger *log.Logger
}

// NewLLM 创建 LLM 合成器
func NewLLM(client llm.Client, logger *log.Logger) *LLMSynthesizer {
	if logger == nil {
		logger = log.Nop()
	}
	return &LLMSynthesizer{client: client, logger: logger}
}

// Synthesize 生成最终回答。系统提示词按路由选择；
// 失败的轨迹条目会进入提示词，让回答明确说明哪些计算无法完成。
func (s *LLMSynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	systemPrompt := groundedSystemPrompt
	switch {
	case req.Label == router.LabelChitchat:
		systemPrompt = chitchatSystemPrompt
	case req.Label == router.LabelOther, !req.Plan:
		systemPrompt = generalSystemPrompt
	}

	return s.client.ChatWithContext(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(req)},
	}, llm.GenerateOptions{})
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "用户问题：%s\n\n", req.Question)

	traceText := "<NO_TRACE>"
	if len(req.Traces) > 0 {
		lines := make([]string, 0, len(req.Traces))
		for _, step := range req.Traces {
			status := ""
			if step.Failed {
				status = " FAILED"
			}
			lines = append(lines, fmt.Sprintf("[step:%d]%s tool=%s input=%s\nobs=%s",
				step.StepNo, status, step.Tool, step.Input, step.Observation))
		}
		traceText = strings.Join(lines, "\n\n")
	}
	fmt.Fprintf(&b, "=== 工具执行轨迹 ===\n%s\n=== 轨迹结束 ===\n\n", traceText)

	ctxText := "<NO_CONTEXT>"
	if req.Memory.RetrievalText != "" {
		ctxText = req.Memory.RetrievalText
	}
	fmt.Fprintf(&b, "=== 检索上下文 ===\n%s\n=== 上下文结束 ===", ctxText)

	if len(req.Memory.Citations) > 0 {
		refs := make([]string, 0, len(req.Memory.Citations))
		for i, c := range req.Memory.Citations {
			refs = append(refs, fmt.Sprintf("[ref:%d] source=%s page=%d", i+1, c.Source, c.Page))
		}
		fmt.Fprintf(&b, "\n\n=== 引用 ===\n%s", strings.Join(refs, "\n"))
	}
	return b.String()
}
