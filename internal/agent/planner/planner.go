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

// Package planner 把一个问题扩展成 0..4 步的工具计划。
// 先走启发式（符号表达式、预算评级、接续上一结果），
// 启发式不命中且路由为需要查询知识库时才调用 LLM 规划。
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/router"
	"docqa-agent/internal/model/llm"
	"docqa-agent/pkg/log"
)

// MaxSteps 计划长度硬上限
const MaxSteps = 4

// QuestionPlaceholder 计划里引用用户原始问题的占位输入
const QuestionPlaceholder = "用户问题"

const plannerSystemPrompt = `你是一个任务规划器。你要把用户问题拆成工具步骤。
仅输出 JSON，不要输出其他文字。JSON 格式：
{"steps":[{"tool":"retrieve|calculate|budget_analyst","input":"...","reason":"..."}]}
规则：
1) 需要事实依据时优先 retrieve。
2) 需要算术计算时使用 calculate，input 必须是可执行表达式（例如 A + B - C 或 12.5*3）。
3) 需要基于年度预算分析股价并给出评级时使用 budget_analyst（通常先 retrieve）。
4) 步骤总数不超过 4。`

// ContinuationFunc 判定问题是否接续上一次计算结果；
// 命中时返回可执行表达式（如 LAST_RESULT + 10）。
type ContinuationFunc func(question string, snap memory.Snapshot) (string, bool)

// Planner 计划生成器
type Planner struct {
	client       llm.Client
	logger       *log.Logger
	maxSteps     int
	knownTools   map[string]bool
	continuation ContinuationFunc
}

// Options Planner 可选配置
type Options struct {
	// MaxSteps 计划步数上限，最终仍被 MaxSteps 常量截断
	MaxSteps int
	// Continuation 替换默认的接续判定
	Continuation ContinuationFunc
}

// New 创建 Planner；client 为 nil 时只使用启发式
func New(client llm.Client, logger *log.Logger, opts Options) *Planner {
	if logger == nil {
		logger = log.Nop()
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 || maxSteps > MaxSteps {
		maxSteps = MaxSteps
	}
	continuation := opts.Continuation
	if continuation == nil {
		continuation = DefaultContinuation
	}
	return &Planner{
		client:   client,
		logger:   logger,
		maxSteps: maxSteps,
		knownTools: map[string]bool{
			"retrieve":       true,
			"calculate":      true,
			"budget_analyst": true,
		},
		continuation: continuation,
	}
}

// Plan 生成计划。chitchat 与 other 不产生工具步骤。
func (p *Planner) Plan(ctx context.Context, question string, label router.Label, snap memory.Snapshot) Plan {
	q := strings.Join(strings.Fields(question), " ")
	if q == "" || label == router.LabelChitchat {
		return nil
	}

	if plan := p.heuristicPlan(q, snap); len(plan) > 0 {
		return p.truncate(plan)
	}
	if label != router.LabelNeedsRetrieval {
		return nil
	}

	if plan := p.llmPlan(ctx, q, snap); len(plan) > 0 {
		return p.truncate(plan)
	}
	return Plan{{Tool: "retrieve", Input: q, Reason: "fallback retrieve"}}
}

func (p *Planner) truncate(plan Plan) Plan {
	if len(plan) > p.maxSteps {
		return plan[:p.maxSteps]
	}
	return plan
}

// heuristicPlan 无需 LLM 的确定性规划
func (p *Planner) heuristicPlan(question string, snap memory.Snapshot) Plan {
	if isBudgetAnalysisRequest(question) {
		return Plan{
			{Tool: "retrieve", Input: question, Reason: "collect annual budget data"},
			{Tool: "budget_analyst", Input: QuestionPlaceholder, Reason: "analyze budget-based rating"},
		}
	}

	if expr := ExtractSymbolicExpression(question); expr != "" {
		vars := variableTokens(expr)
		if len(vars) > 0 && allKnown(vars, snap.Variables) {
			return Plan{{Tool: "calculate", Input: expr, Reason: "reuse variables from memory"}}
		}
		return Plan{
			{Tool: "retrieve", Input: question, Reason: "collect variable values from docs"},
			{Tool: "calculate", Input: expr, Reason: "evaluate requested expression"},
		}
	}

	if expr, ok := p.continuation(question, snap); ok {
		return Plan{{Tool: "calculate", Input: expr, Reason: "reuse LAST_RESULT from memory"}}
	}
	return nil
}

// llmPlan 调用 LLM 产出 JSON 计划；失败返回空
func (p *Planner) llmPlan(ctx context.Context, question string, snap memory.Snapshot) Plan {
	if p.client == nil {
		return nil
	}

	userPrompt := fmt.Sprintf(
		"用户问题：%s\n\n记忆摘要：%s\n\n请输出不超过 %d 步的工具计划，仅 JSON。",
		question, summarize(snap), p.maxSteps)

	raw, err := p.client.ChatWithContext(ctx, []llm.Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, llm.GenerateOptions{Temperature: 0})
	if err != nil {
		p.logger.Warn("planner llm call failed, using fallback", "error", err)
		return nil
	}
	return p.parseSteps(raw, snap)
}

func summarize(snap memory.Snapshot) string {
	if len(snap.Variables) == 0 && snap.LastResult == nil && len(snap.Citations) == 0 {
		return "<none>"
	}
	parts := make([]string, 0, 3)
	if len(snap.Variables) > 0 {
		parts = append(parts, fmt.Sprintf("variables=%d", len(snap.Variables)))
	}
	if snap.LastResult != nil {
		parts = append(parts, fmt.Sprintf("last_result=%g", *snap.LastResult))
	}
	if len(snap.Citations) > 0 {
		parts = append(parts, fmt.Sprintf("citations=%d", len(snap.Citations)))
	}
	return strings.Join(parts, "; ")
}

// parseSteps 解析 LLM 的 JSON 计划，过滤未知工具并强制落地检索
func (p *Planner) parseSteps(raw string, snap memory.Snapshot) Plan {
	payload := extractJSON(raw)
	if payload == nil {
		return nil
	}

	var parsed struct {
		Steps []Step `json:"steps"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil
	}

	var out Plan
	for _, step := range parsed.Steps {
		toolName := strings.ToLower(strings.TrimSpace(step.Tool))
		if !p.knownTools[toolName] {
			continue
		}
		input := strings.TrimSpace(step.Input)
		if input == "" {
			if toolName == "calculate" {
				continue
			}
			input = QuestionPlaceholder
		}
		out = append(out, Step{Tool: toolName, Input: input, Reason: strings.TrimSpace(step.Reason)})
	}
	if len(out) == 0 {
		return nil
	}

	hasMemoryContext := len(snap.Variables) > 0 || snap.LastResult != nil || len(snap.Citations) > 0
	if !out.HasTool("retrieve") && !hasMemoryContext {
		out = append(Plan{{Tool: "retrieve", Input: QuestionPlaceholder, Reason: "force grounding"}}, out...)
	}
	return out
}

// extractJSON 剥掉 markdown 代码块并定位最外层 JSON 对象
func extractJSON(text string) []byte {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if json.Valid([]byte(text)) {
		return []byte(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil
	}
	candidate := []byte(text[start : end+1])
	if !json.Valid(candidate) {
		return nil
	}
	return candidate
}

var (
	budgetRequestPat = regexp.MustCompile(`(?i)(年度?预算|budget)`)
	ratingRequestPat = regexp.MustCompile(`(?i)(股价|price|评级|分析师|买入|卖出|增持|减持|rating)`)

	symbolicExprPat = regexp.MustCompile(`[A-Z][A-Z0-9_]*(?:\s+[+\-*/]\s+(?:[A-Z][A-Z0-9_]*|\d+(?:\.\d+)?))+`)
	variablePat     = regexp.MustCompile(`\b[A-Z][A-Z0-9_]*\b`)
)

func isBudgetAnalysisRequest(question string) bool {
	return budgetRequestPat.MatchString(question) && ratingRequestPat.MatchString(question)
}

// ExtractSymbolicExpression 从问题中提取形如 A + B - C 的符号表达式
func ExtractSymbolicExpression(question string) string {
	match := symbolicExprPat.FindString(question)
	if match == "" {
		return ""
	}
	return strings.Join(strings.Fields(match), " ")
}

func variableTokens(expression string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range variablePat.FindAllString(expression, -1) {
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func allKnown(names []string, variables map[string]float64) bool {
	for _, name := range names {
		if _, ok := variables[name]; !ok {
			return false
		}
	}
	return true
}

var (
	followupHintPat = regexp.MustCompile(`(?i)(刚才|上次|上一步|之前|那个结果|这个结果|上个结果|再|prior result|previous result|last result)`)

	followupOps = []struct {
		pattern *regexp.Regexp
		op      string
	}{
		{regexp.MustCompile(`(?:再|然后)?加(?:上)?\s*(-?\d+(?:\.\d+)?)`), "+"},
		{regexp.MustCompile(`(?:再|然后)?减(?:去)?\s*(-?\d+(?:\.\d+)?)`), "-"},
		{regexp.MustCompile(`(?:再|然后)?乘(?:以|上)?\s*(-?\d+(?:\.\d+)?)`), "*"},
		{regexp.MustCompile(`(?:再|然后)?除(?:以)?\s*(-?\d+(?:\.\d+)?)`), "/"},
		{regexp.MustCompile(`(?i)apply\s*\+\s*(\d+(?:\.\d+)?)`), "+"},
		{regexp.MustCompile(`(?i)apply\s*-\s*(\d+(?:\.\d+)?)`), "-"},
		{regexp.MustCompile(`(?i)\badd\s+(-?\d+(?:\.\d+)?)`), "+"},
		{regexp.MustCompile(`(?i)\bsubtract\s+(-?\d+(?:\.\d+)?)`), "-"},
		{regexp.MustCompile(`(?i)\bmultiply\s+by\s+(-?\d+(?:\.\d+)?)`), "*"},
		{regexp.MustCompile(`(?i)\bdivide\s+by\s+(-?\d+(?:\.\d+)?)`), "/"},
	}
)

// DefaultContinuation 默认接续判定：Memory 里有 last_result、
// 问题指代先前结果且带一个数值运算时命中。
func DefaultContinuation(question string, snap memory.Snapshot) (string, bool) {
	if snap.LastResult == nil {
		return "", false
	}
	q := strings.Join(strings.Fields(question), " ")
	if !followupHintPat.MatchString(q) {
		return "", false
	}
	for _, entry := range followupOps {
		m := entry.pattern.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		return fmt.Sprintf("LAST_RESULT %s %s", entry.op, m[1]), true
	}
	return "", false
}
