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

package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"docqa-agent/internal/agent/calc"
	"docqa-agent/internal/agent/extract"
	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/tool"
	pkgerrors "docqa-agent/pkg/errors"
)

// CalculateTool 受限算术求值工具。
// 变量解析顺序：LAST_RESULT → Memory 变量 → 本轮检索文本中
// 新提取的 NAME=value。
type CalculateTool struct{}

// NewCalculateTool 创建计算工具
func NewCalculateTool() *CalculateTool { return &CalculateTool{} }

// Name 工具名
func (t *CalculateTool) Name() string { return "calculate" }

// Run 求值表达式。成功时 Delta 设置 last_result 并持久化
// 本轮新提取的变量；不清空既有变量。
func (t *CalculateTool) Run(ctx context.Context, input string, tc tool.Context) tool.Output {
	expression := strings.Join(strings.Fields(input), " ")
	if expression == "" {
		return tool.Fail("calc_failed: empty expression",
			pkgerrors.Wrap(pkgerrors.ErrUnsafeExpression, "empty expression"))
	}

	retrievalText := tc.Memory.RetrievalText
	if tc.RunState != nil && tc.RunState.RetrievalText != "" {
		retrievalText = tc.RunState.RetrievalText
	}
	extracted := extract.Variables(retrievalText)

	resolve := func(name string) (float64, bool) {
		if name == "LAST_RESULT" && tc.Memory.LastResult != nil {
			return *tc.Memory.LastResult, true
		}
		if v, ok := tc.Memory.Variables[name]; ok {
			return v, true
		}
		v, ok := extracted[name]
		return v, ok
	}

	value, err := calc.Evaluate(expression, resolve)
	if err != nil {
		return tool.Fail("calc_failed: "+err.Error(), err)
	}

	observation := fmt.Sprintf("expression=%s; value=%g; vars=%s",
		expression, value, formatVars(extracted))
	return tool.Output{
		Observation: observation,
		Delta: memory.Delta{
			Variables:      extracted,
			LastResult:     &value,
			LastExpression: expression,
			Observations:   map[string]string{"calculate": observation},
		},
	}
}

func formatVars(vars map[string]float64) string {
	if len(vars) == 0 {
		return "<none>"
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", name, vars[name]))
	}
	return strings.Join(parts, ", ")
}
