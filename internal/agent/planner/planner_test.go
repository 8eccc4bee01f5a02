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

package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/router"
	"docqa-agent/internal/model/llm"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Chat(messages []llm.Message, options llm.GenerateOptions) (string, error) {
	return f.ChatWithContext(context.Background(), messages, options)
}

func (f *fakeLLM) ChatWithContext(_ context.Context, _ []llm.Message, _ llm.GenerateOptions) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeLLM) Model() string    { return "fake" }
func (f *fakeLLM) Provider() string { return "fake" }

func TestPlanChitchatIsEmpty(t *testing.T) {
	client := &fakeLLM{reply: `{"steps":[{"tool":"retrieve","input":"x"}]}`}
	p := New(client, nil, Options{})

	plan := p.Plan(context.Background(), "你好", router.LabelChitchat, memory.Snapshot{})

	assert.Empty(t, plan)
	assert.Zero(t, client.calls)
}

func TestPlanSymbolicExpressionWithMemory(t *testing.T) {
	p := New(nil, nil, Options{})
	snap := memory.Snapshot{Variables: map[string]float64{
		"Q1_PROFIT": 100000, "Q2_PROFIT": 50000, "RD_COST": 20000,
	}}

	plan := p.Plan(context.Background(), "帮我算 Q1_PROFIT + Q2_PROFIT - RD_COST",
		router.LabelNeedsRetrieval, snap)

	require.Len(t, plan, 1)
	assert.Equal(t, "calculate", plan[0].Tool)
	assert.Equal(t, "Q1_PROFIT + Q2_PROFIT - RD_COST", plan[0].Input)
}

func TestPlanSymbolicExpressionWithoutMemory(t *testing.T) {
	p := New(nil, nil, Options{})

	plan := p.Plan(context.Background(), "计算 Q1_PROFIT + Q2_PROFIT - RD_COST",
		router.LabelNeedsRetrieval, memory.Snapshot{})

	require.Len(t, plan, 2)
	assert.Equal(t, "retrieve", plan[0].Tool)
	assert.Equal(t, "calculate", plan[1].Tool)
}

func TestPlanBudgetAnalysisRequest(t *testing.T) {
	p := New(nil, nil, Options{})

	plan := p.Plan(context.Background(), "根据公司年度预算分析股价并给出评级",
		router.LabelNeedsRetrieval, memory.Snapshot{})

	require.Len(t, plan, 2)
	assert.Equal(t, "retrieve", plan[0].Tool)
	assert.Equal(t, "budget_analyst", plan[1].Tool)
	assert.Equal(t, QuestionPlaceholder, plan[1].Input)
}

func TestPlanFollowupUsesLastResultOnly(t *testing.T) {
	p := New(nil, nil, Options{})
	last := 130000.0
	snap := memory.Snapshot{LastResult: &last}

	for _, question := range []string{
		"apply +10 to the prior result",
		"在刚才的结果上再加 10",
	} {
		plan := p.Plan(context.Background(), question, router.LabelNeedsRetrieval, snap)

		require.Len(t, plan, 1, question)
		assert.Equal(t, "calculate", plan[0].Tool, question)
		assert.Equal(t, "LAST_RESULT + 10", plan[0].Input, question)
		assert.False(t, plan.HasTool("retrieve"), question)
	}
}

func TestPlanNoFollowupWithoutLastResult(t *testing.T) {
	p := New(nil, nil, Options{})

	plan := p.Plan(context.Background(), "apply +10 to the prior result",
		router.LabelNeedsRetrieval, memory.Snapshot{})

	// 没有 last_result 时退回兜底检索
	require.Len(t, plan, 1)
	assert.Equal(t, "retrieve", plan[0].Tool)
}

func TestPlanOtherLabelSkipsTools(t *testing.T) {
	client := &fakeLLM{reply: `{"steps":[{"tool":"retrieve","input":"x"}]}`}
	p := New(client, nil, Options{})

	plan := p.Plan(context.Background(), "给我讲个故事", router.LabelOther, memory.Snapshot{})

	assert.Empty(t, plan)
	assert.Zero(t, client.calls)
}

func TestPlanFromLLMJSON(t *testing.T) {
	client := &fakeLLM{reply: "```json\n" + `{"steps":[
		{"tool":"retrieve","input":"2023 年净利润","reason":"find profit"},
		{"tool":"calculate","input":"NET_PROFIT / 4","reason":"quarterly"},
		{"tool":"teleport","input":"x","reason":"unknown tool"}
	]}` + "\n```"}
	p := New(client, nil, Options{})

	plan := p.Plan(context.Background(), "公司 2023 年每季度平均净利润是多少",
		router.LabelNeedsRetrieval, memory.Snapshot{})

	require.Len(t, plan, 2)
	assert.Equal(t, "retrieve", plan[0].Tool)
	assert.Equal(t, "calculate", plan[1].Tool)
}

func TestPlanLLMFailureFallsBackToRetrieve(t *testing.T) {
	p := New(&fakeLLM{err: errors.New("timeout")}, nil, Options{})

	plan := p.Plan(context.Background(), "公司主营业务是什么", router.LabelNeedsRetrieval, memory.Snapshot{})

	require.Len(t, plan, 1)
	assert.Equal(t, "retrieve", plan[0].Tool)
}

func TestPlanForcesGroundingWithoutMemory(t *testing.T) {
	client := &fakeLLM{reply: `{"steps":[{"tool":"calculate","input":"A + 1","reason":"r"}]}`}
	p := New(client, nil, Options{})

	plan := p.Plan(context.Background(), "帮我查一下 A 然后加一", router.LabelNeedsRetrieval, memory.Snapshot{})

	require.Len(t, plan, 2)
	assert.Equal(t, "retrieve", plan[0].Tool)
	assert.Equal(t, QuestionPlaceholder, plan[0].Input)
	assert.Equal(t, "calculate", plan[1].Tool)
}

func TestPlanLengthNeverExceedsMax(t *testing.T) {
	client := &fakeLLM{reply: `{"steps":[
		{"tool":"retrieve","input":"a"},
		{"tool":"retrieve","input":"b"},
		{"tool":"retrieve","input":"c"},
		{"tool":"retrieve","input":"d"},
		{"tool":"retrieve","input":"e"},
		{"tool":"retrieve","input":"f"}
	]}`}
	p := New(client, nil, Options{})

	plan := p.Plan(context.Background(), "把知识库里所有指标都查一遍",
		router.LabelNeedsRetrieval, memory.Snapshot{})

	assert.LessOrEqual(t, len(plan), MaxSteps)
	assert.NotEmpty(t, plan)
}

func TestExtractSymbolicExpression(t *testing.T) {
	assert.Equal(t, "A + B - C", ExtractSymbolicExpression("请帮我算 A + B - C 的值"))
	assert.Equal(t, "TAX * 2", ExtractSymbolicExpression("TAX * 2 是多少"))
	assert.Empty(t, ExtractSymbolicExpression("今天天气怎么样"))
	assert.Empty(t, ExtractSymbolicExpression("COVID-19 的情况"))
}
