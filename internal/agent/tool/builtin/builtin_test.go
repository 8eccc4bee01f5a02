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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/tool"
	"docqa-agent/internal/pipeline/common"
	pkgerrors "docqa-agent/pkg/errors"
)

func hit(text, source string, page int, score float64) common.RetrievedHit {
	return common.RetrievedHit{
		Chunk:       common.Chunk{Text: text, Source: source, Page: page},
		VectorScore: score,
	}
}

func TestRetrieveToolSuccess(t *testing.T) {
	fn := func(_ context.Context, query string) (*common.RetrievalResult, error) {
		assert.Equal(t, "净利润是多少", query)
		return &common.RetrievalResult{
			FinalHits: []common.RetrievedHit{
				hit("Q1_PROFIT = 100000", "年报.pdf", 12, 0.92),
				hit("RD_COST = 20000", "年报.pdf", 13, 0.81),
			},
			RerankApplied: true,
		}, nil
	}
	rt := NewRetrieveTool(fn)
	state := &tool.RunState{}

	out := rt.Run(context.Background(), QuestionPlaceholder, tool.Context{
		Question: "净利润是多少",
		RunState: state,
	})

	require.NoError(t, out.Err)
	assert.Contains(t, out.Observation, "年报.pdf")
	require.Len(t, out.Citations, 2)
	assert.Equal(t, "年报.pdf", out.Citations[0].Source)
	assert.Equal(t, 12, out.Citations[0].Page)
	assert.Contains(t, state.RetrievalText, "Q1_PROFIT = 100000")
	assert.True(t, state.RerankApplied)
	assert.Len(t, out.Delta.Citations, 2)
	assert.Contains(t, out.Delta.RetrievalText, "RD_COST = 20000")
}

func TestRetrieveToolPassesThroughFailure(t *testing.T) {
	fn := func(_ context.Context, _ string) (*common.RetrievalResult, error) {
		return nil, pkgerrors.Wrap(pkgerrors.ErrRetrieval, "embedding service down")
	}
	rt := NewRetrieveTool(fn)

	out := rt.Run(context.Background(), "anything", tool.Context{Question: "q"})

	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, pkgerrors.ErrRetrieval)
	assert.Contains(t, out.Observation, "retrieve_failed")
}

func TestCalculateToolFromMemoryVariables(t *testing.T) {
	ct := NewCalculateTool()
	out := ct.Run(context.Background(), "Q1_PROFIT + Q2_PROFIT - RD_COST", tool.Context{
		Memory: memory.Snapshot{Variables: map[string]float64{
			"Q1_PROFIT": 100000,
			"Q2_PROFIT": 50000,
			"RD_COST":   20000,
		}},
	})

	require.NoError(t, out.Err)
	require.NotNil(t, out.Delta.LastResult)
	assert.Equal(t, 130000.0, *out.Delta.LastResult)
	assert.Equal(t, "Q1_PROFIT + Q2_PROFIT - RD_COST", out.Delta.LastExpression)
	assert.Contains(t, out.Observation, "value=130000")
}

func TestCalculateToolLastResult(t *testing.T) {
	last := 130000.0
	ct := NewCalculateTool()
	out := ct.Run(context.Background(), "LAST_RESULT + 10", tool.Context{
		Memory: memory.Snapshot{LastResult: &last},
	})

	require.NoError(t, out.Err)
	require.NotNil(t, out.Delta.LastResult)
	assert.Equal(t, 130010.0, *out.Delta.LastResult)
}

func TestCalculateToolExtractsFromRetrievalText(t *testing.T) {
	ct := NewCalculateTool()
	out := ct.Run(context.Background(), "TAX * 2", tool.Context{
		RunState: &tool.RunState{RetrievalText: "年报显示 TAX = 1500 元"},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, 3000.0, *out.Delta.LastResult)
	assert.Equal(t, 1500.0, out.Delta.Variables["TAX"])
}

func TestCalculateToolUnknownVariable(t *testing.T) {
	ct := NewCalculateTool()
	out := ct.Run(context.Background(), "X + 1", tool.Context{})

	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, pkgerrors.ErrUnknownVariable)
	assert.True(t, out.Delta.Empty())
}

func TestCalculateToolMemoryWinsOverExtraction(t *testing.T) {
	ct := NewCalculateTool()
	out := ct.Run(context.Background(), "COST + 0", tool.Context{
		Memory:   memory.Snapshot{Variables: map[string]float64{"COST": 10}},
		RunState: &tool.RunState{RetrievalText: "COST = 99"},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, 10.0, *out.Delta.LastResult)
}

func TestBudgetAnalystFromText(t *testing.T) {
	bt := NewBudgetAnalystTool()
	out := bt.Run(context.Background(), QuestionPlaceholder, tool.Context{
		Question: "根据年度预算给出股票评级",
		RunState: &tool.RunState{
			RetrievalText: "2023 年度预算 1.0亿元。2024 年度预算 1.2亿元，公司计划上调预算。当前股价为 15.8 元。",
		},
	})

	require.NoError(t, out.Err)
	// 增速 20% → +2，上调语气 → +1
	assert.Contains(t, out.Observation, "rating="+RatingBuy)
	assert.Equal(t, 1.2e8, out.Delta.Variables["BUDGET_LATEST"])
	assert.Equal(t, 1.0e8, out.Delta.Variables["BUDGET_PREV"])
	assert.InDelta(t, 20.0, out.Delta.Variables["BUDGET_GROWTH_PCT"], 1e-9)
	assert.Equal(t, 15.8, out.Delta.Variables["STOCK_PRICE"])
	assert.Equal(t, 3.0, out.Delta.Variables["BUDGET_ANALYST_SCORE"])
}

func TestBudgetAnalystStructuredInput(t *testing.T) {
	bt := NewBudgetAnalystTool()
	input := `{"budgets":[{"year":2023,"amount":100,"unit":"万"},{"year":2024,"amount":90,"unit":"万"}],"stock_price":12.5}`

	out := bt.Run(context.Background(), input, tool.Context{Question: "评级"})

	require.NoError(t, out.Err)
	// 增速 -10% → -1
	assert.Contains(t, out.Observation, "rating="+RatingReduce)
	assert.Equal(t, 9e5, out.Delta.Variables["BUDGET_LATEST"])
	assert.Equal(t, 12.5, out.Delta.Variables["STOCK_PRICE"])
}

func TestBudgetAnalystMissingData(t *testing.T) {
	bt := NewBudgetAnalystTool()
	out := bt.Run(context.Background(), "", tool.Context{
		Question: "给出评级",
		RunState: &tool.RunState{RetrievalText: "2024 年度预算 1.2亿元"},
	})

	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, pkgerrors.ErrBudgetDataMissing)
}

func TestRatingForScore(t *testing.T) {
	assert.Equal(t, RatingBuy, ratingForScore(3))
	assert.Equal(t, RatingBuy, ratingForScore(2))
	assert.Equal(t, RatingAdd, ratingForScore(1))
	assert.Equal(t, RatingHold, ratingForScore(0))
	assert.Equal(t, RatingReduce, ratingForScore(-1))
	assert.Equal(t, RatingSell, ratingForScore(-2))
}
