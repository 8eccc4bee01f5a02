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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"docqa-agent/internal/agent/extract"
	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/tool"
	pkgerrors "docqa-agent/pkg/errors"
)

// 评级标签（按分值从高到低）
const (
	RatingBuy    = "buy"
	RatingAdd    = "add"
	RatingHold   = "hold"
	RatingReduce = "reduce"
	RatingSell   = "sell"
)

// BudgetAnalystTool 基于年度预算增速给出股票评级。
// 结构化 JSON 输入优先；否则从输入/问题/检索文本中启发式提取。
type BudgetAnalystTool struct{}

// NewBudgetAnalystTool 创建预算分析工具
func NewBudgetAnalystTool() *BudgetAnalystTool { return &BudgetAnalystTool{} }

// Name 工具名
func (t *BudgetAnalystTool) Name() string { return "budget_analyst" }

type budgetPayload struct {
	Budgets []struct {
		Year   int         `json:"year"`
		Amount json.Number `json:"amount"`
		Value  json.Number `json:"value"`
		Unit   string      `json:"unit"`
	} `json:"budgets"`
	StockPrice json.Number `json:"stock_price"`
	Price      json.Number `json:"price"`
}

// Run 执行预算分析。可比年份不足两个时返回 ErrBudgetDataMissing。
func (t *BudgetAnalystTool) Run(ctx context.Context, input string, tc tool.Context) tool.Output {
	text := strings.TrimSpace(input)
	combined := t.combinedText(text, tc)

	budgets, stockPrice, hasPrice := t.parseStructured(text)
	if len(budgets) == 0 {
		budgets = extract.Budgets(combined)
	}
	if !hasPrice {
		stockPrice, hasPrice = extract.StockPrice(combined)
	}

	latest, prev, ok := latestAndPrev(budgets)
	if !ok {
		return tool.Fail("budget_failed: fewer than two comparable budget years",
			pkgerrors.Wrapf(pkgerrors.ErrBudgetDataMissing,
				"need two budget years, got %d", len(budgets)))
	}

	growthPct := (latest.Value - prev.Value) / prev.Value * 100

	score := 0
	switch {
	case growthPct >= 15:
		score += 2
	case growthPct >= 5:
		score++
	case growthPct <= -15:
		score -= 2
	case growthPct <= -5:
		score--
	}
	tone := extract.BudgetTone(combined)
	score += tone

	rating := ratingForScore(score)

	priceText := "<none>"
	if hasPrice {
		priceText = fmt.Sprintf("%.4f", stockPrice)
	}
	observation := fmt.Sprintf(
		"budget_analyst: rating=%s; score=%d; budget_latest=%d=%s; budget_prev=%d=%s; "+
			"budget_growth_pct=%.2f%%; stock_price=%s; tone=%d",
		rating, score,
		latest.Year, extract.FormatAmount(latest.Value),
		prev.Year, extract.FormatAmount(prev.Value),
		growthPct, priceText, tone)

	variables := map[string]float64{
		"BUDGET_LATEST":        latest.Value,
		"BUDGET_PREV":          prev.Value,
		"BUDGET_GROWTH_PCT":    growthPct,
		"BUDGET_ANALYST_SCORE": float64(score),
	}
	if hasPrice {
		variables["STOCK_PRICE"] = stockPrice
	}

	return tool.Output{
		Observation: observation,
		Delta: memory.Delta{
			Variables:    variables,
			Observations: map[string]string{"budget_analyst": observation},
		},
	}
}

func (t *BudgetAnalystTool) combinedText(input string, tc tool.Context) string {
	retrievalText := tc.Memory.RetrievalText
	if tc.RunState != nil && tc.RunState.RetrievalText != "" {
		retrievalText = tc.RunState.RetrievalText
	}

	var parts []string
	if input != "" && input != QuestionPlaceholder {
		parts = append(parts, input)
	}
	if tc.Question != "" {
		parts = append(parts, tc.Question)
	}
	if retrievalText != "" {
		parts = append(parts, retrievalText)
	}
	return strings.Join(parts, "\n")
}

// parseStructured 解析结构化 JSON 输入；非 JSON 输入返回空
func (t *BudgetAnalystTool) parseStructured(text string) ([]extract.BudgetItem, float64, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, 0, false
	}
	var payload budgetPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, 0, false
	}

	var budgets []extract.BudgetItem
	for _, item := range payload.Budgets {
		raw := item.Amount
		if raw == "" {
			raw = item.Value
		}
		amount, err := raw.Float64()
		if err != nil {
			continue
		}
		value := amount * extract.UnitMultiplier(item.Unit)
		budgets = append(budgets, extract.BudgetItem{
			Year:  item.Year,
			Value: value,
			Raw:   raw.String() + item.Unit,
		})
	}

	priceRaw := payload.StockPrice
	if priceRaw == "" {
		priceRaw = payload.Price
	}
	if priceRaw != "" {
		if price, err := priceRaw.Float64(); err == nil {
			return budgets, price, true
		}
	}
	return budgets, 0, false
}

// latestAndPrev 取最近两个带年份且年份不同的预算；不足返回 false
func latestAndPrev(budgets []extract.BudgetItem) (latest, prev extract.BudgetItem, ok bool) {
	byYear := make(map[int]extract.BudgetItem)
	for _, item := range budgets {
		if item.Year == 0 {
			continue
		}
		byYear[item.Year] = item
	}
	if len(byYear) < 2 {
		return latest, prev, false
	}

	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)
	latest = byYear[years[len(years)-1]]
	prev = byYear[years[len(years)-2]]
	if prev.Value <= 0 {
		return latest, prev, false
	}
	return latest, prev, true
}

func ratingForScore(score int) string {
	switch {
	case score >= 2:
		return RatingBuy
	case score == 1:
		return RatingAdd
	case score == 0:
		return RatingHold
	case score == -1:
		return RatingReduce
	}
	return RatingSell
}
