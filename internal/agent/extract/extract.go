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

// Package extract 从检索文本中提取结构化数据：NAME=value 变量、
// 年度预算、股价与预算调整语气。供 calculate 与 budget_analyst 共用。
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	varPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9_]*)\b\s*(?:=|:|：)\s*(-?\d+(?:\.\d+)?)`)

	yearFirstBudget = regexp.MustCompile(`(20\d{2})[^0-9]{0,6}(?:年度|年)?预算[^0-9]{0,6}(\d+(?:\.\d+)?)\s*([^\s,，。；;]{0,6})`)
	budgetFirstYear = regexp.MustCompile(`(?:年度|年)?预算[^0-9]{0,6}(20\d{2})[^0-9]{0,6}(\d+(?:\.\d+)?)\s*([^\s,，。；;]{0,6})`)
	budgetWithoutYr = regexp.MustCompile(`(?:年度|年)?预算[^0-9]{0,6}(\d+(?:\.\d+)?)\s*([^\s,，。；;]{0,6})`)

	stockPricePat = regexp.MustCompile(`(?i)(?:股价为|股价是|股价|stock\s*price|price)[^0-9]{0,6}(\d+(?:\.\d+)?)`)

	budgetToneDownPat = regexp.MustCompile(`(下调|削减|减少|缩减|压缩).{0,6}预算|预算.{0,6}(下调|削减|减少|缩减|压缩)`)
	budgetToneUpPat   = regexp.MustCompile(`(上调|增加|提升|扩张).{0,6}预算|预算.{0,6}(上调|增加|提升|扩张)`)
)

// Variables 提取文本中的 NAME=value / NAME:value 变量定义
func Variables(text string) map[string]float64 {
	if text == "" {
		return nil
	}
	out := make(map[string]float64)
	for _, m := range varPattern.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out[m[1]] = value
	}
	return out
}

// BudgetItem 一条年度预算记录；Year 为 0 表示未知年份
type BudgetItem struct {
	Year  int
	Value float64
	Raw   string
}

// Budgets 从文本提取 (年份, 预算金额) 对。优先带年份的写法；
// 仅在完全没有带年份的条目时回退到无年份模式。
func Budgets(text string) []BudgetItem {
	if text == "" {
		return nil
	}

	var items []BudgetItem
	seen := make(map[string]bool)

	for _, pat := range []*regexp.Regexp{yearFirstBudget, budgetFirstYear} {
		for _, m := range pat.FindAllStringSubmatch(text, -1) {
			year, _ := strconv.Atoi(m[1])
			amount, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			unit := m[3]
			value := amount * UnitMultiplier(unit)
			key := fmt.Sprintf("%d/%g", year, value)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, BudgetItem{Year: year, Value: value, Raw: strings.TrimSpace(m[2] + unit)})
		}
	}
	if len(items) > 0 {
		return items
	}

	for _, m := range budgetWithoutYr.FindAllStringSubmatch(text, -1) {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		unit := m[2]
		value := amount * UnitMultiplier(unit)
		key := fmt.Sprintf("0/%g", value)
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, BudgetItem{Value: value, Raw: strings.TrimSpace(m[1] + unit)})
	}
	return items
}

// StockPrice 提取股价，找不到返回 (0, false)
func StockPrice(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	m := stockPricePat.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// BudgetTone 返回预算调整语气：+1 上调、-1 下调、0 中性
func BudgetTone(text string) int {
	if text == "" {
		return 0
	}
	if budgetToneDownPat.MatchString(text) {
		return -1
	}
	if budgetToneUpPat.MatchString(text) {
		return 1
	}
	return 0
}

// UnitMultiplier 把中文/英文金额单位换算成倍数；未知单位按 1 处理
func UnitMultiplier(unit string) float64 {
	u := strings.ToLower(strings.TrimSpace(unit))
	for _, token := range []string{"人民币", "美元", "元", "圆", "rmb", "cny", "usd", "¥", "$"} {
		u = strings.ReplaceAll(u, token, "")
	}
	u = strings.TrimSpace(u)
	if u == "" {
		return 1
	}

	switch {
	case strings.Contains(u, "万亿"):
		return 1e12
	case strings.Contains(u, "十亿"):
		return 1e9
	case strings.Contains(u, "亿"):
		return 1e8
	case strings.Contains(u, "千万"):
		return 1e7
	case strings.Contains(u, "百万"):
		return 1e6
	case strings.Contains(u, "万"):
		return 1e4
	case strings.Contains(u, "千"):
		return 1e3
	case strings.Contains(u, "百"):
		return 1e2
	}

	switch {
	case strings.Contains(u, "billion"), u == "b", u == "bn":
		return 1e9
	case strings.Contains(u, "million"), u == "m":
		return 1e6
	case strings.Contains(u, "thousand"), u == "k":
		return 1e3
	}
	return 1
}

// FormatAmount 按中文习惯格式化金额（万亿/亿/万）
func FormatAmount(value float64) string {
	switch {
	case value >= 1e12:
		return fmt.Sprintf("%.2f万亿", value/1e12)
	case value >= 1e8:
		return fmt.Sprintf("%.2f亿", value/1e8)
	case value >= 1e4:
		return fmt.Sprintf("%.2f万", value/1e4)
	}
	return fmt.Sprintf("%.2f", value)
}
