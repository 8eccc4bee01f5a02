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

package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// VarNamePattern 变量名不变量：首字符大写字母，后续大写字母/数字/下划线
var VarNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Citation 一条引用：来源、页码、相关性得分。创建后不可变。
type Citation struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float64 `json:"score"`
}

// NewCitation 创建引用（分配 ID）
func NewCitation(source string, page int, score float64) Citation {
	return Citation{
		ID:     uuid.New().String(),
		Source: source,
		Page:   page,
		Score:  score,
	}
}

// Memory 会话级跨轮状态：变量、上次计算结果、有界引用列表。
// 仅 Executor 通过 Merge 变更；工具只返回 Delta。
type Memory struct {
	mu sync.RWMutex

	turnCount    int
	lastQuestion string
	lastAnswer   string

	lastExpression string
	variables      map[string]float64
	lastResult     *float64

	citations []Citation // 最近优先
	retention int

	observations map[string]string // tool -> 最近一次 observation

	lastRetrievalText string
}

// Delta 一次工具执行对 Memory 的增量；零值 Delta 合并后无任何变化
type Delta struct {
	Variables      map[string]float64
	LastResult     *float64
	LastExpression string
	Citations      []Citation // 头插（最近优先）
	Observations   map[string]string
	RetrievalText  string
}

// Empty 判断 Delta 是否为空
func (d Delta) Empty() bool {
	return len(d.Variables) == 0 && d.LastResult == nil && d.LastExpression == "" &&
		len(d.Citations) == 0 && len(d.Observations) == 0 && d.RetrievalText == ""
}

// New 创建 Memory；retention 为引用保留条数，<=0 默认 20
func New(retention int) *Memory {
	if retention <= 0 {
		retention = 20
	}
	return &Memory{
		variables:    make(map[string]float64),
		observations: make(map[string]string),
		retention:    retention,
	}
}

// Merge 应用增量。变量名不满足命名不变量的条目被丢弃；
// 引用头插并按 (source, page) 去重，超出保留条数的尾部被截断。
func (m *Memory) Merge(delta Delta) {
	if delta.Empty() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, value := range delta.Variables {
		if !VarNamePattern.MatchString(name) {
			continue
		}
		m.variables[name] = value
	}
	if delta.LastResult != nil {
		v := *delta.LastResult
		m.lastResult = &v
	}
	if delta.LastExpression != "" {
		m.lastExpression = delta.LastExpression
	}
	if len(delta.Citations) > 0 {
		m.citations = mergeCitations(delta.Citations, m.citations, m.retention)
	}
	for tool, obs := range delta.Observations {
		m.observations[tool] = obs
	}
	if delta.RetrievalText != "" {
		m.lastRetrievalText = delta.RetrievalText
	}
}

// mergeCitations 头插新引用，(source, page) 去重，截断到 retention
func mergeCitations(incoming, current []Citation, retention int) []Citation {
	merged := make([]Citation, 0, len(incoming)+len(current))
	seen := make(map[string]bool, len(incoming)+len(current))
	for _, c := range incoming {
		key := fmt.Sprintf("%s#%d", c.Source, c.Page)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, c)
	}
	for _, c := range current {
		key := fmt.Sprintf("%s#%d", c.Source, c.Page)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, c)
	}
	if len(merged) > retention {
		merged = merged[:retention]
	}
	return merged
}

// RecordTurn 轮次结束时记录问答并递增轮次计数
func (m *Memory) RecordTurn(question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnCount++
	m.lastQuestion = question
	m.lastAnswer = answer
}

// Reset 清空全部状态（会话 reset 命令）
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnCount = 0
	m.lastQuestion = ""
	m.lastAnswer = ""
	m.lastExpression = ""
	m.variables = make(map[string]float64)
	m.lastResult = nil
	m.citations = nil
	m.observations = make(map[string]string)
	m.lastRetrievalText = ""
}

// Snapshot Memory 的只读视图，供 Router/Planner/工具使用
type Snapshot struct {
	TurnCount      int
	LastQuestion   string
	LastAnswer     string
	LastExpression string
	Variables      map[string]float64
	LastResult     *float64
	Citations      []Citation
	Observations   map[string]string
	RetrievalText  string
}

// Snapshot 返回当前状态的副本
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vars := make(map[string]float64, len(m.variables))
	for k, v := range m.variables {
		vars[k] = v
	}
	obs := make(map[string]string, len(m.observations))
	for k, v := range m.observations {
		obs[k] = v
	}
	citations := make([]Citation, len(m.citations))
	copy(citations, m.citations)

	var lastResult *float64
	if m.lastResult != nil {
		v := *m.lastResult
		lastResult = &v
	}

	return Snapshot{
		TurnCount:      m.turnCount,
		LastQuestion:   m.lastQuestion,
		LastAnswer:     m.lastAnswer,
		LastExpression: m.lastExpression,
		Variables:      vars,
		LastResult:     lastResult,
		Citations:      citations,
		Observations:   obs,
		RetrievalText:  m.lastRetrievalText,
	}
}

// Summary 人类可读摘要（memory-summary 命令）
func (m *Memory) Summary() string {
	snap := m.Snapshot()

	names := make([]string, 0, len(snap.Variables))
	for name := range snap.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	varParts := make([]string, 0, len(names))
	for _, name := range names {
		varParts = append(varParts, fmt.Sprintf("%s=%g", name, snap.Variables[name]))
	}
	varsText := strings.Join(varParts, ", ")
	if varsText == "" {
		varsText = "<none>"
	}

	calcText := "<none>"
	if snap.LastExpression != "" && snap.LastResult != nil {
		calcText = fmt.Sprintf("%s = %g", snap.LastExpression, *snap.LastResult)
	}

	refsText := "<none>"
	if len(snap.Citations) > 0 {
		parts := make([]string, 0, 3)
		for i, c := range snap.Citations {
			if i >= 3 {
				break
			}
			parts = append(parts, fmt.Sprintf("%s#p%d", c.Source, c.Page))
		}
		refsText = strings.Join(parts, "; ")
	}

	return fmt.Sprintf("turn_count=%d; last_calc=%s; variables=%s; last_refs=%s",
		snap.TurnCount, calcText, varsText, refsText)
}
