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

// Package router 把用户问题分类为 chitchat / needs_retrieval / other。
// 分类永不向上层返回错误：LLM 失败或输出无法解析时退回 other。
package router

import (
	"context"
	"regexp"
	"strings"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/model/llm"
	"docqa-agent/pkg/errors"
	"docqa-agent/pkg/log"
)

// Label 路由标签
type Label string

const (
	LabelChitchat       Label = "chitchat"
	LabelNeedsRetrieval Label = "needs_retrieval"
	LabelOther          Label = "other"
)

const routerSystemPrompt = `你是一个分类助手。
请判断用户的问题是“闲聊”、“需要查询知识库”还是“其他”。
只输出类别名称，不要输出多余文字。`

// LLM 输出中的中文标签到 Label 的映射，按匹配优先级排列
var labelOrder = []struct {
	text  string
	label Label
}{
	{"需要查询知识库", LabelNeedsRetrieval},
	{"闲聊", LabelChitchat},
	{"其他", LabelOther},
}

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

var smalltalkSet = map[string]bool{
	"hi": true, "hello": true, "hey": true, "sup": true, "yo": true,
	"hola": true, "thanks": true, "thx": true,
	"你好": true, "您好": true, "嗨": true, "哈喽": true, "哈囉": true,
	"在吗": true, "在么": true, "在嘛": true,
	"早上好": true, "下午好": true, "晚上好": true,
	"谢谢": true, "多谢": true, "感谢": true,
	"再见": true, "拜拜": true,
}

var selfIntroPattern = regexp.MustCompile(`^(你是谁|你叫什么|你是做什么的|你能做什么|你会什么)$`)

// Router 问题分类器
type Router struct {
	client llm.Client
	logger *log.Logger
}

// New 创建 Router；client 为 nil 时只走寒暄快速路径
func New(client llm.Client, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Nop()
	}
	return &Router{client: client, logger: logger}
}

// Classify 对问题分类。空问题视为 chitchat；
// 寒暄命中快速路径不调用 LLM。Memory 快照暂不参与判定。
func (r *Router) Classify(ctx context.Context, question string, _ memory.Snapshot) Label {
	q := strings.Join(strings.Fields(question), " ")
	if q == "" || IsSmalltalk(q) {
		return LabelChitchat
	}
	if r.client == nil {
		return LabelOther
	}

	raw, err := r.client.ChatWithContext(ctx, []llm.Message{
		{Role: "system", Content: routerSystemPrompt},
		{Role: "user", Content: "用户问题：" + q + "\n\n请输出类别名称。"},
	}, llm.GenerateOptions{Temperature: 0})
	if err != nil {
		r.logger.Warn("router llm call failed, fallback to other", "error", err)
		return LabelOther
	}

	label, err := parseLabel(raw)
	if err != nil {
		r.logger.Warn("router output unparsable, fallback to other", "raw", raw)
		return LabelOther
	}
	return label
}

// parseLabel 从 LLM 输出中解析标签；解析失败返回 ErrRouterParse
func parseLabel(text string) (Label, error) {
	for _, entry := range labelOrder {
		if strings.Contains(text, entry.text) {
			return entry.label, nil
		}
	}
	return "", errors.Wrapf(errors.ErrRouterParse, "no label in %q", text)
}

// IsSmalltalk 判断是否为寒暄类短语
func IsSmalltalk(question string) bool {
	normalized := nonWordPattern.ReplaceAllString(strings.ToLower(question), "")
	if normalized == "" {
		return true
	}
	if smalltalkSet[normalized] {
		return true
	}
	return selfIntroPattern.MatchString(normalized)
}
