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

// Package tool 定义工具接口、执行上下文与注册表。
// 工具不直接持有或修改 Memory；状态变更通过 Output.Delta
// 返回，由 Executor 在步骤成功后统一合并。
package tool

import (
	"context"

	"docqa-agent/internal/agent/memory"
)

// Tool 一个可被 Planner 调度的能力
type Tool interface {
	Name() string
	Run(ctx context.Context, input string, tc Context) Output
}

// Context 工具执行上下文：当前问题、Memory 只读快照与本轮运行态。
// 不暴露 Registry 内部。
type Context struct {
	Question string
	Memory   memory.Snapshot

	// RunState 同一 Plan 内前序步骤留下的本轮状态；
	// 跨轮状态走 Memory。
	RunState *RunState
}

// RunState 单轮执行内的共享状态，turn 结束即丢弃
type RunState struct {
	RetrievalText string
	RerankApplied bool
	RerankMessage string
	Citations     []memory.Citation
}

// Output 工具执行结果。Err 非空表示该步骤失败；
// 失败步骤的 Delta 被丢弃，不会进入 Memory。
type Output struct {
	Observation string
	Citations   []memory.Citation
	Delta       memory.Delta
	Err         error
}

// Fail 构造失败输出
func Fail(observation string, err error) Output {
	return Output{Observation: observation, Err: err}
}
