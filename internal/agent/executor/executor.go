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

// Package executor 实现单轮问答状态机：
// Idle → Routing → (Chitchat-Answer | Planning) → Executing → Synthesizing → Done。
// Memory 跨轮持久，Trace 不跨轮；一轮内严格串行执行。
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/planner"
	"docqa-agent/internal/agent/router"
	"docqa-agent/internal/agent/synthesize"
	"docqa-agent/internal/agent/tool"
	"docqa-agent/pkg/errors"
	"docqa-agent/pkg/log"
	"docqa-agent/pkg/metrics"
	"docqa-agent/pkg/tracing"
)

// State 状态机节点
type State string

const (
	StateIdle         State = "idle"
	StateRouting      State = "routing"
	StatePlanning     State = "planning"
	StateExecuting    State = "executing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
)

// Result 一轮执行的产出
type Result struct {
	Answer        string
	Label         router.Label
	Plan          planner.Plan
	Traces        []synthesize.TraceStep
	Citations     []memory.Citation
	RerankApplied bool
	RerankMessage string
	MemorySummary string
}

// Executor 单会话执行器。所有 Memory 变更都由它在工具
// 成功返回后合并；工具自身不持有 Memory。
type Executor struct {
	router      *router.Router
	planner     *planner.Planner
	registry    *tool.Registry
	synthesizer synthesize.Synthesizer
	mem         *memory.Memory
	logger      *log.Logger
	stepTimeout time.Duration
	sessionID   string
}

// Options Executor 配置
type Options struct {
	// StepTimeout 单个工具步骤的超时，<=0 时为 30s
	StepTimeout time.Duration
}

// New 创建 Executor
func New(
	rt *router.Router,
	pl *planner.Planner,
	registry *tool.Registry,
	synthesizer synthesize.Synthesizer,
	mem *memory.Memory,
	logger *log.Logger,
	opts Options,
) *Executor {
	if logger == nil {
		logger = log.Nop()
	}
	stepTimeout := opts.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &Executor{
		router:      rt,
		planner:     pl,
		registry:    registry,
		synthesizer: synthesizer,
		mem:         mem,
		logger:      logger,
		stepTimeout: stepTimeout,
	}
}

// Memory 返回会话 Memory
func (e *Executor) Memory() *memory.Memory { return e.mem }

// SetSessionID 绑定所属会话 ID，作为每轮 span 的 session.id 属性
func (e *Executor) SetSessionID(id string) { e.sessionID = id }

// Registry 返回工具注册表
func (e *Executor) Registry() *tool.Registry { return e.registry }

// RunTurn 执行一轮。只有嵌入/向量库不可用会让整轮失败；
// 工具级失败记入 Trace 后继续执行剩余步骤。
func (e *Executor) RunTurn(ctx context.Context, question string) (*Result, error) {
	start := time.Now()

	label := e.router.Classify(ctx, question, e.mem.Snapshot())
	e.logger.Debug("turn routed", "state", string(StateRouting), "label", string(label))

	ctx, span := tracing.StartTurnSpan(ctx, e.sessionID, string(label))
	defer span.End()

	var plan planner.Plan
	if label != router.LabelChitchat {
		plan = e.planner.Plan(ctx, question, label, e.mem.Snapshot())
		e.logger.Debug("turn planned", "state", string(StatePlanning), "steps", len(plan))
	}

	runState := &tool.RunState{}
	traces := make([]synthesize.TraceStep, 0, len(plan))

	for i, step := range plan {
		trace, fatal := e.executeStep(ctx, i+1, step, question, runState)
		traces = append(traces, trace)
		if fatal != nil {
			metrics.TurnTotal.WithLabelValues("failed").Inc()
			metrics.TurnDuration.WithLabelValues(string(label)).Observe(time.Since(start).Seconds())
			return nil, fatal
		}
	}

	answer, err := e.synthesizer.Synthesize(ctx, synthesize.Request{
		Question: question,
		Label:    label,
		Plan:     len(plan) > 0,
		Traces:   traces,
		Memory:   e.mem.Snapshot(),
	})
	if err != nil {
		e.logger.Warn("synthesizer failed, using trace fallback", "error", err)
		answer = fallbackAnswer(traces)
	}

	e.mem.RecordTurn(question, answer)
	e.logger.Info("turn done",
		"state", string(StateDone),
		"label", string(label),
		"steps", len(plan),
		"duration", time.Since(start))
	metrics.TurnTotal.WithLabelValues("ok").Inc()
	metrics.TurnDuration.WithLabelValues(string(label)).Observe(time.Since(start).Seconds())

	return &Result{
		Answer:        answer,
		Label:         label,
		Plan:          plan,
		Traces:        traces,
		Citations:     runState.Citations,
		RerankApplied: runState.RerankApplied,
		RerankMessage: runState.RerankMessage,
		MemorySummary: e.mem.Summary(),
	}, nil
}

// executeStep 执行一步并返回其轨迹。第二个返回值非空表示
// 轮级致命错误（检索不可用），调用方应中止本轮。
func (e *Executor) executeStep(
	ctx context.Context,
	stepNo int,
	step planner.Step,
	question string,
	runState *tool.RunState,
) (synthesize.TraceStep, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	stepCtx, span := tracing.StartToolSpan(stepCtx, step.Tool)
	defer span.End()

	stepStart := time.Now()
	out := e.registry.Dispatch(stepCtx, step.Tool, step.Input, tool.Context{
		Question: question,
		Memory:   e.mem.Snapshot(),
		RunState: runState,
	})

	trace := synthesize.TraceStep{
		StepNo:      stepNo,
		Tool:        step.Tool,
		Input:       step.Input,
		Reason:      step.Reason,
		Observation: out.Observation,
		Duration:    time.Since(stepStart),
		Failed:      out.Err != nil,
	}

	if out.Err != nil {
		if errors.TurnFatal(out.Err) {
			e.logger.Error("turn aborted, retrieval unavailable",
				"step", stepNo, "tool", step.Tool, "error", out.Err)
			return trace, out.Err
		}
		// 工具级失败：记录后继续剩余步骤
		e.logger.Warn("tool step failed",
			"step", stepNo, "tool", step.Tool, "error", out.Err)
		return trace, nil
	}

	e.mem.Merge(out.Delta)
	return trace, nil
}

// fallbackAnswer 合成器不可用时基于轨迹生成确定性回答
func fallbackAnswer(traces []synthesize.TraceStep) string {
	if len(traces) == 0 {
		return "我现在无法生成回答，请稍后再试。"
	}
	var ok, failed []string
	for _, trace := range traces {
		line := fmt.Sprintf("%s: %s", trace.Tool, trace.Observation)
		if trace.Failed {
			failed = append(failed, line)
		} else {
			ok = append(ok, line)
		}
	}
	var b strings.Builder
	b.WriteString("回答服务暂不可用，以下是工具执行结果：\n")
	b.WriteString(strings.Join(ok, "\n"))
	if len(failed) > 0 {
		b.WriteString("\n以下步骤未能完成：\n")
		b.WriteString(strings.Join(failed, "\n"))
	}
	return b.String()
}
