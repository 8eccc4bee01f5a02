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

package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/planner"
	"docqa-agent/internal/agent/router"
	"docqa-agent/internal/agent/synthesize"
	"docqa-agent/internal/agent/tool"
	"docqa-agent/internal/agent/tool/builtin"
	pkgerrors "docqa-agent/pkg/errors"
)

type fakeSynth struct {
	lastReq synthesize.Request
}

func (f *fakeSynth) Synthesize(_ context.Context, req synthesize.Request) (string, error) {
	f.lastReq = req
	return "answer", nil
}

type countingTool struct {
	name  string
	out   tool.Output
	calls int
}

func (c *countingTool) Name() string { return c.name }

func (c *countingTool) Run(_ context.Context, _ string, _ tool.Context) tool.Output {
	c.calls++
	return c.out
}

func newExecutor(registry *tool.Registry, mem *memory.Memory, synth synthesize.Synthesizer) *Executor {
	return New(
		router.New(nil, nil),
		planner.New(nil, nil, planner.Options{}),
		registry,
		synth,
		mem,
		nil,
		Options{},
	)
}

func TestChitchatTurnDispatchesNoTools(t *testing.T) {
	counting := &countingTool{name: "retrieve"}
	registry := tool.NewRegistry()
	registry.Register(counting)
	synth := &fakeSynth{}
	e := newExecutor(registry, memory.New(20), synth)

	result, err := e.RunTurn(context.Background(), "你好")

	require.NoError(t, err)
	assert.Equal(t, router.LabelChitchat, result.Label)
	assert.Empty(t, result.Plan)
	assert.Empty(t, result.Traces)
	assert.Zero(t, counting.calls)
	assert.Equal(t, "answer", result.Answer)
}

func TestCalculateTurnMergesDelta(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(builtin.NewCalculateTool())
	mem := memory.New(20)
	mem.Merge(memory.Delta{Variables: map[string]float64{
		"Q1_PROFIT": 100000, "Q2_PROFIT": 50000, "RD_COST": 20000,
	}})
	e := newExecutor(registry, mem, &fakeSynth{})

	result, err := e.RunTurn(context.Background(), "帮我算 Q1_PROFIT + Q2_PROFIT - RD_COST")

	require.NoError(t, err)
	require.Len(t, result.Traces, 1)
	assert.Equal(t, "calculate", result.Traces[0].Tool)
	assert.False(t, result.Traces[0].Failed)

	snap := mem.Snapshot()
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, 130000.0, *snap.LastResult)
}

type slowTool struct {
	name  string
	delay time.Duration
	out   tool.Output
}

func (s *slowTool) Name() string { return s.name }

func (s *slowTool) Run(_ context.Context, _ string, _ tool.Context) tool.Output {
	time.Sleep(s.delay)
	return s.out
}

func TestTraceRecordsStepDuration(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(&slowTool{
		name:  "retrieve",
		delay: 5 * time.Millisecond,
		out:   tool.Output{Observation: "ok"},
	})
	registry.Register(&countingTool{name: "calculate", out: tool.Output{Observation: "ok"}})
	e := newExecutor(registry, memory.New(20), &fakeSynth{})

	result, err := e.RunTurn(context.Background(), "帮我算 A + B 等于多少")

	require.NoError(t, err)
	require.Len(t, result.Traces, 2)
	assert.GreaterOrEqual(t, result.Traces[0].Duration, 5*time.Millisecond)
}

func TestFollowupTurnSkipsRetrieval(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(builtin.NewCalculateTool())
	retrieve := &countingTool{name: "retrieve"}
	registry.Register(retrieve)

	mem := memory.New(20)
	last := 130000.0
	mem.Merge(memory.Delta{LastResult: &last})
	e := newExecutor(registry, mem, &fakeSynth{})

	result, err := e.RunTurn(context.Background(), "apply +10 to the prior result")

	require.NoError(t, err)
	require.Len(t, result.Traces, 1)
	assert.Equal(t, "calculate", result.Traces[0].Tool)
	assert.Zero(t, retrieve.calls, "follow-up must not retrieve")

	snap := mem.Snapshot()
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, 130010.0, *snap.LastResult)
}

func TestToolFailureContinuesTurn(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(&countingTool{
		name: "retrieve",
		out: tool.Output{
			Observation: "no hits",
			Delta:       memory.Delta{RetrievalText: "这里没有任何变量定义"},
		},
	})
	registry.Register(builtin.NewCalculateTool())
	synth := &fakeSynth{}
	mem := memory.New(20)
	e := newExecutor(registry, mem, synth)

	result, err := e.RunTurn(context.Background(), "帮我算 X + 1 等于多少")

	require.NoError(t, err)
	require.Len(t, result.Traces, 2)
	assert.False(t, result.Traces[0].Failed)
	assert.True(t, result.Traces[1].Failed)
	assert.Contains(t, result.Traces[1].Observation, "calc_failed")
	assert.Equal(t, "answer", result.Answer)

	// 失败步骤的增量不入 Memory
	assert.Nil(t, mem.Snapshot().LastResult)
	// 合成器能看到失败条目
	assert.True(t, synth.lastReq.Traces[1].Failed)
}

func TestRetrievalFailureAbortsTurn(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(&countingTool{
		name: "retrieve",
		out: tool.Fail("retrieve_failed: vector store down",
			pkgerrors.Wrap(pkgerrors.ErrRetrieval, "vector store down")),
	})
	calculate := &countingTool{name: "calculate"}
	registry.Register(calculate)
	e := newExecutor(registry, memory.New(20), &fakeSynth{})

	result, err := e.RunTurn(context.Background(), "帮我算 A + B 等于多少")

	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrRetrieval)
	assert.Nil(t, result)
	assert.Zero(t, calculate.calls, "remaining steps must not run after turn abort")
}

func TestUnregisteredToolIsSkipped(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(&countingTool{name: "retrieve", out: tool.Output{Observation: "ok"}})
	// budget_analyst 故意不注册
	e := newExecutor(registry, memory.New(20), &fakeSynth{})

	result, err := e.RunTurn(context.Background(), "根据年度预算分析股价并给出评级")

	require.NoError(t, err)
	require.Len(t, result.Traces, 2)
	assert.Equal(t, "budget_analyst", result.Traces[1].Tool)
	assert.True(t, result.Traces[1].Failed)
	assert.Contains(t, result.Traces[1].Observation, "tool_not_registered")
	assert.Equal(t, "answer", result.Answer)
}

func TestLaterStepsSeeEarlierDeltas(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(&countingTool{
		name: "retrieve",
		out: tool.Output{
			Observation: "[1] 年报.pdf",
			Delta: memory.Delta{
				Variables:     nil,
				RetrievalText: "WIDGET_COST = 25",
			},
		},
	})
	registry.Register(builtin.NewCalculateTool())
	mem := memory.New(20)
	e := newExecutor(registry, mem, &fakeSynth{})

	result, err := e.RunTurn(context.Background(), "查一下 WIDGET_COST * 4 是多少")

	require.NoError(t, err)
	require.Len(t, result.Traces, 2)
	assert.False(t, result.Traces[1].Failed)

	snap := mem.Snapshot()
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, 100.0, *snap.LastResult)
}
