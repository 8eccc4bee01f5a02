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

package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"docqa-agent/internal/agent/executor"
	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/planner"
	"docqa-agent/internal/agent/router"
	"docqa-agent/internal/agent/synthesize"
	"docqa-agent/internal/agent/tool"
	"docqa-agent/internal/agent/tool/builtin"
	"docqa-agent/internal/pipeline/ingest"
	pkgerrors "docqa-agent/pkg/errors"
)

type stubSynth struct{}

func (stubSynth) Synthesize(_ context.Context, _ synthesize.Request) (string, error) {
	return "answer", nil
}

func newSession(t *testing.T, ingestor ingest.Ingestor) *Session {
	t.Helper()
	registry := tool.NewRegistry()
	registry.Register(builtin.NewCalculateTool())
	exec := executor.New(
		router.New(nil, nil),
		planner.New(nil, nil, planner.Options{}),
		registry,
		stubSynth{},
		memory.New(20),
		nil,
		executor.Options{},
	)
	return New(exec, ingestor, nil)
}

func TestSessionAskAndReset(t *testing.T) {
	s := newSession(t, nil)
	s.exec.Memory().Merge(memory.Delta{Variables: map[string]float64{"A1": 1, "B1": 2}})

	result, err := s.Ask(context.Background(), "帮我算 A1 + B1 等于几")
	require.NoError(t, err)
	assert.Equal(t, "answer", result.Answer)

	snap := s.exec.Memory().Snapshot()
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, 3.0, *snap.LastResult)

	out, handled, err := s.HandleCommand(context.Background(), "reset")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "memory cleared", out)
	assert.Nil(t, s.exec.Memory().Snapshot().LastResult)
}

func TestTurnSpanCarriesSessionID(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	s := newSession(t, nil)
	_, err := s.Ask(context.Background(), "你好")
	require.NoError(t, err)

	var found bool
	for _, span := range exporter.GetSpans() {
		if span.Name != "turn.execute" {
			continue
		}
		found = true
		attrs := attribute.NewSet(span.Attributes...)
		v, ok := attrs.Value(attribute.Key("session.id"))
		require.True(t, ok)
		assert.Equal(t, s.ID, v.AsString())
	}
	assert.True(t, found, "turn.execute span not recorded")
}

func TestSessionListToolsCommand(t *testing.T) {
	s := newSession(t, nil)

	out, handled, err := s.HandleCommand(context.Background(), "list-tools")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "calculate", out)
}

func TestSessionMemorySummaryCommand(t *testing.T) {
	s := newSession(t, nil)

	out, handled, err := s.HandleCommand(context.Background(), "memory-summary")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, out, "turn_count=0")
}

func TestSessionRebuildIndex(t *testing.T) {
	called := false
	ingestor := ingest.Func(func(_ context.Context) (int, error) {
		called = true
		return 7, nil
	})
	s := newSession(t, ingestor)

	out, handled, err := s.HandleCommand(context.Background(), "rebuild-index")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, called)
	assert.Contains(t, out, "7 chunks")
}

func TestSessionRebuildIndexWithoutIngestor(t *testing.T) {
	s := newSession(t, nil)

	_, handled, err := s.HandleCommand(context.Background(), "rebuild-index")
	assert.True(t, handled)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestSessionNonCommandNotHandled(t *testing.T) {
	s := newSession(t, nil)

	_, handled, err := s.HandleCommand(context.Background(), "净利润是多少")
	require.NoError(t, err)
	assert.False(t, handled)
}
