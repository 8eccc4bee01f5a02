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

package synthesize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/router"
	"docqa-agent/internal/model/llm"
)

type recordingLLM struct {
	system string
	user   string
}

func (r *recordingLLM) Chat(messages []llm.Message, options llm.GenerateOptions) (string, error) {
	return r.ChatWithContext(context.Background(), messages, options)
}

func (r *recordingLLM) ChatWithContext(_ context.Context, messages []llm.Message, _ llm.GenerateOptions) (string, error) {
	for _, m := range messages {
		switch m.Role {
		case "system":
			r.system = m.Content
		case "user":
			r.user = m.Content
		}
	}
	return "final answer", nil
}

func (r *recordingLLM) Model() string    { return "fake" }
func (r *recordingLLM) Provider() string { return "fake" }

func TestSynthesizeSystemPromptByLabel(t *testing.T) {
	cases := []struct {
		label    router.Label
		plan     bool
		contains string
	}{
		{router.LabelChitchat, false, "聊天助手"},
		{router.LabelOther, false, "通用助理"},
		{router.LabelNeedsRetrieval, false, "通用助理"},
		{router.LabelNeedsRetrieval, true, "Agentic RAG"},
	}
	for _, tc := range cases {
		client := &recordingLLM{}
		s := NewLLM(client, nil)

		answer, err := s.Synthesize(context.Background(), Request{
			Question: "q",
			Label:    tc.label,
			Plan:     tc.plan,
		})

		require.NoError(t, err)
		assert.Equal(t, "final answer", answer)
		assert.Contains(t, client.system, tc.contains, "label=%s plan=%t", tc.label, tc.plan)
	}
}

func TestSynthesizePromptCarriesTracesAndCitations(t *testing.T) {
	client := &recordingLLM{}
	s := NewLLM(client, nil)

	_, err := s.Synthesize(context.Background(), Request{
		Question: "净利润合计是多少",
		Label:    router.LabelNeedsRetrieval,
		Plan:     true,
		Traces: []TraceStep{
			{StepNo: 1, Tool: "retrieve", Input: "净利润", Observation: "[1] 年报.pdf"},
			{StepNo: 2, Tool: "calculate", Input: "X + 1", Observation: "calc_failed: unknown variable X", Failed: true},
		},
		Memory: memory.Snapshot{
			RetrievalText: "Q1_PROFIT = 100000",
			Citations:     []memory.Citation{memory.NewCitation("年报.pdf", 12, 0.9)},
		},
	})

	require.NoError(t, err)
	assert.Contains(t, client.user, "[step:1]")
	assert.Contains(t, client.user, "[step:2] FAILED")
	assert.Contains(t, client.user, "calc_failed")
	assert.Contains(t, client.user, "Q1_PROFIT = 100000")
	assert.Contains(t, client.user, "[ref:1] source=年报.pdf page=12")
}
