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

package rerank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemsResultsList(t *testing.T) {
	body := []byte(`{"results":[{"index":2,"relevance_score":0.9},{"index":0,"relevance_score":0.4}]}`)

	items, err := parseItems(body, 3)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Index)
	assert.InDelta(t, 0.9, items[0].Score, 1e-9)
	assert.Equal(t, 0, items[1].Index)
	assert.InDelta(t, 0.4, items[1].Score, 1e-9)
}

func TestParseItemsDataListWithDocumentIndex(t *testing.T) {
	body := []byte(`{"data":[{"document_index":1,"score":0.7},{"document_index":0,"score":0.3}]}`)

	items, err := parseItems(body, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Index)
	assert.InDelta(t, 0.7, items[0].Score, 1e-9)
}

func TestParseItemsOutputListWithIDAndSimilarity(t *testing.T) {
	body := []byte(`{"output":[{"id":0,"similarity":0.55}]}`)

	items, err := parseItems(body, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].Index)
	assert.InDelta(t, 0.55, items[0].Score, 1e-9)
}

func TestParseItemsFallsBackToPosition(t *testing.T) {
	body := []byte(`{"results":[{"relevance_score":0.8},{"relevance_score":0.2}]}`)

	items, err := parseItems(body, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0].Index)
	assert.Equal(t, 1, items[1].Index)
}

func TestParseItemsSkipsOutOfRangeAndDuplicates(t *testing.T) {
	body := []byte(`{"results":[{"index":5,"relevance_score":0.9},{"index":1,"relevance_score":0.6},{"index":1,"relevance_score":0.5},{"index":-1,"relevance_score":0.4}]}`)

	items, err := parseItems(body, 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Index)
	assert.InDelta(t, 0.6, items[0].Score, 1e-9)
}

func TestParseItemsErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"非 JSON", `not-json`},
		{"没有结果列表", `{"usage":{"total_tokens":12}}`},
		{"空列表", `{"results":[]}`},
		{"全部下标越界", `{"results":[{"index":9,"relevance_score":0.9}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseItems([]byte(tc.body), 3)
			assert.Error(t, err)
		})
	}
}

func TestEndpoints(t *testing.T) {
	r := NewOpenAIStyleReranker("https://api.example.com/v1", "key", "model", time.Second)
	assert.Equal(t, []string{"https://api.example.com/v1/rerank"}, r.endpoints())

	r = NewOpenAIStyleReranker("https://api.example.com/", "key", "model", time.Second)
	assert.Equal(t, []string{"https://api.example.com/v1/rerank", "https://api.example.com/rerank"}, r.endpoints())
}

func TestEnabled(t *testing.T) {
	assert.True(t, NewOpenAIStyleReranker("https://api.example.com", "key", "model", 0).Enabled())
	assert.False(t, NewOpenAIStyleReranker("", "key", "model", 0).Enabled())
	assert.False(t, NewOpenAIStyleReranker("https://api.example.com", "", "model", 0).Enabled())
	assert.False(t, NewOpenAIStyleReranker("https://api.example.com", "key", "", 0).Enabled())
}
