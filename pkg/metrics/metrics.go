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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，CLI metrics 命令通过 WritePrometheus 暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		TurnDuration, TurnTotal,
		ToolDuration, ToolTotal,
		RetrievalHits, RerankDegradedTotal,
	)
}

// TurnDuration 单轮问答耗时（秒）
var TurnDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "docqa_turn_duration_seconds",
		Help:    "单轮问答耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route"}, // chitchat | needs_retrieval | other
)

// TurnTotal 轮次总数（按结果）
var TurnTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docqa_turn_total",
		Help: "轮次总数（按结果）",
	},
	[]string{"status"}, // ok | failed
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "docqa_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// ToolTotal 工具调用总数（按工具与结果）
var ToolTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docqa_tool_total",
		Help: "工具调用总数（按工具与结果）",
	},
	[]string{"tool", "outcome"}, // ok | error | not_found
)

// RetrievalHits 每次检索返回条数
var RetrievalHits = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "docqa_retrieval_hits",
		Help:    "每次检索最终返回条数",
		Buckets: []float64{0, 1, 2, 4, 8, 16},
	},
)

// RerankDegradedTotal 重排失败降级次数
var RerankDegradedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "docqa_rerank_degraded_total",
		Help: "重排失败降级为向量序的次数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
