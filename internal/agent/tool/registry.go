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

package tool

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"docqa-agent/pkg/errors"
	"docqa-agent/pkg/metrics"
)

// Registry 名称到工具的映射。Register 幂等，同名后注册者覆盖前者。
// 除映射本身外不持有任何跨调用状态。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register 注册工具，同名覆盖
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Has 判断工具是否已注册
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names 返回已注册工具名（字典序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch 查找并执行工具。工具不存在返回 ErrToolNotFound；
// 工具超出截止时间归类为 ErrTimeout；否则原样返回工具的 Output。
func (r *Registry) Dispatch(ctx context.Context, name, input string, tc Context) Output {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		metrics.ToolTotal.WithLabelValues(name, "not_found").Inc()
		return Fail("tool_not_registered: "+name,
			errors.Wrapf(errors.ErrToolNotFound, "tool %s not registered", name))
	}

	start := time.Now()
	out := t.Run(ctx, input, tc)
	metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if out.Err != nil && stderrors.Is(out.Err, context.DeadlineExceeded) {
		out.Err = errors.Wrapf(errors.ErrTimeout, "tool %s: %s", name, out.Err)
	}
	outcome := "ok"
	if out.Err != nil {
		outcome = "error"
	}
	metrics.ToolTotal.WithLabelValues(name, outcome).Inc()
	return out
}
