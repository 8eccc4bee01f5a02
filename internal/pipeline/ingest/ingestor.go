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

// Package ingest 文档入库：目录扫描、切块、嵌入与向量写入。
// Agent 核心只通过 Ingestor 接口在 rebuild-index 时触发重建，
// 然后从刷新后的向量库读取。
package ingest

import (
	"context"
)

// Ingestor 重建索引协作方
type Ingestor interface {
	// RebuildIndex 全量重建向量索引，返回写入的 chunk 条数
	RebuildIndex(ctx context.Context) (int, error)
}

// Func 函数适配器
type Func func(ctx context.Context) (int, error)

// RebuildIndex 实现 Ingestor
func (f Func) RebuildIndex(ctx context.Context) (int, error) {
	return f(ctx)
}
