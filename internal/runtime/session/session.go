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

// Package session 把 Executor、Memory 与会话命令聚合成
// 一个可被 CLI/UI 驱动的会话。
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docqa-agent/internal/agent/executor"
	"docqa-agent/internal/pipeline/ingest"
	"docqa-agent/pkg/errors"
	"docqa-agent/pkg/log"
)

// Session 一个对话会话。单会话内严格串行。
type Session struct {
	ID       string
	exec     *executor.Executor
	ingestor ingest.Ingestor
	logger   *log.Logger
}

// New 创建会话；ingestor 为 nil 时 rebuild-index 不可用
func New(exec *executor.Executor, ingestor ingest.Ingestor, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Session{
		ID:       uuid.New().String(),
		exec:     exec,
		ingestor: ingestor,
		logger:   logger,
	}
	exec.SetSessionID(s.ID)
	return s
}

// Ask 执行一轮问答
func (s *Session) Ask(ctx context.Context, question string) (*executor.Result, error) {
	return s.exec.RunTurn(ctx, question)
}

// Reset 清空会话 Memory
func (s *Session) Reset() {
	s.exec.Memory().Reset()
	s.logger.Info("session memory reset", "session_id", s.ID)
}

// ListTools 返回已注册工具名
func (s *Session) ListTools() []string {
	return s.exec.Registry().Names()
}

// MemorySummary 返回 Memory 只读摘要
func (s *Session) MemorySummary() string {
	return s.exec.Memory().Summary()
}

// RebuildIndex 触发外部摄取器重建索引，返回写入的切片数
func (s *Session) RebuildIndex(ctx context.Context) (int, error) {
	if s.ingestor == nil {
		return 0, errors.Wrap(errors.ErrNotFound, "no ingestor configured")
	}
	return s.ingestor.RebuildIndex(ctx)
}

// HandleCommand 处理会话命令行。返回 handled=false 表示
// 输入不是命令，应按普通问题走 Ask。exit 由调用方处理。
func (s *Session) HandleCommand(ctx context.Context, line string) (output string, handled bool, err error) {
	switch strings.TrimSpace(line) {
	case "reset":
		s.Reset()
		return "memory cleared", true, nil
	case "list-tools":
		return strings.Join(s.ListTools(), "\n"), true, nil
	case "memory-summary":
		return s.MemorySummary(), true, nil
	case "rebuild-index":
		count, err := s.RebuildIndex(ctx)
		if err != nil {
			return "", true, err
		}
		return fmt.Sprintf("index rebuilt, %d chunks", count), true, nil
	}
	return "", false, nil
}
