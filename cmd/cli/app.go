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

package main

import (
	"context"
	"fmt"

	"docqa-agent/internal/agent/executor"
	"docqa-agent/internal/agent/memory"
	"docqa-agent/internal/agent/planner"
	"docqa-agent/internal/agent/router"
	"docqa-agent/internal/agent/synthesize"
	"docqa-agent/internal/agent/tool"
	"docqa-agent/internal/agent/tool/builtin"
	"docqa-agent/internal/model/embedding"
	"docqa-agent/internal/model/llm"
	"docqa-agent/internal/model/rerank"
	"docqa-agent/internal/pipeline/ingest"
	"docqa-agent/internal/pipeline/query"
	"docqa-agent/internal/runtime/session"
	"docqa-agent/internal/storage/cache"
	"docqa-agent/internal/storage/vector"
	"docqa-agent/pkg/config"
	"docqa-agent/pkg/log"
	"docqa-agent/pkg/tracing"
)

// app CLI 运行时：配置、日志与装配好的会话
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	sess    *session.Session
	cleanup []func(context.Context) error
}

// buildApp 从配置装配整条链路：
// 模型客户端 → 检索管线 → 工具注册表 → 执行器 → 会话
func buildApp(configPath string) (*app, error) {
	var cfg *config.Config
	var err error
	if configPath == "" {
		cfg, err = config.LoadCLIConfig()
	} else {
		cfg, err = config.LoadConfig(configPath)
	}
	if err != nil {
		return nil, err
	}

	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ExportEndpoint: cfg.Tracing.ExportEndpoint,
			Insecure:       cfg.Tracing.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 tracing 失败: %w", err)
		}
		a.cleanup = append(a.cleanup, tp.Shutdown)
	}

	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	embedCache, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}
	a.cleanup = append(a.cleanup, func(context.Context) error { return embedCache.Close() })

	embedder := embedding.NewOpenAIEmbedder(
		cfg.Model.Embedding.Model,
		cfg.Model.Embedding.APIKey,
		cfg.Model.Embedding.BaseURL,
		cfg.Knowledge.DimensionOrDefault(),
		cfg.Model.Embedding.TimeoutOrDefault(),
	)

	var reranker rerank.Reranker
	if cfg.Retrieval.RerankEnabled {
		reranker = rerank.NewOpenAIStyleReranker(
			cfg.Model.Rerank.BaseURL,
			cfg.Model.Rerank.APIKey,
			cfg.Model.Rerank.Model,
			cfg.Model.Rerank.TimeoutOrDefault(),
		)
	}

	store := vector.NewMemoryStore()
	a.cleanup = append(a.cleanup, func(context.Context) error { return store.Close() })

	retriever := query.NewRetriever(embedder, store, reranker, query.Options{
		IndexName:     cfg.Knowledge.IndexNameOrDefault(),
		TopK:          cfg.Retrieval.TopKOrDefault(),
		CandidateK:    cfg.Retrieval.CandidateKOrDefault(),
		RerankEnabled: cfg.Retrieval.RerankEnabled,
		EmbedCache:    embedCache,
		CacheTTL:      cfg.Cache.TTLOrDefault(),
		Logger:        logger,
	})

	registry := tool.NewRegistry()
	registry.Register(builtin.NewRetrieveTool(retriever.Retrieve))
	registry.Register(builtin.NewCalculateTool())
	registry.Register(builtin.NewBudgetAnalystTool())

	mem := memory.New(cfg.Retrieval.CitationRetentionOrDefault())
	exec := executor.New(
		router.New(llmClient, logger),
		planner.New(llmClient, logger, planner.Options{MaxSteps: cfg.Agent.MaxStepsOrDefault()}),
		registry,
		synthesize.NewLLM(llmClient, logger),
		mem,
		logger,
		executor.Options{StepTimeout: cfg.Agent.CallTimeoutOrDefault()},
	)

	ingestor := ingest.NewDirIngestor(embedder, store, logger, ingest.DirOptions{
		RawDataDir:   cfg.Knowledge.RawDataDir,
		IndexName:    cfg.Knowledge.IndexNameOrDefault(),
		Dimension:    cfg.Knowledge.DimensionOrDefault(),
		ChunkSize:    cfg.Knowledge.ChunkSizeOrDefault(),
		ChunkOverlap: cfg.Knowledge.ChunkOverlapOrDefault(),
	})

	a.sess = session.New(exec, ingestor, logger)
	return a, nil
}

func buildLLMClient(cfg *config.Config) (llm.Client, error) {
	client, err := llm.NewOpenAIClient(
		cfg.Model.LLM.Model,
		cfg.Model.LLM.APIKey,
		cfg.Model.LLM.BaseURL,
		cfg.Model.LLM.TimeoutOrDefault(),
	)
	if err != nil {
		return nil, fmt.Errorf("初始化 LLM 客户端失败: %w", err)
	}

	limiter := llm.NewRateLimiter(llm.LimitConfig{
		RequestsPerMinute: cfg.Model.RateLimit.RequestsPerMinute,
		MaxConcurrent:     cfg.Model.RateLimit.MaxConcurrent,
	})
	return llm.NewRateLimitedClient(client, limiter), nil
}

// close 释放 tracing、缓存等资源
func (a *app) close(ctx context.Context) {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](ctx); err != nil {
			a.logger.Warn("cleanup failed", "error", err)
		}
	}
}
