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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Model     ModelConfig     `mapstructure:"model"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
}

// AgentConfig Agent 执行相关配置
type AgentConfig struct {
	MaxSteps    int    `mapstructure:"max_steps"`    // 单轮计划步数上限，<=0 或 >4 使用 4
	CallTimeout string `mapstructure:"call_timeout"` // 单次外部调用超时，如 "30s"，空则默认 30s
}

// MaxStepsOrDefault 返回计划步数硬上限（不超过 4）
func (a AgentConfig) MaxStepsOrDefault() int {
	if a.MaxSteps <= 0 || a.MaxSteps > 4 {
		return 4
	}
	return a.MaxSteps
}

// CallTimeoutOrDefault 解析单次外部调用超时
func (a AgentConfig) CallTimeoutOrDefault() time.Duration {
	if a.CallTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(a.CallTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK              int  `mapstructure:"top_k"`              // 最终返回条数，<=0 默认 4
	CandidateK        int  `mapstructure:"candidate_k"`        // 候选集大小，<=0 默认 12
	RerankEnabled     bool `mapstructure:"rerank_enabled"`     // 是否启用重排
	CitationRetention int  `mapstructure:"citation_retention"` // Memory 中引用保留条数，<=0 默认 20
}

// TopKOrDefault 返回 TopK
func (r RetrievalConfig) TopKOrDefault() int {
	if r.TopK <= 0 {
		return 4
	}
	return r.TopK
}

// CandidateKOrDefault 返回 CandidateK（不小于 TopK）
func (r RetrievalConfig) CandidateKOrDefault() int {
	k := r.CandidateK
	if k <= 0 {
		k = 12
	}
	if topK := r.TopKOrDefault(); k < topK {
		k = topK
	}
	return k
}

// CitationRetentionOrDefault 返回引用保留条数
func (r RetrievalConfig) CitationRetentionOrDefault() int {
	if r.CitationRetention <= 0 {
		return 20
	}
	return r.CitationRetention
}

// ModelConfig 模型服务配置（LLM / Embedding / Rerank 三类外部服务）
type ModelConfig struct {
	LLM       EndpointConfig  `mapstructure:"llm"`
	Embedding EndpointConfig  `mapstructure:"embedding"`
	Rerank    EndpointConfig  `mapstructure:"rerank"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// EndpointConfig 单个 OpenAI 兼容服务端点
type EndpointConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"` // 支持 ${ENV_VAR} 形式
	Model   string `mapstructure:"model"`
	Timeout string `mapstructure:"timeout"` // 如 "30s"，空则默认 30s
}

// TimeoutOrDefault 解析端点超时
func (e EndpointConfig) TimeoutOrDefault() time.Duration {
	if e.Timeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RateLimitConfig LLM 调用限流配置
type RateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"` // <=0 不限
	MaxConcurrent     int     `mapstructure:"max_concurrent"`     // <=0 默认 4
}

// CacheConfig 缓存配置（embedding 查询缓存）
type CacheConfig struct {
	Type string `mapstructure:"type"` // memory | redis
	Addr string `mapstructure:"addr"` // redis 地址，type=redis 时必填
	TTL  string `mapstructure:"ttl"`  // 缓存过期时间，如 "1h"，空则默认 1h
}

// TTLOrDefault 解析缓存 TTL
func (c CacheConfig) TTLOrDefault() time.Duration {
	if c.TTL == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig OpenTelemetry 导出配置
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// KnowledgeConfig 知识库目录（rebuild-index 时交给外部 Ingestor）
type KnowledgeConfig struct {
	RawDataDir   string `mapstructure:"raw_data_dir"`
	IndexName    string `mapstructure:"index_name"`
	Dimension    int    `mapstructure:"dimension"`     // 向量维度，<=0 默认 1536
	ChunkSize    int    `mapstructure:"chunk_size"`    // 切片长度（字符数），<=0 默认 400
	ChunkOverlap int    `mapstructure:"chunk_overlap"` // 切片重叠，<=0 默认 80
}

// ChunkSizeOrDefault 返回切片长度
func (k KnowledgeConfig) ChunkSizeOrDefault() int {
	if k.ChunkSize <= 0 {
		return 400
	}
	return k.ChunkSize
}

// ChunkOverlapOrDefault 返回切片重叠（恒小于切片长度）
func (k KnowledgeConfig) ChunkOverlapOrDefault() int {
	overlap := k.ChunkOverlap
	if overlap <= 0 {
		overlap = 80
	}
	if size := k.ChunkSizeOrDefault(); overlap >= size {
		overlap = size - 1
	}
	return overlap
}

// DimensionOrDefault 返回向量维度
func (k KnowledgeConfig) DimensionOrDefault() int {
	if k.Dimension <= 0 {
		return 1536
	}
	return k.Dimension
}

// IndexNameOrDefault 返回索引名
func (k KnowledgeConfig) IndexNameOrDefault() string {
	if k.IndexName == "" {
		return "doc_chunks"
	}
	return k.IndexName
}

// LoadConfig 从指定路径加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadCLIConfig 加载 CLI 默认配置（configs/cli.yaml）
func LoadCLIConfig() (*Config, error) {
	return LoadConfig("configs/cli.yaml")
}

// replaceEnvVars 将 ${ENV_VAR} 形式的 API Key 替换为环境变量值
func replaceEnvVars(config *Config) {
	for _, ep := range []*EndpointConfig{
		&config.Model.LLM, &config.Model.Embedding, &config.Model.Rerank,
	} {
		if strings.HasPrefix(ep.APIKey, "$") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(ep.APIKey, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				ep.APIKey = val
			}
		}
	}
}
