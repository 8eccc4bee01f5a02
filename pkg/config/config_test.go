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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
agent:
  max_steps: 3
  call_timeout: "10s"
retrieval:
  top_k: 5
  candidate_k: 15
  rerank_enabled: true
log:
  level: "debug"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Agent.MaxStepsOrDefault() != 3 {
		t.Errorf("MaxSteps: got %d", cfg.Agent.MaxStepsOrDefault())
	}
	if cfg.Agent.CallTimeoutOrDefault() != 10*time.Second {
		t.Errorf("CallTimeout: got %v", cfg.Agent.CallTimeoutOrDefault())
	}
	if cfg.Retrieval.TopKOrDefault() != 5 {
		t.Errorf("TopK: got %d", cfg.Retrieval.TopKOrDefault())
	}
	if !cfg.Retrieval.RerankEnabled {
		t.Error("RerankEnabled: expected true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	if got := cfg.Agent.MaxStepsOrDefault(); got != 4 {
		t.Errorf("MaxSteps default: got %d", got)
	}
	if got := cfg.Retrieval.TopKOrDefault(); got != 4 {
		t.Errorf("TopK default: got %d", got)
	}
	if got := cfg.Retrieval.CandidateKOrDefault(); got != 12 {
		t.Errorf("CandidateK default: got %d", got)
	}
	if got := cfg.Retrieval.CitationRetentionOrDefault(); got != 20 {
		t.Errorf("CitationRetention default: got %d", got)
	}
	if got := cfg.Agent.CallTimeoutOrDefault(); got != 30*time.Second {
		t.Errorf("CallTimeout default: got %v", got)
	}
}

func TestConfig_MaxStepsHardCap(t *testing.T) {
	cfg := AgentConfig{MaxSteps: 9}
	if got := cfg.MaxStepsOrDefault(); got != 4 {
		t.Errorf("MaxSteps above cap should clamp to 4, got %d", got)
	}
}

func TestConfig_CandidateKNotBelowTopK(t *testing.T) {
	cfg := RetrievalConfig{TopK: 8, CandidateK: 3}
	if got := cfg.CandidateKOrDefault(); got != 8 {
		t.Errorf("CandidateK should be raised to TopK, got %d", got)
	}
}

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("TEST_DOCQA_KEY", "secret")
	cfg := &Config{}
	cfg.Model.LLM.APIKey = "${TEST_DOCQA_KEY}"
	replaceEnvVars(cfg)
	if cfg.Model.LLM.APIKey != "secret" {
		t.Errorf("APIKey: got %q", cfg.Model.LLM.APIKey)
	}
}
