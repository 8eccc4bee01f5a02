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
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"docqa-agent/pkg/metrics"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	configPath := os.Getenv("DOCQA_CONFIG")

	switch cmd {
	case "version":
		fmt.Println("docqa-agent cli 0.1.0")
	case "config":
		runConfig(configPath)
	case "chat":
		runChat(configPath)
	case "rebuild-index":
		runRebuildIndex(configPath)
	case "metrics":
		if err := metrics.WritePrometheus(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "导出指标失败: %v\n", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: docqa <command>")
	fmt.Println("  chat            - 交互式问答（会话命令: reset / list-tools / memory-summary / rebuild-index / exit）")
	fmt.Println("  rebuild-index   - 重建知识库向量索引后退出")
	fmt.Println("  config          - 显示配置概要")
	fmt.Println("  metrics         - 输出 Prometheus 文本格式指标")
	fmt.Println("  version         - 显示版本")
	fmt.Println("配置文件路径取自环境变量 DOCQA_CONFIG，默认 configs/cli.yaml")
}

func runConfig(configPath string) {
	a, err := buildApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	defer a.close(context.Background())

	fmt.Printf("agent.max_steps=%d\n", a.cfg.Agent.MaxStepsOrDefault())
	fmt.Printf("agent.call_timeout=%s\n", a.cfg.Agent.CallTimeoutOrDefault())
	fmt.Printf("retrieval.top_k=%d\n", a.cfg.Retrieval.TopKOrDefault())
	fmt.Printf("retrieval.candidate_k=%d\n", a.cfg.Retrieval.CandidateKOrDefault())
	fmt.Printf("retrieval.rerank_enabled=%t\n", a.cfg.Retrieval.RerankEnabled)
	fmt.Printf("knowledge.raw_data_dir=%s\n", a.cfg.Knowledge.RawDataDir)
	fmt.Printf("knowledge.index_name=%s\n", a.cfg.Knowledge.IndexNameOrDefault())
	fmt.Printf("model.llm=%s\n", a.cfg.Model.LLM.Model)
	fmt.Printf("model.embedding=%s\n", a.cfg.Model.Embedding.Model)
}

func runRebuildIndex(configPath string) {
	a, err := buildApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer a.close(ctx)

	count, err := a.sess.RebuildIndex(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "重建索引失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("索引重建完成，共写入 %d 个切片\n", count)
}

func runChat(configPath string) {
	a, err := buildApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer a.close(ctx)

	// 向量库在进程内存中，进入会话前先建索引
	if a.cfg.Knowledge.RawDataDir != "" {
		if count, err := a.sess.RebuildIndex(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "构建索引失败（检索不可用）: %v\n", err)
		} else {
			fmt.Printf("知识库就绪，%d 个切片\n", count)
		}
	}

	fmt.Printf("session %s，输入 exit 退出\n", a.sess.ID)
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if out, handled, err := a.sess.HandleCommand(ctx, input); handled {
			if err != nil {
				fmt.Fprintf(os.Stderr, "命令失败: %v\n", err)
				continue
			}
			fmt.Println(out)
			continue
		}

		result, err := a.sess.Ask(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "本轮失败: %v\n", err)
			continue
		}
		fmt.Println(result.Answer)
		for i, c := range result.Citations {
			fmt.Printf("  [ref:%d] %s page=%d score=%.4f\n", i+1, c.Source, c.Page, c.Score)
		}
	}
}
