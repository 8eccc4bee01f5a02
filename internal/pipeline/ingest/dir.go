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

package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"docqa-agent/internal/model/embedding"
	"docqa-agent/internal/storage/vector"
	"docqa-agent/pkg/log"
)

// 支持的知识库文件后缀；PDF 等富格式需预先转换为纯文本
var supportedSuffixes = map[string]bool{
	".txt": true,
	".md":  true,
}

// DirIngestor 扫描目录、切片、嵌入并重建向量索引
type DirIngestor struct {
	embedder embedding.Embedder
	store    vector.Store
	logger   *log.Logger

	rawDataDir string
	indexName  string
	dimension  int
	chunkSize  int
	overlap    int
	batchSize  int
}

// DirOptions DirIngestor 配置
type DirOptions struct {
	RawDataDir   string
	IndexName    string
	Dimension    int
	ChunkSize    int
	ChunkOverlap int
	// BatchSize 每批嵌入的切片数，<=0 默认 16
	BatchSize int
}

// NewDirIngestor 创建目录摄取器
func NewDirIngestor(embedder embedding.Embedder, store vector.Store, logger *log.Logger, opts DirOptions) *DirIngestor {
	if logger == nil {
		logger = log.Nop()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	return &DirIngestor{
		embedder:   embedder,
		store:      store,
		logger:     logger,
		rawDataDir: opts.RawDataDir,
		indexName:  opts.IndexName,
		dimension:  opts.Dimension,
		chunkSize:  opts.ChunkSize,
		overlap:    opts.ChunkOverlap,
		batchSize:  batchSize,
	}
}

type chunkRecord struct {
	text   string
	source string
	page   int
}

// RebuildIndex 重建索引：删除旧索引、重新扫描目录并写入全部切片。
// 返回写入的切片数。
func (d *DirIngestor) RebuildIndex(ctx context.Context) (int, error) {
	records, err := d.buildChunks()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		d.logger.Warn("no knowledge files found", "dir", d.rawDataDir)
	}

	if err := d.store.DeleteIndex(ctx, d.indexName); err != nil {
		d.logger.Warn("delete index failed, continuing", "index", d.indexName, "error", err)
	}
	if err := d.store.Create(ctx, &vector.Index{Name: d.indexName, Dimension: d.dimension, Distance: "cosine"}); err != nil {
		return 0, fmt.Errorf("创建索引失败: %w", err)
	}

	total := 0
	for start := 0; start < len(records); start += d.batchSize {
		end := start + d.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, 0, len(batch))
		for _, r := range batch {
			texts = append(texts, r.text)
		}
		embeddings, err := d.embedder.Embed(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("嵌入失败: %w", err)
		}
		if len(embeddings) != len(batch) {
			return total, fmt.Errorf("嵌入结果数量不符: got %d want %d", len(embeddings), len(batch))
		}

		vectors := make([]*vector.Vector, 0, len(batch))
		for i, r := range batch {
			vectors = append(vectors, &vector.Vector{
				ID:     uuid.New().String(),
				Values: embeddings[i],
				Metadata: map[string]string{
					"text":   r.text,
					"source": r.source,
					"page":   strconv.Itoa(r.page),
				},
			})
		}
		if err := d.store.Add(ctx, d.indexName, vectors); err != nil {
			return total, fmt.Errorf("写入向量失败: %w", err)
		}
		total += len(batch)
	}

	d.logger.Info("index rebuilt", "index", d.indexName, "chunks", total)
	return total, nil
}

// buildChunks 扫描目录并把每个文件切成 chunkRecord。
// 页码为文件内切片序号（纯文本没有真实页）。
func (d *DirIngestor) buildChunks() ([]chunkRecord, error) {
	files, err := d.discoverFiles()
	if err != nil {
		return nil, err
	}

	var records []chunkRecord
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取文件失败 %s: %w", path, err)
		}
		source := filepath.Base(path)
		for i, piece := range SplitText(string(data), d.chunkSize, d.overlap) {
			records = append(records, chunkRecord{text: piece, source: source, page: i + 1})
		}
	}
	return records, nil
}

func (d *DirIngestor) discoverFiles() ([]string, error) {
	info, err := os.Stat(d.rawDataDir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(d.rawDataDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if supportedSuffixes[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("扫描目录失败 %s: %w", d.rawDataDir, err)
	}
	sort.Strings(files)
	return files, nil
}
