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

package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// LimitConfig LLM 调用限流配置
type LimitConfig struct {
	RequestsPerMinute float64 // 每分钟请求数，<=0 不限
	MaxConcurrent     int     // 最大并发请求数，<=0 默认 4
}

// RateLimiter RPS + 并发两级限流
type RateLimiter struct {
	requestLimiter *rate.Limiter
	semaphore      chan struct{}
}

// NewRateLimiter 创建限流器
func NewRateLimiter(cfg LimitConfig) *RateLimiter {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		rps := cfg.RequestsPerMinute / 60.0
		burst := int(cfg.RequestsPerMinute / 10)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &RateLimiter{
		requestLimiter: limiter,
		semaphore:      make(chan struct{}, maxConcurrent),
	}
}

// Wait 等待获得调用许可；ctx 取消/超时则返回对应错误
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.requestLimiter != nil {
		if err := r.requestLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	select {
	case r.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 释放并发名额
func (r *RateLimiter) Release() {
	select {
	case <-r.semaphore:
	default:
	}
}
