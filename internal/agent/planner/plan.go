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

package planner

// Step 计划中的一步：工具名、输入与规划理由
type Step struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// Plan 一轮的工具执行计划，长度 0..4
type Plan []Step

// HasTool 判断计划中是否包含指定工具
func (p Plan) HasTool(name string) bool {
	for _, step := range p {
		if step.Tool == name {
			return true
		}
	}
	return false
}
