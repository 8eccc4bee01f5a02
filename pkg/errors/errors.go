// Package errors 提供统一错误辅助与 Agent 错误分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 通用哨兵错误
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// Agent 错误分类：调用方用 errors.Is 判别，传播策略见各组件
var (
	// ErrRouterParse Router 分类结果不可解析（恢复为默认标签 other）
	ErrRouterParse = errors.New("router parse error")
	// ErrToolNotFound 计划步骤引用了未注册工具（跳过该步，记入 Trace）
	ErrToolNotFound = errors.New("tool not found")
	// ErrRetrieval Embedding 或向量库不可用（整轮失败）
	ErrRetrieval = errors.New("retrieval error")
	// ErrUnsafeExpression 表达式含允许集合之外的语法
	ErrUnsafeExpression = errors.New("unsafe expression")
	// ErrUnknownVariable 标识符无法从记忆或检索文本解析
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrDivisionByZero 运行时除零
	ErrDivisionByZero = errors.New("division by zero")
	// ErrBudgetDataMissing 可比较的预算年份不足两个
	ErrBudgetDataMissing = errors.New("budget data missing")
	// ErrTimeout 外部调用超时（按所属操作的失败路径传播）
	ErrTimeout = errors.New("timeout")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// TurnFatal 判断错误是否应终止整轮（仅检索不可用为致命）
func TurnFatal(err error) bool {
	return errors.Is(err, ErrRetrieval)
}
