package contract

import "errors"

// 最小错误分类（供 diag.Classify 与调用方 errors.Is 判定）。
var (
	// ErrInvalidInput: 调用参数非法（例如空策略、未知阶段）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidLabel: 计数器 group/label 含逗号。
	ErrInvalidLabel = errors.New("invalid counter label")
	// ErrMissingState: 上下文中缺少驱动所需的状态（例如 Delimiters、Group）。
	ErrMissingState = errors.New("missing context state")
	// ErrUnknownStrategy: 注册表中不存在该名称的策略。
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrHook: 用户钩子（setup/map/reduce/cleanup）返回错误。
	ErrHook = errors.New("hook failed")
	// ErrIO: 读取输入或写出记录失败。
	ErrIO = errors.New("stream io")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
