package agent

import "errors"

var (
	// ErrBusy 同一作用域已有推理循环在执行
	ErrBusy = errors.New("agent is busy")

	// ErrReasonerNotSet 推理后端未设置
	ErrReasonerNotSet = errors.New("reasoner not set")

	// ErrMaxIterations 达到最大迭代次数仍未得到最终答案
	ErrMaxIterations = errors.New("max iterations reached")

	// ErrEmptyAction 推理后端既未返回工具调用也未返回最终答案
	ErrEmptyAction = errors.New("reasoner returned neither a tool call nor a final answer")
)
