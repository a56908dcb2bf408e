package obfuscator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration 配置无效，运行不会开始
	ErrConfiguration = errors.New("configuration error")
	// ErrInconsistentGroupState 同一组内成员的决策不一致
	ErrInconsistentGroupState = errors.New("inconsistent group state")
	// ErrUnresolvedReference 引用的键无法解析到存在的符号（非致命）
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrTransformUnavailable 模块缺少字面量隐藏所需的前置类型（非致命）
	ErrTransformUnavailable = errors.New("transform unavailable")
)

// 配置校验的具体原因，均包装在 ErrConfiguration 中
var (
	ErrInvalidAlphabet       = errors.New("alphabet must contain at least two distinct characters")
	ErrInvalidRuleKind       = errors.New("unknown skip rule kind")
	ErrRuleWithoutMatcher    = errors.New("skip rule needs exactly one of name, rx or glob")
	ErrInvalidRulePattern    = errors.New("invalid skip rule pattern")
	ErrInvalidWorkerCount    = errors.New("literal_workers must be non-negative")
	ErrInvalidNotifyContract = errors.New("notify contract must be a non-empty type name")
)

// GroupMemberState 冲突组中一个成员的状态
type GroupMemberState struct {
	Key    string
	Status Status
	Text   string
}

// InconsistentGroupError 描述一个状态冲突的方法组
type InconsistentGroupError struct {
	Members []GroupMemberState
}

func (e *InconsistentGroupError) Error() string {
	var sb strings.Builder
	sb.WriteString("Inconsistent virtual method obfuscation state detected. Abort. Please review the following methods,")
	for _, m := range e.Members {
		fmt.Fprintf(&sb, "\n%s->%s:%s", m.Key, m.Status, m.Text)
	}
	return sb.String()
}

func (e *InconsistentGroupError) Unwrap() error {
	return ErrInconsistentGroupState
}

// DiagnosticKind 非致命诊断的种类
type DiagnosticKind int

const (
	DiagnosticUnresolvedReference DiagnosticKind = iota
	DiagnosticTransformUnavailable
	DiagnosticRecoveredInconsistency
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticUnresolvedReference:
		return "unresolved-reference"
	case DiagnosticTransformUnavailable:
		return "transform-unavailable"
	case DiagnosticRecoveredInconsistency:
		return "recovered-inconsistency"
	}
	return "unknown"
}

// Diagnostic 运行中收集的非致命问题
type Diagnostic struct {
	Kind    DiagnosticKind
	Module  string
	Message string
	Err     error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Kind, d.Module, d.Message)
}
