package model

import (
	"fmt"
	"strings"
)

// TypeKey 类型的结构化标识
// 链接时由原始名称计算，之后重命名不会改变它
type TypeKey struct {
	Scope     string // 定义所在模块
	Namespace string
	Name      string // 嵌套类型形如 "Outer/Inner"
}

// FullName 返回 "Namespace.Name"
func (k TypeKey) FullName() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "." + k.Name
}

func (k TypeKey) String() string {
	return "[" + k.Scope + "]" + k.FullName()
}

// FieldKey 字段的结构化标识
type FieldKey struct {
	Type      TypeKey
	Name      string
	FieldType string
}

func (k FieldKey) String() string {
	return fmt.Sprintf("%s::%s[%s]", k.Type, k.Name, k.FieldType)
}

// MethodKey 方法的结构化标识，Signature 包含返回值、参数类型与泛型元数
type MethodKey struct {
	Type      TypeKey
	Name      string
	Signature string
}

func (k MethodKey) String() string {
	return k.Type.String() + "::" + k.Name + k.Signature
}

// PropertyKey 属性的结构化标识
type PropertyKey struct {
	Type         TypeKey
	Name         string
	PropertyType string
}

func (k PropertyKey) String() string {
	return fmt.Sprintf("%s::%s[%s]", k.Type, k.Name, k.PropertyType)
}

// EventKey 事件的结构化标识
type EventKey struct {
	Type      TypeKey
	Name      string
	EventType string
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s::%s[%s]", k.Type, k.Name, k.EventType)
}

const voidTypeName = "System.Void"

// signature 组合方法签名："Ret(P1,P2)`arity"
func signature(ret *TypeReference, params []*TypeReference, arity int) string {
	var sb strings.Builder
	if ret == nil {
		sb.WriteString(voidTypeName)
	} else {
		sb.WriteString(ret.SignatureName())
	}
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.SignatureName())
	}
	sb.WriteByte(')')
	if arity > 0 {
		fmt.Fprintf(&sb, "`%d", arity)
	}
	return sb.String()
}

// splitFullName 按最后一个点拆分命名空间与名称
func splitFullName(fullName string) (string, string) {
	if i := strings.LastIndexByte(fullName, '.'); i >= 0 {
		return fullName[:i], fullName[i+1:]
	}
	return "", fullName
}
