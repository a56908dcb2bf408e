package model

import "strings"

// AnnotationKind 注解种类，构建模型时解析一次
type AnnotationKind int

const (
	AnnotationOther AnnotationKind = iota
	AnnotationObfuscation
	AnnotationGeneratedCode
	AnnotationSerializable
)

// 已识别的注解类型名
const (
	ObfuscationAttribute   = "System.Reflection.ObfuscationAttribute"
	ObfuscateAttribute     = "Obfuscar.ObfuscateAttribute"
	GeneratedCodeAttribute = "System.CodeDom.Compiler.GeneratedCodeAttribute"
	SerializableAttribute  = "System.SerializableAttribute"
)

// 混淆注解的 Feature 取值
const (
	FeatureAll          = "all"
	FeatureRenaming     = "renaming"
	FeatureStringHiding = "string hiding"
)

// Annotation 附加在类型、成员或参数上的注解
type Annotation struct {
	Kind     AnnotationKind
	TypeName string

	// 混淆注解
	Exclude               bool
	ApplyToMembers        bool
	StripAfterObfuscation bool
	Feature               string

	// 生成代码注解
	Tool string
}

// ParseAnnotation 根据注解类型名和命名参数构造注解
func ParseAnnotation(typeName string, args map[string]any) Annotation {
	a := Annotation{Kind: AnnotationOther, TypeName: typeName}
	switch typeName {
	case ObfuscationAttribute:
		a.Kind = AnnotationObfuscation
		a.Exclude = boolArg(args, "Exclude", true)
		a.ApplyToMembers = boolArg(args, "ApplyToMembers", true)
		a.StripAfterObfuscation = boolArg(args, "StripAfterObfuscation", true)
		a.Feature = stringArg(args, "Feature", FeatureAll)
	case ObfuscateAttribute:
		a.Kind = AnnotationObfuscation
		a.Exclude = !boolArg(args, "ShouldObfuscate", true)
		a.ApplyToMembers = true
		a.StripAfterObfuscation = true
		a.Feature = FeatureAll
	case GeneratedCodeAttribute:
		a.Kind = AnnotationGeneratedCode
		a.Tool = stringArg(args, "Tool", "")
	case SerializableAttribute:
		a.Kind = AnnotationSerializable
	}
	return a
}

// AppliesTo 混淆注解是否作用于给定功能
func (a Annotation) AppliesTo(feature string) bool {
	if a.Kind != AnnotationObfuscation {
		return false
	}
	f := strings.ToLower(strings.TrimSpace(a.Feature))
	return f == "" || f == FeatureAll || f == feature
}

func boolArg(args map[string]any, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

func stringArg(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return def
}
