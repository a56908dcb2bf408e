package obfuscator

import (
	"go.uber.org/zap"

	"metadata-obfuscator/model"
)

// Obfuscator 是混淆器的主结构体，一次运行对应一个实例
type Obfuscator struct {
	project *model.Project

	// 配置选项
	Config *Config

	// 决策账本
	Mapping *ObfuscationMap

	inherit   *InheritMap
	policy    *SkipPolicy
	names     *Allocator
	resources *resourceTypeCache

	logger  *zap.Logger
	metrics *Metrics

	hidden      []*HiddenLiterals
	diagnostics []Diagnostic
	ran         bool
}

// Statistics 存储混淆统计信息
type Statistics struct {
	Modules           int
	TypesRenamed      int
	TypesSkipped      int
	FieldsRenamed     int
	MethodsRenamed    int
	PropertiesRenamed int
	EventsRenamed     int
	MembersSkipped    int
	ResourcesRenamed  int
	StringsHidden     int
	BlobBytes         int
	Diagnostics       int
}
