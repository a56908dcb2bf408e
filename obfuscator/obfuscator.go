package obfuscator

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"metadata-obfuscator/model"
)

// ErrAlreadyRun 同一个混淆器实例只能运行一次
var ErrAlreadyRun = errors.New("obfuscator already run")

// Option 配置混淆器的可选项
type Option func(*Obfuscator)

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(o *Obfuscator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *Metrics) Option {
	return func(o *Obfuscator) {
		o.metrics = m
	}
}

// New 创建新的混淆器实例，project 必须已经链接
// 配置无效时返回包装 ErrConfiguration 的错误，不会开始任何处理
func New(project *model.Project, config *Config, opts ...Option) (*Obfuscator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	rules, err := compileRules(config.SkipRules)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	alphabet, err := ResolveAlphabet(config.Alphabet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	inherit := NewInheritMap(project)
	o := &Obfuscator{
		project:   project,
		Config:    config,
		Mapping:   NewObfuscationMap(),
		inherit:   inherit,
		policy:    newSkipPolicy(config, rules, inherit),
		names:     NewAllocator(NewNameMaker(alphabet), config.ReuseNames),
		resources: newResourceTypeCache(inherit),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run 依次执行全部阶段
// 只有方法组状态冲突（且配置要求中止）会返回错误，其余问题记录为诊断
func (o *Obfuscator) Run() error {
	if o.ran {
		return ErrAlreadyRun
	}
	o.ran = true

	o.logger.Info("阶段 1/8: 收集标记语言与变更通知类型...")
	o.collectNotifyTypes()
	o.collectMarkupTypes()

	o.logger.Info("阶段 2/8: 重命名字段...")
	o.renameFields()

	o.logger.Info("阶段 3/8: 重命名参数...")
	o.renameParams()

	o.logger.Info("阶段 4/8: 重命名属性...")
	o.renameProperties()

	o.logger.Info("阶段 5/8: 重命名事件...")
	o.renameEvents()

	o.logger.Info("阶段 6/8: 重命名方法...")
	if err := o.renameMethods(); err != nil {
		return fmt.Errorf("重命名方法失败: %w", err)
	}

	o.logger.Info("阶段 7/8: 重命名类型...")
	o.renameTypes()

	o.logger.Info("阶段 8/8: 隐藏字符串字面量...")
	o.hideStrings()

	if o.Config.StripObfuscationAnnotations {
		o.stripObfuscationAnnotations()
	}
	o.collectUnresolvedReferences()

	if o.metrics != nil {
		o.metrics.Record(o)
	}
	o.logger.Info("混淆完成",
		zap.Int("entries", len(o.Mapping.Entries())),
		zap.Int("diagnostics", len(o.diagnostics)))
	return nil
}

// Diagnostics 返回运行中收集的非致命问题
func (o *Obfuscator) Diagnostics() []Diagnostic {
	return o.diagnostics
}

// HiddenLiterals 返回每个完成字面量隐藏的模块结果
func (o *Obfuscator) HiddenLiterals() []*HiddenLiterals {
	return o.hidden
}

// GetStatistics 返回混淆统计信息
func (o *Obfuscator) GetStatistics() *Statistics {
	stats := &Statistics{
		Modules:           len(o.modules()),
		TypesRenamed:      o.Mapping.Count(EntryType, StatusRenamed),
		TypesSkipped:      o.Mapping.Count(EntryType, StatusSkipped),
		FieldsRenamed:     o.Mapping.Count(EntryField, StatusRenamed),
		MethodsRenamed:    o.Mapping.Count(EntryMethod, StatusRenamed),
		PropertiesRenamed: o.Mapping.Count(EntryProperty, StatusRenamed),
		EventsRenamed:     o.Mapping.Count(EntryEvent, StatusRenamed),
		ResourcesRenamed:  o.Mapping.Count(EntryResource, StatusRenamed),
		Diagnostics:       len(o.diagnostics),
	}
	for _, kind := range []EntryKind{EntryField, EntryMethod, EntryProperty, EntryEvent} {
		stats.MembersSkipped += o.Mapping.Count(kind, StatusSkipped)
	}
	for _, h := range o.hidden {
		stats.StringsHidden += len(h.Slots)
		stats.BlobBytes += len(h.Data)
	}
	return stats
}

// modules 返回需要改写的模块（排除仅供解析的外部模块）
func (o *Obfuscator) modules() []*model.Module {
	var out []*model.Module
	for _, m := range o.project.Modules {
		if !m.External {
			out = append(out, m)
		}
	}
	return out
}

// renamableTypes 返回模块中参与成员重命名的类型
func renamableTypes(m *model.Module) []*model.Type {
	var out []*model.Type
	for _, t := range m.AllTypes() {
		if !isSpecialTypeName(t) {
			out = append(out, t)
		}
	}
	return out
}

func inScope(t *model.Type) bool {
	return !t.Module.External
}

// patchReferences 在依赖模块中改写并移除与 match 匹配的待处理引用
func patchReferences(m *model.Module, match func(model.Reference) bool) {
	for _, dep := range m.ReferencedBy {
		dep.RetainReferences(func(ref model.Reference) bool {
			return !match(ref)
		})
	}
}

func (o *Obfuscator) addDiagnostic(kind DiagnosticKind, module, msg string, err error) {
	o.diagnostics = append(o.diagnostics, Diagnostic{Kind: kind, Module: module, Message: msg, Err: err})
}
