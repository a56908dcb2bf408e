package obfuscator

import "metadata-obfuscator/model"

// SkipPolicy 判断符号是否保留原名
// 顺序：分类开关、特殊名称、显式注解、MarkedOnly、配置规则、结构性启发、默认重命名
type SkipPolicy struct {
	cfg     *Config
	rules   *ruleSet
	inherit *InheritMap

	markup map[string]struct{} // 标记语言引用的类型原始全名
	notify map[string]string   // 变更通知相关类型原始全名 -> 契约名
}

func newSkipPolicy(cfg *Config, rules *ruleSet, inherit *InheritMap) *SkipPolicy {
	return &SkipPolicy{
		cfg:     cfg,
		rules:   rules,
		inherit: inherit,
		markup:  make(map[string]struct{}),
		notify:  make(map[string]string),
	}
}

// inMarkup 类型是否被标记语言引用
func (p *SkipPolicy) inMarkup(t *model.Type) bool {
	_, ok := p.markup[t.Key().FullName()]
	return ok
}

// notifyContract 类型相关的变更通知契约，无关时返回空串
func (p *SkipPolicy) notifyContract(t *model.Type) string {
	return p.notify[t.Key().FullName()]
}

// markedToRename 解析显式注解：先看符号自身，再沿外层类型链向上
// ok 为 false 表示没有适用的注解
func markedToRename(annotations []model.Annotation, parent *model.Type, feature string) (rename, ok bool) {
	fromMember := false
	for {
		for _, a := range annotations {
			if !a.AppliesTo(feature) {
				continue
			}
			rename = !a.Exclude
			if fromMember && !a.ApplyToMembers {
				return !rename, true
			}
			return rename, true
		}
		if parent == nil {
			return false, false
		}
		annotations, parent, fromMember = parent.Annotations, parent.DeclaringType, true
	}
}

// explicit 返回显式注解的决定；decided 为 false 时继续后续检查
func (p *SkipPolicy) explicit(annotations []model.Annotation, parent *model.Type) (skip, decided bool, reason string) {
	rename, ok := markedToRename(annotations, parent, model.FeatureRenaming)
	if !ok {
		return false, false, ""
	}
	if rename {
		return false, true, ""
	}
	return true, true, "obfuscation annotation"
}

// visibility 按配置的公开 API 选项判断
func (p *SkipPolicy) visibility(public bool) (bool, string) {
	if public && p.cfg.KeepPublicApi {
		return true, "KeepPublicApi option in configuration"
	}
	if !public && !p.cfg.HidePrivateApi {
		return true, "HidePrivateApi option in configuration"
	}
	return false, ""
}

// ShouldSkipType 类型是否保留原名
func (p *SkipPolicy) ShouldSkipType(t *model.Type) (bool, string) {
	if !p.cfg.RenameTypes {
		return true, "type renaming disabled in configuration"
	}
	if isSpecialTypeName(t) {
		return true, "special name"
	}
	if skip, decided, reason := p.explicit(t.Annotations, t.DeclaringType); decided {
		return skip, reason
	}
	if p.cfg.MarkedOnly {
		return true, "MarkedOnly option in configuration"
	}
	if skip, reason := p.rules.matchType(t); skip {
		return true, reason
	}
	if p.inMarkup(t) {
		return true, "referenced from markup"
	}
	return p.visibility(t.IsVisible())
}

// ShouldSkipField 字段是否保留原名
func (p *SkipPolicy) ShouldSkipField(f *model.Field) (bool, string) {
	if !p.cfg.RenameFields {
		return true, "field renaming disabled in configuration"
	}
	if f.RuntimeSpecialName {
		return true, "special name"
	}
	t := f.DeclaringType
	if skip, decided, reason := p.explicit(f.Annotations, t); decided {
		return skip, reason
	}
	if p.cfg.MarkedOnly {
		return true, "MarkedOnly option in configuration"
	}
	if skip, reason := p.rules.matchMember(RuleField, t, f.Key().Name); skip {
		return true, reason
	}
	public := f.Visibility.IsVisible() && t.IsVisible()
	if isSerializable(t) {
		return true, "declaring type is Serializable"
	}
	if public && p.inMarkup(t) {
		return true, "referenced from markup"
	}
	return p.visibility(public)
}

// ShouldSkipMethod 方法是否保留原名
func (p *SkipPolicy) ShouldSkipMethod(m *model.Method) (bool, string) {
	if !p.cfg.RenameMethods {
		return true, "method renaming disabled in configuration"
	}
	if m.IsConstructor() || m.RuntimeSpecialName {
		return true, "special name"
	}
	t := m.DeclaringType
	if skip, decided, reason := p.explicit(m.Annotations, t); decided {
		return skip, reason
	}
	if p.cfg.MarkedOnly {
		return true, "MarkedOnly option in configuration"
	}
	if skip, reason := p.rules.matchMember(RuleMethod, t, m.Key().Name); skip {
		return true, reason
	}
	public := m.Visibility.IsVisible() && t.IsVisible()
	if public && p.inMarkup(t) {
		return true, "referenced from markup"
	}
	return p.visibility(public)
}

// ShouldSkipProperty 属性是否保留原名
func (p *SkipPolicy) ShouldSkipProperty(prop *model.Property) (bool, string) {
	if !p.cfg.RenameProperties {
		return true, "property renaming disabled in configuration"
	}
	t := prop.DeclaringType
	if skip, decided, reason := p.explicit(prop.Annotations, t); decided {
		return skip, reason
	}
	if p.cfg.MarkedOnly {
		return true, "MarkedOnly option in configuration"
	}
	if skip, reason := p.rules.matchMember(RuleProperty, t, prop.Key().Name); skip {
		return true, reason
	}

	// 绑定按属性自身的可见性查找，不看外层类型
	if anyVisible(prop.Accessors()) {
		if contract := p.notifyContract(t); contract != "" {
			return true, "declaring type related to " + contract
		}
		if p.inMarkup(t) {
			return true, "referenced from markup"
		}
	}
	public := t.IsVisible() && anyVisible(prop.Accessors())
	if isSerializable(t) {
		return true, "declaring type is Serializable"
	}
	if prop.Setter != nil && prop.Setter.Visibility.IsVisible() && isAttributeType(p.inherit, t) {
		return true, "public setter of a custom attribute"
	}
	return p.visibility(public)
}

// ShouldSkipEvent 事件是否保留原名
func (p *SkipPolicy) ShouldSkipEvent(e *model.Event) (bool, string) {
	if !p.cfg.RenameEvents {
		return true, "event renaming disabled in configuration"
	}
	t := e.DeclaringType
	if skip, decided, reason := p.explicit(e.Annotations, t); decided {
		return skip, reason
	}
	if p.cfg.MarkedOnly {
		return true, "MarkedOnly option in configuration"
	}
	if skip, reason := p.rules.matchMember(RuleEvent, t, e.Key().Name); skip {
		return true, reason
	}
	public := t.IsVisible() && anyVisible(e.Accessors())
	if public && p.inMarkup(t) {
		return true, "referenced from markup"
	}
	return p.visibility(public)
}

// ShouldSkipParams 方法的参数名与泛型参数名是否保留
func (p *SkipPolicy) ShouldSkipParams(m *model.Method) (bool, string) {
	if !p.cfg.RenameParams {
		return true, "parameter renaming disabled in configuration"
	}
	t := m.DeclaringType
	if skip, decided, reason := p.explicit(m.Annotations, t); decided {
		return skip, reason
	}
	if p.cfg.MarkedOnly {
		return true, "MarkedOnly option in configuration"
	}
	return p.visibility(m.Visibility.IsVisible() && t.IsVisible())
}

// ShouldSkipStringHiding 方法中的字面量是否保持原样
func (p *SkipPolicy) ShouldSkipStringHiding(m *model.Method) (bool, string) {
	if !p.cfg.HideStrings {
		return true, "string hiding disabled in configuration"
	}
	if m.Body == nil {
		return true, "no method body"
	}
	t := m.DeclaringType
	if rename, ok := markedToRename(m.Annotations, t, model.FeatureStringHiding); ok && !rename {
		return true, "obfuscation annotation"
	}
	if skip, reason := p.rules.matchMember(RuleStrings, t, m.Key().Name); skip {
		return true, reason
	}
	return false, ""
}

func anyVisible(methods []*model.Method) bool {
	for _, m := range methods {
		if m.Visibility.IsVisible() {
			return true
		}
	}
	return false
}
