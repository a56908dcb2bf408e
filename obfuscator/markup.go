package obfuscator

import "metadata-obfuscator/model"

// collectNotifyTypes 收集与变更通知契约相关的类型：
// 自身（含祖先）实现契约的类型，以及直接派生类实现契约的类型
func (o *Obfuscator) collectNotifyTypes() {
	label := DefaultNotifyContract
	if len(o.Config.NotifyContracts) > 0 {
		label = o.Config.NotifyContracts[0]
	}
	for _, name := range o.Config.NotifyTypes {
		o.policy.notify[name] = label
	}
	for _, t := range o.project.Types() {
		if isSpecialTypeName(t) {
			continue
		}
		for _, contract := range o.Config.NotifyContracts {
			if !o.inherit.DerivesFrom(t, contract) {
				continue
			}
			o.policy.notify[t.Key().FullName()] = contract
			if base := o.directBase(t); base != nil {
				if _, ok := o.policy.notify[base.Key().FullName()]; !ok {
					o.policy.notify[base.Key().FullName()] = contract
				}
			}
			break
		}
	}
}

// directBase 返回已解析的直接基类，派生类实现契约时基类的公开属性同样会被绑定
func (o *Obfuscator) directBase(t *model.Type) *model.Type {
	if base := o.project.Resolve(t.BaseType); base != nil && base != t && !base.IsInterface() {
		return base
	}
	return nil
}

// collectMarkupTypes 以配置的类型为起点，加入标记类型的公开成员使用的枚举，
// 以及变更通知类型的公开或内部枚举属性类型
func (o *Obfuscator) collectMarkupTypes() {
	for _, name := range o.Config.MarkupTypes {
		o.policy.markup[name] = struct{}{}
	}

	var extra []string
	addEnum := func(ref *model.TypeReference) {
		if t := o.project.Resolve(ref); t != nil && t.IsEnum() {
			extra = append(extra, t.Key().FullName())
		}
	}
	for _, t := range o.project.Types() {
		if o.policy.inMarkup(t) {
			for _, f := range t.Fields {
				if f.Visibility.IsVisible() {
					addEnum(f.FieldType)
				}
			}
			for _, p := range t.Properties {
				if anyVisible(p.Accessors()) {
					addEnum(p.PropertyType)
				}
			}
			for _, m := range t.Methods {
				if m.Visibility.IsVisible() {
					addEnum(m.ReturnType)
				}
			}
		}
		if o.policy.notifyContract(t) != "" {
			for _, p := range t.Properties {
				if publicOrInternal(p.Accessors()) {
					addEnum(p.PropertyType)
				}
			}
		}
	}
	for _, name := range extra {
		o.policy.markup[name] = struct{}{}
	}
}

func publicOrInternal(methods []*model.Method) bool {
	for _, m := range methods {
		switch m.Visibility {
		case model.Public, model.Assembly, model.FamilyOrAssembly:
			return true
		}
	}
	return false
}
