package obfuscator

import (
	"fmt"

	"metadata-obfuscator/model"
)

// renameProperties 分两步：先在全部模块上完成跳过判定及其向访问器和属性组的传播，
// 再对未跳过的属性原地重命名（带注解）或丢弃
func (o *Obfuscator) renameProperties() {
	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			for _, prop := range t.Properties {
				o.decideProperty(prop)
			}
		}
	}

	propNames := make(map[model.TypeKey]*NameGroup)
	namesOf := func(t *model.Type) *NameGroup {
		g, ok := propNames[t.Key()]
		if !ok {
			g = NewNameGroup()
			for _, p := range t.Properties {
				if o.Mapping.GetProperty(p.Key()).Status == StatusSkipped {
					g.Add(p.Name)
				}
			}
			propNames[t.Key()] = g
		}
		return g
	}

	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			// 复制一份，丢弃会修改 t.Properties
			props := append([]*model.Property(nil), t.Properties...)
			for _, prop := range props {
				if o.Mapping.GetProperty(prop.Key()).Status != StatusUnknown {
					continue
				}
				members := []*model.Property{prop}
				if g := o.inherit.PropertyGroup(prop.Key()); g != nil {
					members = inScopeProperties(g.Properties)
				}

				if !anyAnnotated(members) {
					for _, p := range members {
						o.dropProperty(p)
					}
					continue
				}

				groups := make([]*NameGroup, 0, len(members))
				for _, p := range members {
					groups = append(groups, namesOf(p.DeclaringType))
				}
				newName := NextAcross(o.names, groups)
				for i, p := range members {
					groups[i].Add(newName)
					o.renameProperty(p, newName)
				}
			}
		}
	}
}

func (o *Obfuscator) decideProperty(prop *model.Property) {
	rec := o.Mapping.GetProperty(prop.Key())
	if rec.Status == StatusSkipped {
		return
	}

	group := o.inherit.PropertyGroup(prop.Key())
	skip, reason := o.policy.ShouldSkipProperty(prop)
	if group != nil && group.External {
		skip, reason = true, "external base class or interface"
	}
	if !skip {
		return
	}

	o.skipProperty(prop, reason)
	if group == nil {
		return
	}
	groupReason := fmt.Sprintf("base class or interface skipped: %s %s", prop.Key(), reason)
	for _, other := range inScopeProperties(group.Properties) {
		if other != prop {
			o.skipProperty(other, groupReason)
		}
	}
}

func (o *Obfuscator) skipProperty(prop *model.Property, reason string) {
	o.Mapping.UpdateProperty(prop.Key(), StatusSkipped, reason)
	for _, acc := range prop.Accessors() {
		o.forceSkip(acc, "skip by property")
	}
}

// forceSkip 将访问器标记为跳过，方法阶段据此让整个方法组跳过
func (o *Obfuscator) forceSkip(m *model.Method, reason string) {
	if inScope(m.DeclaringType) {
		o.Mapping.UpdateMethod(m.Key(), StatusSkipped, reason)
	}
}

func (o *Obfuscator) renameProperty(prop *model.Property, newName string) {
	key := prop.Key()
	patchReferences(prop.DeclaringType.Module, func(ref model.Reference) bool {
		pr, ok := ref.(*model.PropertyReference)
		if !ok || pr.Key() != key {
			return false
		}
		pr.Name = newName
		return true
	})
	prop.Name = newName
	o.Mapping.UpdateProperty(key, StatusRenamed, newName)
}

// dropProperty 移除属性，访问器失去语义角色后在方法阶段独立重命名
func (o *Obfuscator) dropProperty(prop *model.Property) {
	o.Mapping.UpdateProperty(prop.Key(), StatusRenamed, "dropped")
	prop.DeclaringType.RemoveProperty(prop)
	for _, acc := range prop.Accessors() {
		acc.Semantics = model.SemanticsNone
	}
}

func inScopeProperties(props []*model.Property) []*model.Property {
	var out []*model.Property
	for _, p := range props {
		if inScope(p.DeclaringType) {
			out = append(out, p)
		}
	}
	return out
}

func anyAnnotated(props []*model.Property) bool {
	for _, p := range props {
		if len(p.Annotations) > 0 {
			return true
		}
	}
	return false
}
