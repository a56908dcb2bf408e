package obfuscator

import (
	"fmt"

	"metadata-obfuscator/model"
)

// renameTypes 为类型分配新的命名空间与名称，并重新登记以原全名命名的资源
// 顶层类型使用类型计数器，复用模式下每个模块从头计数；
// 嵌套类型在外层类型内按顺序取名，避开保留原名的兄弟类型
func (o *Obfuscator) renameTypes() {
	for _, m := range o.modules() {
		resources := append([]*model.Resource(nil), m.Resources...)

		var pending []*model.Type
		taken := make(map[string]bool)
		siblings := make(map[model.TypeKey]*NameGroup)
		for _, t := range m.AllTypes() {
			if skip, reason := o.policy.ShouldSkipType(t); skip {
				o.Mapping.UpdateType(t.Key(), StatusSkipped, reason)
				resources = o.skipResources(resources, t.Key().FullName(), reason)
				if t.DeclaringType == nil {
					taken[t.FullName()] = true
				} else {
					nestedNames(siblings, t.DeclaringType).Add(t.Name)
				}
				continue
			}
			pending = append(pending, t)
		}

		typeIndex := 0
		nextType := func() (string, string) {
			if !o.names.Reuse() {
				return o.names.NextType()
			}
			idx := typeIndex
			typeIndex++
			return o.names.Maker().UniqueNamespace(idx), o.names.Maker().UniqueTypeName(idx)
		}

		for _, t := range pending {
			oldFullName := t.Key().FullName()
			arity := len(t.GenericParameters)

			var ns, name string
			if t.DeclaringType != nil {
				name = o.nextNestedName(nestedNames(siblings, t.DeclaringType), arity)
			} else {
				for {
					ns, name = nextType()
					if !taken[ns+"."+name] {
						break
					}
				}
				taken[ns+"."+name] = true
				name = withArity(name, arity)
			}

			o.renameType(t, ns, name)
			newFullName := t.FullName()
			o.Mapping.UpdateType(t.Key(), StatusRenamed, fmt.Sprintf("[%s]%s", m.Name, newFullName))

			var rekeyed bool
			resources, rekeyed = o.rekeyResources(resources, oldFullName, newFullName)
			if rekeyed && o.resources.IsResourcesType(t) {
				o.fixResourceManager(t, oldFullName, newFullName)
			}
		}

		for _, res := range resources {
			o.Mapping.AddResource(res.Name, StatusSkipped, "no clear new name")
		}
	}
}

func withArity(name string, arity int) string {
	if arity == 0 {
		return name
	}
	return fmt.Sprintf("%s`%d", name, arity)
}

// nestedNames 返回外层类型中已占用的嵌套类型名
func nestedNames(siblings map[model.TypeKey]*NameGroup, parent *model.Type) *NameGroup {
	g, ok := siblings[parent.Key()]
	if !ok {
		g = NewNameGroup()
		siblings[parent.Key()] = g
	}
	return g
}

// nextNestedName 从下标 0 起取外层类型中第一个未占用的嵌套类型名并占用它
// 占用按不带泛型后缀的名称计
func (o *Obfuscator) nextNestedName(taken *NameGroup, arity int) string {
	for i := 0; ; i++ {
		name := o.names.Maker().UniqueNestedTypeName(i)
		if !taken.Contains(name) {
			taken.Add(name)
			return withArity(name, arity)
		}
	}
}

// renameType 改写引用后再改写类型自身；嵌套类型的命名空间保持为空
func (o *Obfuscator) renameType(t *model.Type, ns, name string) {
	key := t.Key()
	nested := t.DeclaringType != nil
	patchReferences(t.Module, func(ref model.Reference) bool {
		tr, ok := ref.(*model.TypeReference)
		if !ok || tr.Key() != key {
			return false
		}
		if !nested {
			tr.Namespace = ns
		}
		tr.Name = name
		return true
	})
	if !nested {
		t.Namespace = ns
	}
	t.Name = name
}

// resourceBaseName 去掉最后一个扩展名
func resourceBaseName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

// rekeyResources 以 oldFullName 为基名的资源改为以 newFullName 为前缀
// 返回尚未匹配的资源，以及是否有资源被重新登记
func (o *Obfuscator) rekeyResources(resources []*model.Resource, oldFullName, newFullName string) ([]*model.Resource, bool) {
	rest := resources[:0]
	matched := false
	for _, res := range resources {
		if resourceBaseName(res.Name) != oldFullName {
			rest = append(rest, res)
			continue
		}
		oldName := res.Name
		res.Name = newFullName + oldName[len(oldFullName):]
		o.Mapping.AddResource(oldName, StatusRenamed, res.Name)
		matched = true
	}
	return rest, matched
}

func (o *Obfuscator) skipResources(resources []*model.Resource, fullName, reason string) []*model.Resource {
	rest := resources[:0]
	for _, res := range resources {
		if resourceBaseName(res.Name) == fullName {
			o.Mapping.AddResource(res.Name, StatusSkipped, reason)
			continue
		}
		rest = append(rest, res)
	}
	return rest
}

// fixResourceManager 资源持有类型在返回 ResourceManager 的方法中以字面量加载原全名，
// 将其改为新全名
func (o *Obfuscator) fixResourceManager(t *model.Type, oldFullName, newFullName string) {
	for _, meth := range t.Methods {
		if meth.Body == nil || meth.ReturnType == nil || meth.ReturnType.Key().FullName() != resourceManagerTypeName {
			continue
		}
		for _, ins := range meth.Body.Instructions {
			if s, ok := ins.Operand.(string); ok && ins.OpCode == model.OpLoadString && s == oldFullName {
				ins.Operand = newFullName
			}
		}
	}
}
