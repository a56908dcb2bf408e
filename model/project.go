package model

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateModule 两个模块同名
	ErrDuplicateModule = errors.New("duplicate module")
	// ErrDuplicateSymbol 同一模块中存在相同键的符号
	ErrDuplicateSymbol = errors.New("duplicate symbol")
)

// Project 一组相互引用的模块
type Project struct {
	Modules []*Module

	byName     map[string]*Module
	types      map[TypeKey]*Type
	fields     map[FieldKey]*Field
	methods    map[MethodKey]*Method
	properties map[PropertyKey]*Property
	events     map[EventKey]*Event
	typeList   []*Type
	methodList []*Method
}

// NewProject 创建项目，调用方随后需调用 Link
func NewProject(modules ...*Module) *Project {
	return &Project{Modules: modules}
}

// Module 按名称查找模块
func (p *Project) Module(name string) *Module {
	return p.byName[name]
}

// Types 返回所有已链接的类型，下标即类型 ID
func (p *Project) Types() []*Type { return p.typeList }

// Methods 返回所有已链接的方法，下标即方法 ID
func (p *Project) Methods() []*Method { return p.methodList }

// Link 冻结所有键、建立索引并收集每个模块的待处理引用
// 必须在任何重命名之前调用一次
func (p *Project) Link() error {
	p.byName = make(map[string]*Module, len(p.Modules))
	p.types = make(map[TypeKey]*Type)
	p.fields = make(map[FieldKey]*Field)
	p.methods = make(map[MethodKey]*Method)
	p.properties = make(map[PropertyKey]*Property)
	p.events = make(map[EventKey]*Event)
	p.typeList = p.typeList[:0]
	p.methodList = p.methodList[:0]

	for _, m := range p.Modules {
		if _, ok := p.byName[m.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateModule, m.Name)
		}
		p.byName[m.Name] = m
		m.ReferencedBy = nil
		m.pending = nil
	}

	// 第一遍：冻结定义的键
	for _, m := range p.Modules {
		for _, t := range m.AllTypes() {
			if err := p.indexType(m, t); err != nil {
				return err
			}
		}
	}

	// 第二遍：收集引用
	for _, m := range p.Modules {
		c := &refCollector{project: p, owner: m, seen: make(map[Reference]struct{})}
		for _, t := range m.AllTypes() {
			c.collectType(t)
		}
	}
	return nil
}

func (p *Project) indexType(m *Module, t *Type) error {
	t.Module = m
	if t.DeclaringType != nil {
		outer := t.DeclaringType.key
		t.key = TypeKey{Scope: m.Name, Namespace: outer.Namespace, Name: outer.Name + "/" + t.Name}
	} else {
		t.key = TypeKey{Scope: m.Name, Namespace: t.Namespace, Name: t.Name}
	}
	if _, dup := p.types[t.key]; dup {
		return fmt.Errorf("%w: type %s", ErrDuplicateSymbol, t.key)
	}
	t.id = len(p.typeList)
	p.typeList = append(p.typeList, t)
	p.types[t.key] = t
	for _, nested := range t.NestedTypes {
		nested.DeclaringType = t
	}

	for _, f := range t.Fields {
		f.DeclaringType = t
		f.key = FieldKey{Type: t.key, Name: f.Name, FieldType: f.FieldType.SignatureName()}
		if _, dup := p.fields[f.key]; dup {
			return fmt.Errorf("%w: field %s", ErrDuplicateSymbol, f.key)
		}
		p.fields[f.key] = f
	}
	for _, md := range t.Methods {
		md.DeclaringType = t
		md.key = MethodKey{Type: t.key, Name: md.Name, Signature: md.Signature()}
		if _, dup := p.methods[md.key]; dup {
			return fmt.Errorf("%w: method %s", ErrDuplicateSymbol, md.key)
		}
		md.id = len(p.methodList)
		p.methodList = append(p.methodList, md)
		p.methods[md.key] = md
	}
	for _, prop := range t.Properties {
		prop.DeclaringType = t
		prop.key = PropertyKey{Type: t.key, Name: prop.Name, PropertyType: prop.PropertyType.SignatureName()}
		p.properties[prop.key] = prop
	}
	for _, e := range t.Events {
		e.DeclaringType = t
		e.key = EventKey{Type: t.key, Name: e.Name, EventType: e.EventType.SignatureName()}
		p.events[e.key] = e
	}
	return nil
}

// Resolve 解析类型引用，无法解析时返回 nil
func (p *Project) Resolve(ref *TypeReference) *Type {
	if ref == nil {
		return nil
	}
	return p.types[ref.Key()]
}

// ResolveKey 按键查找类型
func (p *Project) ResolveKey(key TypeKey) *Type {
	return p.types[key]
}

// ResolveField 解析字段引用
func (p *Project) ResolveField(ref *FieldReference) *Field {
	return p.fields[ref.Key()]
}

// ResolveMethod 解析方法引用
func (p *Project) ResolveMethod(ref *MethodReference) *Method {
	return p.methods[ref.Key()]
}

// ResolveProperty 解析属性引用
func (p *Project) ResolveProperty(ref *PropertyReference) *Property {
	return p.properties[ref.Key()]
}

// Resolves 引用的键是否指向一个存在的符号
func (p *Project) Resolves(ref Reference) bool {
	switch r := ref.(type) {
	case *TypeReference:
		return p.Resolve(r) != nil
	case *FieldReference:
		return p.ResolveField(r) != nil
	case *MethodReference:
		return p.ResolveMethod(r) != nil
	case *PropertyReference:
		return p.ResolveProperty(r) != nil
	}
	return false
}

// FindType 按原始全名查找类型，多个模块同名时返回第一个
func (p *Project) FindType(fullName string) *Type {
	for _, m := range p.Modules {
		ns, name := splitFullName(fullName)
		if t := p.types[TypeKey{Scope: m.Name, Namespace: ns, Name: name}]; t != nil {
			return t
		}
	}
	return nil
}

type refCollector struct {
	project *Project
	owner   *Module
	seen    map[Reference]struct{}
}

func (c *refCollector) add(ref Reference) {
	if ref == nil {
		return
	}
	if _, ok := c.seen[ref]; ok {
		return
	}
	c.seen[ref] = struct{}{}

	switch r := ref.(type) {
	case *TypeReference:
		if r == nil {
			return
		}
		c.add(typeRefOrNil(r.DeclaringType))
		r.Key()
	case *FieldReference:
		c.add(r.DeclaringType)
		c.add(typeRefOrNil(r.FieldType))
		r.Key()
	case *MethodReference:
		if r.Element != nil {
			c.add(r.Element)
		}
		c.add(r.DeclaringType)
		c.add(typeRefOrNil(r.ReturnType))
		for _, pt := range r.Parameters {
			c.add(pt)
		}
		r.Key()
	case *PropertyReference:
		c.add(r.DeclaringType)
		c.add(typeRefOrNil(r.PropertyType))
		r.Key()
	}

	target := c.project.byName[ref.TargetScope()]
	if target == nil {
		return
	}
	c.owner.pending = append(c.owner.pending, ref)
	for _, m := range target.ReferencedBy {
		if m == c.owner {
			return
		}
	}
	target.ReferencedBy = append(target.ReferencedBy, c.owner)
}

// typeRefOrNil 避免把 nil 指针包装成非 nil 接口
func typeRefOrNil(r *TypeReference) Reference {
	if r == nil {
		return nil
	}
	return r
}

func (c *refCollector) collectType(t *Type) {
	c.add(typeRefOrNil(t.BaseType))
	for _, it := range t.Interfaces {
		c.add(it)
	}
	for _, f := range t.Fields {
		c.add(typeRefOrNil(f.FieldType))
	}
	for _, m := range t.Methods {
		c.add(typeRefOrNil(m.ReturnType))
		for _, param := range m.Parameters {
			c.add(typeRefOrNil(param.Type))
		}
		for _, o := range m.Overrides {
			c.add(o)
		}
		if m.Body == nil {
			continue
		}
		for _, local := range m.Body.Locals {
			c.add(typeRefOrNil(local))
		}
		for _, h := range m.Body.Handlers {
			c.add(typeRefOrNil(h.CatchType))
		}
		for _, ins := range m.Body.Instructions {
			if ref, ok := ins.Operand.(Reference); ok {
				c.add(ref)
			}
		}
	}
	for _, prop := range t.Properties {
		c.add(typeRefOrNil(prop.PropertyType))
	}
	for _, e := range t.Events {
		c.add(typeRefOrNil(e.EventType))
	}
}
