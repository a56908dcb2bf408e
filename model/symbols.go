package model

// Visibility 成员或类型的可见性
type Visibility int

const (
	Private Visibility = iota
	FamilyAndAssembly
	Assembly
	Family
	FamilyOrAssembly
	Public
)

// IsVisible 对外部模块可见（public 或 protected）
func (v Visibility) IsVisible() bool {
	return v == Public || v == Family || v == FamilyOrAssembly
}

// TypeKind 类型种类
type TypeKind int

const (
	KindClass TypeKind = iota
	KindInterface
	KindValueType
	KindEnum
)

// MethodSemantics 方法在属性或事件中扮演的角色
type MethodSemantics int

const (
	SemanticsNone MethodSemantics = iota
	SemanticsGetter
	SemanticsSetter
	SemanticsAddOn
	SemanticsRemoveOn
)

// ModuleTypeName 每个模块隐含的全局类型名
const ModuleTypeName = "<Module>"

// Module 一个可独立加载的编译单元
type Module struct {
	Name        string
	CoreLibrary string // 提供基础类库的模块名
	External    bool   // 仅用于解析，不会被改写
	Types       []*Type
	Resources   []*Resource

	// ReferencedBy 持有指向本模块引用的模块（包含自身），由 Link 填充
	ReferencedBy []*Module

	pending []Reference
}

// PendingReferences 返回尚未被改写的引用
func (m *Module) PendingReferences() []Reference {
	return m.pending
}

// RetainReferences 只保留 keep 返回 true 的待处理引用
func (m *Module) RetainReferences(keep func(Reference) bool) {
	kept := m.pending[:0]
	for _, ref := range m.pending {
		if keep(ref) {
			kept = append(kept, ref)
		}
	}
	for i := len(kept); i < len(m.pending); i++ {
		m.pending[i] = nil
	}
	m.pending = kept
}

// AllTypes 按先序返回模块中的全部类型（外层类型在其嵌套类型之前）
func (m *Module) AllTypes() []*Type {
	var out []*Type
	stack := make([]*Type, 0, len(m.Types))
	for i := len(m.Types) - 1; i >= 0; i-- {
		stack = append(stack, m.Types[i])
	}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, t)
		for i := len(t.NestedTypes) - 1; i >= 0; i-- {
			stack = append(stack, t.NestedTypes[i])
		}
	}
	return out
}

// Resource 以名称标识的模块资源
type Resource struct {
	Name string
}

// Type 类型定义
type Type struct {
	Module            *Module
	Namespace         string
	Name              string
	Kind              TypeKind
	Visibility        Visibility
	Sealed            bool
	Abstract          bool
	Serializable      bool
	SpecialName       bool
	BaseType          *TypeReference
	Interfaces        []*TypeReference
	DeclaringType     *Type
	NestedTypes       []*Type
	GenericParameters []*GenericParameter
	Fields            []*Field
	Methods           []*Method
	Properties        []*Property
	Events            []*Event
	Annotations       []Annotation

	id  int
	key TypeKey
}

// Key 返回链接时冻结的键
func (t *Type) Key() TypeKey { return t.key }

// ID 返回链接时分配的稠密编号
func (t *Type) ID() int { return t.id }

// FullName 返回当前全名，嵌套类型以 "/" 连接
func (t *Type) FullName() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

func (t *Type) IsInterface() bool { return t.Kind == KindInterface }
func (t *Type) IsEnum() bool      { return t.Kind == KindEnum }

// IsVisible 类型自身及所有外层类型均对外可见
func (t *Type) IsVisible() bool {
	for cur := t; cur != nil; cur = cur.DeclaringType {
		if !cur.Visibility.IsVisible() {
			return false
		}
	}
	return true
}

// AddNestedType 添加嵌套类型并设置外层关系
func (t *Type) AddNestedType(nested *Type) {
	nested.DeclaringType = t
	nested.Module = t.Module
	t.NestedTypes = append(t.NestedTypes, nested)
}

// AddField 添加字段
func (t *Type) AddField(f *Field) *Field {
	f.DeclaringType = t
	t.Fields = append(t.Fields, f)
	return f
}

// AddMethod 添加方法
func (t *Type) AddMethod(m *Method) *Method {
	m.DeclaringType = t
	t.Methods = append(t.Methods, m)
	return m
}

// AddProperty 添加属性
func (t *Type) AddProperty(p *Property) *Property {
	p.DeclaringType = t
	t.Properties = append(t.Properties, p)
	return p
}

// AddEvent 添加事件
func (t *Type) AddEvent(e *Event) *Event {
	e.DeclaringType = t
	t.Events = append(t.Events, e)
	return e
}

// RemoveProperty 从类型中移除属性
func (t *Type) RemoveProperty(p *Property) {
	for i, cur := range t.Properties {
		if cur == p {
			t.Properties = append(t.Properties[:i], t.Properties[i+1:]...)
			return
		}
	}
}

// RemoveEvent 从类型中移除事件
func (t *Type) RemoveEvent(e *Event) {
	for i, cur := range t.Events {
		if cur == e {
			t.Events = append(t.Events[:i], t.Events[i+1:]...)
			return
		}
	}
}

// GenericParameter 泛型参数
type GenericParameter struct {
	Name        string
	Annotations []Annotation
}

// Parameter 方法参数
type Parameter struct {
	Name        string
	Type        *TypeReference
	Annotations []Annotation
}

// Field 字段定义
type Field struct {
	DeclaringType      *Type
	Name               string
	FieldType          *TypeReference
	Visibility         Visibility
	Static             bool
	Literal            bool
	SpecialName        bool
	RuntimeSpecialName bool
	InitialValue       []byte
	Annotations        []Annotation

	key FieldKey
}

func (f *Field) Key() FieldKey { return f.key }

// Method 方法定义
type Method struct {
	DeclaringType      *Type
	Name               string
	ReturnType         *TypeReference // nil 表示 System.Void
	Parameters         []*Parameter
	GenericParameters  []*GenericParameter
	Visibility         Visibility
	Static             bool
	Virtual            bool
	NewSlot            bool
	Abstract           bool
	SpecialName        bool
	RuntimeSpecialName bool
	Semantics          MethodSemantics
	Overrides          []*MethodReference
	Body               *Body
	Annotations        []Annotation

	id  int
	key MethodKey
}

func (m *Method) Key() MethodKey { return m.key }
func (m *Method) ID() int        { return m.id }

// IsConstructor 实例或静态构造函数
func (m *Method) IsConstructor() bool {
	return m.RuntimeSpecialName && (m.Name == ".ctor" || m.Name == ".cctor")
}

// Signature 返回当前签名（链接后与 Key().Signature 相同，除非参数类型被改写）
func (m *Method) Signature() string {
	params := make([]*TypeReference, len(m.Parameters))
	for i, p := range m.Parameters {
		params[i] = p.Type
	}
	return signature(m.ReturnType, params, len(m.GenericParameters))
}

// Property 属性定义
type Property struct {
	DeclaringType *Type
	Name          string
	PropertyType  *TypeReference
	Getter        *Method
	Setter        *Method
	Annotations   []Annotation

	key PropertyKey
}

func (p *Property) Key() PropertyKey { return p.key }

// Accessors 返回非空的访问器
func (p *Property) Accessors() []*Method {
	return nonNil(p.Getter, p.Setter)
}

// Event 事件定义
type Event struct {
	DeclaringType *Type
	Name          string
	EventType     *TypeReference
	AddMethod     *Method
	RemoveMethod  *Method
	Annotations   []Annotation

	key EventKey
}

func (e *Event) Key() EventKey { return e.key }

// Accessors 返回非空的访问器
func (e *Event) Accessors() []*Method {
	return nonNil(e.AddMethod, e.RemoveMethod)
}

func nonNil(methods ...*Method) []*Method {
	out := methods[:0]
	for _, m := range methods {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
