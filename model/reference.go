package model

import "strings"

// Reference 模块内指向（可能是其他模块的）符号的引用
// 引用的名称可被改写，键在第一次取用时冻结
type Reference interface {
	// TargetScope 返回被引用符号所在的模块名
	TargetScope() string
	isReference()
}

// TypeReference 类型引用
type TypeReference struct {
	Scope         string
	Namespace     string
	Name          string
	DeclaringType *TypeReference // 嵌套类型的外层引用
	Array         bool

	key    TypeKey
	frozen bool
}

// NewTypeReference 由 "Namespace.Outer/Inner" 形式的全名创建引用
func NewTypeReference(scope, fullName string) *TypeReference {
	array := strings.HasSuffix(fullName, "[]")
	fullName = strings.TrimSuffix(fullName, "[]")

	parts := strings.Split(fullName, "/")
	ns, name := splitFullName(parts[0])
	ref := &TypeReference{Scope: scope, Namespace: ns, Name: name}
	for _, nested := range parts[1:] {
		ref = &TypeReference{Scope: scope, Name: nested, DeclaringType: ref}
	}
	ref.Array = array
	return ref
}

// FullName 返回当前（可能已被改写的）全名
func (r *TypeReference) FullName() string {
	if r.DeclaringType != nil {
		return r.DeclaringType.FullName() + "/" + r.Name
	}
	if r.Namespace == "" {
		return r.Name
	}
	return r.Namespace + "." + r.Name
}

// SignatureName 签名中使用的名称
func (r *TypeReference) SignatureName() string {
	if r.Array {
		return r.FullName() + "[]"
	}
	return r.FullName()
}

// Key 返回冻结的类型键
func (r *TypeReference) Key() TypeKey {
	if !r.frozen {
		r.key = r.currentKey()
		r.frozen = true
	}
	return r.key
}

func (r *TypeReference) currentKey() TypeKey {
	if r.DeclaringType != nil {
		outer := r.DeclaringType.Key()
		return TypeKey{Scope: r.Scope, Namespace: outer.Namespace, Name: outer.Name + "/" + r.Name}
	}
	return TypeKey{Scope: r.Scope, Namespace: r.Namespace, Name: r.Name}
}

func (r *TypeReference) TargetScope() string { return r.Scope }
func (*TypeReference) isReference()          {}

// FieldReference 字段引用
type FieldReference struct {
	DeclaringType *TypeReference
	Name          string
	FieldType     *TypeReference

	key    FieldKey
	frozen bool
}

// Key 返回冻结的字段键
func (r *FieldReference) Key() FieldKey {
	if !r.frozen {
		r.key = FieldKey{Type: r.DeclaringType.Key(), Name: r.Name, FieldType: r.FieldType.SignatureName()}
		r.frozen = true
	}
	return r.key
}

func (r *FieldReference) TargetScope() string { return r.DeclaringType.Scope }
func (*FieldReference) isReference()          {}

// MethodReference 方法引用
// Element 非空时表示泛型实例，名称修正作用在 Element 上
type MethodReference struct {
	DeclaringType *TypeReference
	Name          string
	ReturnType    *TypeReference
	Parameters    []*TypeReference
	GenericArity  int
	Element       *MethodReference

	key    MethodKey
	frozen bool
}

// NewGenericInstance 创建泛型方法实例引用
func NewGenericInstance(element *MethodReference) *MethodReference {
	return &MethodReference{
		DeclaringType: element.DeclaringType,
		Name:          element.Name,
		ReturnType:    element.ReturnType,
		Parameters:    element.Parameters,
		GenericArity:  element.GenericArity,
		Element:       element,
	}
}

// IsGenericInstance 是否为泛型实例引用
func (r *MethodReference) IsGenericInstance() bool { return r.Element != nil }

// Key 返回冻结的方法键，泛型实例与其元素共享键
func (r *MethodReference) Key() MethodKey {
	if r.Element != nil {
		return r.Element.Key()
	}
	if !r.frozen {
		r.key = MethodKey{
			Type:      r.DeclaringType.Key(),
			Name:      r.Name,
			Signature: signature(r.ReturnType, r.Parameters, r.GenericArity),
		}
		r.frozen = true
	}
	return r.key
}

// SetName 改写方法名（泛型实例改写其元素）
func (r *MethodReference) SetName(name string) {
	if r.Element != nil {
		r.Element.Name = name
	}
	r.Name = name
}

func (r *MethodReference) TargetScope() string { return r.DeclaringType.Scope }
func (*MethodReference) isReference()          {}

// PropertyReference 属性引用（出现在元数据令牌中）
type PropertyReference struct {
	DeclaringType *TypeReference
	Name          string
	PropertyType  *TypeReference

	key    PropertyKey
	frozen bool
}

// Key 返回冻结的属性键
func (r *PropertyReference) Key() PropertyKey {
	if !r.frozen {
		r.key = PropertyKey{Type: r.DeclaringType.Key(), Name: r.Name, PropertyType: r.PropertyType.SignatureName()}
		r.frozen = true
	}
	return r.key
}

func (r *PropertyReference) TargetScope() string { return r.DeclaringType.Scope }
func (*PropertyReference) isReference()          {}
