package model

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed manifest_schema.json
var manifestSchema []byte

// ErrInvalidManifest 清单不符合结构约束或包含无法解析的引用
var ErrInvalidManifest = errors.New("invalid model manifest")

type manifestDoc struct {
	Modules []manifestModule `yaml:"modules"`
}

type manifestModule struct {
	Name        string         `yaml:"name"`
	CoreLibrary string         `yaml:"coreLibrary"`
	External    bool           `yaml:"external"`
	Resources   []string       `yaml:"resources"`
	Types       []manifestType `yaml:"types"`
}

type manifestAnnotation struct {
	Type string         `yaml:"type"`
	Args map[string]any `yaml:"args"`
}

type manifestType struct {
	Name              string               `yaml:"name"`
	Namespace         string               `yaml:"namespace"`
	Kind              string               `yaml:"kind"`
	Visibility        string               `yaml:"visibility"`
	Sealed            bool                 `yaml:"sealed"`
	Abstract          bool                 `yaml:"abstract"`
	Serializable      bool                 `yaml:"serializable"`
	Base              string               `yaml:"base"`
	Interfaces        []string             `yaml:"interfaces"`
	GenericParameters []string             `yaml:"genericParameters"`
	Annotations       []manifestAnnotation `yaml:"annotations"`
	Fields            []manifestField      `yaml:"fields"`
	Methods           []manifestMethod     `yaml:"methods"`
	Properties        []manifestProperty   `yaml:"properties"`
	Events            []manifestEvent      `yaml:"events"`
	Nested            []manifestType       `yaml:"nested"`
}

type manifestField struct {
	Name        string               `yaml:"name"`
	Type        string               `yaml:"type"`
	Visibility  string               `yaml:"visibility"`
	Static      bool                 `yaml:"static"`
	Literal     bool                 `yaml:"literal"`
	SpecialName bool                 `yaml:"specialName"`
	Annotations []manifestAnnotation `yaml:"annotations"`
}

type manifestParam struct {
	Name        string               `yaml:"name"`
	Type        string               `yaml:"type"`
	Annotations []manifestAnnotation `yaml:"annotations"`
}

type manifestInstruction struct {
	Op       string `yaml:"op"`
	String   string `yaml:"string"`
	Int      *int   `yaml:"int"`
	Target   *int   `yaml:"target"`
	Type     string `yaml:"type"`
	Field    string `yaml:"field"`
	Method   string `yaml:"method"`
	Property string `yaml:"property"`
	Instance bool   `yaml:"instance"`
}

type manifestMethod struct {
	Name              string                `yaml:"name"`
	Returns           string                `yaml:"returns"`
	Params            []manifestParam       `yaml:"params"`
	GenericParameters []string              `yaml:"genericParameters"`
	Visibility        string                `yaml:"visibility"`
	Static            bool                  `yaml:"static"`
	Virtual           bool                  `yaml:"virtual"`
	NewSlot           bool                  `yaml:"newSlot"`
	Abstract          bool                  `yaml:"abstract"`
	SpecialName       bool                  `yaml:"specialName"`
	Overrides         []string              `yaml:"overrides"`
	Annotations       []manifestAnnotation  `yaml:"annotations"`
	Body              []manifestInstruction `yaml:"body"`
}

type manifestProperty struct {
	Name        string               `yaml:"name"`
	Type        string               `yaml:"type"`
	Getter      string               `yaml:"getter"`
	Setter      string               `yaml:"setter"`
	Annotations []manifestAnnotation `yaml:"annotations"`
}

type manifestEvent struct {
	Name        string               `yaml:"name"`
	Type        string               `yaml:"type"`
	Add         string               `yaml:"add"`
	Remove      string               `yaml:"remove"`
	Annotations []manifestAnnotation `yaml:"annotations"`
}

// LoadManifest 读取 YAML 清单文件并构建已链接的项目
func LoadManifest(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取清单失败: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest 校验并解析 YAML 清单
func ParseManifest(data []byte) (*Project, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := validateManifest(raw); err != nil {
		return nil, err
	}

	var doc manifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	project := &Project{}
	for _, mm := range doc.Modules {
		m, err := buildModule(mm)
		if err != nil {
			return nil, err
		}
		project.Modules = append(project.Modules, m)
	}
	if err := project.Link(); err != nil {
		return nil, err
	}
	return project, nil
}

func validateManifest(raw any) error {
	schemaLoader := gojsonschema.NewBytesLoader(manifestSchema)
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		msgs = append(msgs, re.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(msgs, "; "))
}

func buildModule(mm manifestModule) (*Module, error) {
	m := &Module{Name: mm.Name, CoreLibrary: mm.CoreLibrary, External: mm.External}
	for _, r := range mm.Resources {
		m.Resources = append(m.Resources, &Resource{Name: r})
	}
	for _, mt := range mm.Types {
		t, err := buildType(m, mt)
		if err != nil {
			return nil, err
		}
		m.Types = append(m.Types, t)
	}
	return m, nil
}

func buildType(m *Module, mt manifestType) (*Type, error) {
	t := &Type{
		Module:       m,
		Namespace:    mt.Namespace,
		Name:         mt.Name,
		Kind:         parseKind(mt.Kind),
		Visibility:   parseVisibility(mt.Visibility),
		Sealed:       mt.Sealed,
		Abstract:     mt.Abstract,
		Serializable: mt.Serializable,
		Annotations:  buildAnnotations(mt.Annotations),
	}
	if mt.Base != "" {
		t.BaseType = ParseTypeRef(m.Name, mt.Base)
	}
	for _, it := range mt.Interfaces {
		t.Interfaces = append(t.Interfaces, ParseTypeRef(m.Name, it))
	}
	t.GenericParameters = buildGenericParams(mt.GenericParameters)
	for _, a := range t.Annotations {
		if a.Kind == AnnotationSerializable {
			t.Serializable = true
		}
	}

	for _, mf := range mt.Fields {
		t.AddField(&Field{
			Name:               mf.Name,
			FieldType:          ParseTypeRef(m.Name, mf.Type),
			Visibility:         parseVisibility(mf.Visibility),
			Static:             mf.Static,
			Literal:            mf.Literal,
			SpecialName:        mf.SpecialName || mf.Name == "value__",
			RuntimeSpecialName: mf.Name == "value__",
			Annotations:        buildAnnotations(mf.Annotations),
		})
	}
	for _, mmeth := range mt.Methods {
		meth, err := buildMethod(m, mmeth)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidManifest, t.FullName(), mmeth.Name, err)
		}
		t.AddMethod(meth)
	}
	for _, mp := range mt.Properties {
		p := &Property{
			Name:         mp.Name,
			PropertyType: ParseTypeRef(m.Name, mp.Type),
			Getter:       methodByName(t, mp.Getter),
			Setter:       methodByName(t, mp.Setter),
			Annotations:  buildAnnotations(mp.Annotations),
		}
		setSemantics(p.Getter, SemanticsGetter)
		setSemantics(p.Setter, SemanticsSetter)
		t.AddProperty(p)
	}
	for _, me := range mt.Events {
		e := &Event{
			Name:         me.Name,
			EventType:    ParseTypeRef(m.Name, me.Type),
			AddMethod:    methodByName(t, me.Add),
			RemoveMethod: methodByName(t, me.Remove),
			Annotations:  buildAnnotations(me.Annotations),
		}
		setSemantics(e.AddMethod, SemanticsAddOn)
		setSemantics(e.RemoveMethod, SemanticsRemoveOn)
		t.AddEvent(e)
	}
	for _, nested := range mt.Nested {
		nt, err := buildType(m, nested)
		if err != nil {
			return nil, err
		}
		t.AddNestedType(nt)
	}
	return t, nil
}

func buildMethod(m *Module, mm manifestMethod) (*Method, error) {
	special := mm.Name == ".ctor" || mm.Name == ".cctor"
	meth := &Method{
		Name:               mm.Name,
		GenericParameters:  buildGenericParams(mm.GenericParameters),
		Visibility:         parseVisibility(mm.Visibility),
		Static:             mm.Static || mm.Name == ".cctor",
		Virtual:            mm.Virtual || mm.Abstract,
		NewSlot:            mm.NewSlot,
		Abstract:           mm.Abstract,
		SpecialName:        mm.SpecialName || special,
		RuntimeSpecialName: special,
		Annotations:        buildAnnotations(mm.Annotations),
	}
	if mm.Returns != "" {
		meth.ReturnType = ParseTypeRef(m.Name, mm.Returns)
	}
	for _, p := range mm.Params {
		meth.Parameters = append(meth.Parameters, &Parameter{
			Name:        p.Name,
			Type:        ParseTypeRef(m.Name, p.Type),
			Annotations: buildAnnotations(p.Annotations),
		})
	}
	for _, o := range mm.Overrides {
		ref, err := ParseMethodRef(m.Name, o)
		if err != nil {
			return nil, err
		}
		meth.Overrides = append(meth.Overrides, ref)
	}
	if mm.Body == nil {
		return meth, nil
	}
	body, err := buildBody(m, mm.Body)
	if err != nil {
		return nil, err
	}
	meth.Body = body
	return meth, nil
}

func buildBody(m *Module, instrs []manifestInstruction) (*Body, error) {
	body := &Body{}
	targets := make(map[*Instruction]int)
	for idx, mi := range instrs {
		op, ok := ParseOpCode(mi.Op)
		if !ok {
			return nil, fmt.Errorf("指令 %d: 未知操作码 %q", idx, mi.Op)
		}
		ins := &Instruction{OpCode: op}
		switch {
		case op == OpLoadString:
			ins.Operand = mi.String
		case op.IsBranch():
			if mi.Target == nil || *mi.Target >= len(instrs) {
				return nil, fmt.Errorf("指令 %d: 跳转目标无效", idx)
			}
			targets[ins] = *mi.Target
		case mi.Method != "":
			ref, err := ParseMethodRef(m.Name, mi.Method)
			if err != nil {
				return nil, fmt.Errorf("指令 %d: %w", idx, err)
			}
			if mi.Instance {
				ref = NewGenericInstance(ref)
			}
			ins.Operand = ref
		case mi.Field != "":
			ref, err := ParseFieldRef(m.Name, mi.Field)
			if err != nil {
				return nil, fmt.Errorf("指令 %d: %w", idx, err)
			}
			ins.Operand = ref
		case mi.Property != "":
			ref, err := ParsePropertyRef(m.Name, mi.Property)
			if err != nil {
				return nil, fmt.Errorf("指令 %d: %w", idx, err)
			}
			ins.Operand = ref
		case mi.Type != "":
			ins.Operand = ParseTypeRef(m.Name, mi.Type)
		case mi.Int != nil:
			ins.Operand = *mi.Int
		}
		body.Instructions = append(body.Instructions, ins)
	}
	for ins, target := range targets {
		ins.Operand = body.Instructions[target]
	}
	return body, nil
}

func buildAnnotations(in []manifestAnnotation) []Annotation {
	if len(in) == 0 {
		return nil
	}
	out := make([]Annotation, 0, len(in))
	for _, a := range in {
		out = append(out, ParseAnnotation(a.Type, a.Args))
	}
	return out
}

func buildGenericParams(names []string) []*GenericParameter {
	var out []*GenericParameter
	for _, n := range names {
		out = append(out, &GenericParameter{Name: n})
	}
	return out
}

func methodByName(t *Type, name string) *Method {
	if name == "" {
		return nil
	}
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func setSemantics(m *Method, s MethodSemantics) {
	if m != nil {
		m.Semantics = s
		m.SpecialName = true
	}
}

func parseKind(s string) TypeKind {
	switch s {
	case "interface":
		return KindInterface
	case "struct":
		return KindValueType
	case "enum":
		return KindEnum
	}
	return KindClass
}

func parseVisibility(s string) Visibility {
	switch s {
	case "public":
		return Public
	case "internal":
		return Assembly
	case "protected":
		return Family
	case "protected internal":
		return FamilyOrAssembly
	case "private protected":
		return FamilyAndAssembly
	}
	return Private
}

// ParseTypeRef 解析 "[Scope]Namespace.Name" 形式的类型引用，省略作用域时指向 defaultScope
func ParseTypeRef(defaultScope, s string) *TypeReference {
	scope := defaultScope
	if strings.HasPrefix(s, "[") {
		if end := strings.IndexByte(s, ']'); end > 0 {
			scope = s[1:end]
			s = s[end+1:]
		}
	}
	return NewTypeReference(scope, s)
}

// ParseMethodRef 解析 "TYPE::Name`N(P1,P2):Ret" 形式的方法引用
func ParseMethodRef(defaultScope, s string) (*MethodReference, error) {
	typePart, rest, ok := strings.Cut(s, "::")
	if !ok {
		return nil, fmt.Errorf("方法引用缺少 '::': %q", s)
	}
	open := strings.IndexByte(rest, '(')
	closing := strings.LastIndexByte(rest, ')')
	if open < 0 || closing < open {
		return nil, fmt.Errorf("方法引用缺少参数列表: %q", s)
	}
	ref := &MethodReference{DeclaringType: ParseTypeRef(defaultScope, typePart)}

	name := rest[:open]
	if i := strings.IndexByte(name, '`'); i >= 0 {
		arity, err := strconv.Atoi(name[i+1:])
		if err != nil {
			return nil, fmt.Errorf("泛型元数无效: %q", s)
		}
		ref.GenericArity = arity
		name = name[:i]
	}
	ref.Name = name

	if params := strings.TrimSpace(rest[open+1 : closing]); params != "" {
		for _, p := range strings.Split(params, ",") {
			ref.Parameters = append(ref.Parameters, ParseTypeRef(defaultScope, strings.TrimSpace(p)))
		}
	}
	if ret := strings.TrimPrefix(rest[closing+1:], ":"); ret != "" {
		ref.ReturnType = ParseTypeRef(defaultScope, ret)
	}
	return ref, nil
}

// ParseFieldRef 解析 "TYPE::name:FIELDTYPE" 形式的字段引用
func ParseFieldRef(defaultScope, s string) (*FieldReference, error) {
	typePart, rest, ok := strings.Cut(s, "::")
	if !ok {
		return nil, fmt.Errorf("字段引用缺少 '::': %q", s)
	}
	name, fieldType, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("字段引用缺少类型: %q", s)
	}
	return &FieldReference{
		DeclaringType: ParseTypeRef(defaultScope, typePart),
		Name:          name,
		FieldType:     ParseTypeRef(defaultScope, fieldType),
	}, nil
}

// ParsePropertyRef 解析 "TYPE::Name:PROPTYPE" 形式的属性引用
func ParsePropertyRef(defaultScope, s string) (*PropertyReference, error) {
	f, err := ParseFieldRef(defaultScope, s)
	if err != nil {
		return nil, err
	}
	return &PropertyReference{DeclaringType: f.DeclaringType, Name: f.Name, PropertyType: f.FieldType}, nil
}
