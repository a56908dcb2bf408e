package obfuscator

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"metadata-obfuscator/model"
)

const (
	literalMask          = 0xAA
	encodingTypeName     = "System.Text.Encoding"
	runtimeHelpersName   = "System.Runtime.CompilerServices.RuntimeHelpers"
	systemStringTypeName = "System.String"
	systemByteArrayName  = "System.Byte[]"
	systemInt32TypeName  = "System.Int32"
	systemValueTypeName  = "System.ValueType"
	systemObjectTypeName = "System.Object"
)

// ErrUnknownLiteral 字面量编号不存在
var ErrUnknownLiteral = errors.New("unknown literal id")

// LiteralSlot 一个去重后的字面量在数据块中的位置
type LiteralSlot struct {
	ID       int
	Offset   int
	Length   int
	Sites    int
	Accessor *model.Method
}

// HiddenLiterals 一个模块的字面量隐藏结果
// Data 为已掩码的数据块，与生成的静态初始化器中的常量一致
type HiddenLiterals struct {
	Module string
	Helper *model.Type
	Data   []byte
	Slots  []LiteralSlot

	byValue map[string]int
	once    sync.Once
	plain   []byte
	cache   []atomic.Pointer[string]
}

// Lookup 按原始值查找字面量
func (h *HiddenLiterals) Lookup(value string) (LiteralSlot, bool) {
	id, ok := h.byValue[value]
	if !ok {
		return LiteralSlot{}, false
	}
	return h.Slots[id], true
}

// Decode 与生成的访问器逻辑相同：首次访问时整体去掩码，按编号缓存
// 缓存只做存在性检查，重复解码结果相同
func (h *HiddenLiterals) Decode(id int) (string, error) {
	if id < 0 || id >= len(h.Slots) {
		return "", fmt.Errorf("%w: %d", ErrUnknownLiteral, id)
	}
	if cached := h.cache[id].Load(); cached != nil {
		return *cached, nil
	}
	h.once.Do(func() {
		h.plain = append([]byte(nil), h.Data...)
		maskBlob(h.plain)
	})
	slot := h.Slots[id]
	value := string(h.plain[slot.Offset : slot.Offset+slot.Length])
	h.cache[id].Store(&value)
	return value, nil
}

// maskBlob 按位置掩码，两次调用还原
func maskBlob(data []byte) {
	for i := range data {
		data[i] = data[i] ^ byte(i) ^ literalMask
	}
}

// hideStrings 对每个模块执行字面量隐藏，单个模块失败不影响其他模块
func (o *Obfuscator) hideStrings() {
	if !o.Config.HideStrings {
		o.logger.Debug("字符串隐藏已禁用")
		return
	}
	for _, m := range o.modules() {
		hidden, err := o.hideModuleStrings(m)
		if err != nil {
			o.logger.Warn("模块字面量隐藏不可用", zap.String("module", m.Name), zap.Error(err))
			o.addDiagnostic(DiagnosticTransformUnavailable, m.Name, "literal hiding disabled for module", err)
			continue
		}
		if hidden == nil {
			continue
		}
		o.hidden = append(o.hidden, hidden)
		o.logger.Debug("字面量隐藏完成",
			zap.String("module", m.Name),
			zap.String("helper", hidden.Helper.Name),
			zap.Int("literals", len(hidden.Slots)),
			zap.Int("bytes", len(hidden.Data)))
	}
}

// literalSite 一处待替换的字面量加载
type literalSite struct {
	ins *model.Instruction
	id  int
}

func (o *Obfuscator) hideModuleStrings(m *model.Module) (*HiddenLiterals, error) {
	var methods []*model.Method
	for _, t := range renamableTypes(m) {
		for _, meth := range t.Methods {
			if skip, _ := o.policy.ShouldSkipStringHiding(meth); skip {
				continue
			}
			methods = append(methods, meth)
		}
	}

	found, err := o.scanLiterals(methods)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, sites := range found {
		total += len(sites)
	}
	if total == 0 {
		return nil, nil
	}

	if o.project.Resolve(model.NewTypeReference(m.CoreLibrary, encodingTypeName)) == nil {
		return nil, fmt.Errorf("%w: %s not found in %q", ErrTransformUnavailable, encodingTypeName, m.CoreLibrary)
	}

	h := newLiteralHelper(o.names.Maker(), m)
	plans := make([][]literalSite, len(methods))
	for i, sites := range found {
		for _, ins := range sites {
			plans[i] = append(plans[i], literalSite{ins: ins, id: h.intern(ins.Operand.(string))})
		}
	}

	if err := o.rewriteLiterals(methods, plans, h); err != nil {
		return nil, err
	}
	return h.finalize(), nil
}

// literalWorkers 0 表示不限制并发
func (o *Obfuscator) literalWorkers() int {
	if o.Config.LiteralWorkers == 0 {
		return -1
	}
	return o.Config.LiteralWorkers
}

// scanLiterals 并行收集每个方法中的字面量加载，结果与 methods 下标对齐
func (o *Obfuscator) scanLiterals(methods []*model.Method) ([][]*model.Instruction, error) {
	found := make([][]*model.Instruction, len(methods))
	var g errgroup.Group
	g.SetLimit(o.literalWorkers())
	for i, meth := range methods {
		g.Go(func() error {
			for _, ins := range meth.Body.Instructions {
				if ins.OpCode != model.OpLoadString {
					continue
				}
				if _, ok := ins.Operand.(string); !ok {
					return fmt.Errorf("%w: %s: ldstr operand is %T", ErrTransformUnavailable, meth.Key(), ins.Operand)
				}
				found[i] = append(found[i], ins)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("扫描字面量失败: %w", err)
	}
	return found, nil
}

// rewriteLiterals 并行把字面量加载替换为访问器调用，每个方法体只由一个协程修改
func (o *Obfuscator) rewriteLiterals(methods []*model.Method, plans [][]literalSite, h *literalHelper) error {
	var g errgroup.Group
	g.SetLimit(o.literalWorkers())
	for i, meth := range methods {
		sites := plans[i]
		if len(sites) == 0 {
			continue
		}
		g.Go(func() error {
			for _, site := range sites {
				call := &model.Instruction{OpCode: model.OpCall, Operand: h.accessorRefs[site.id]}
				if !meth.Body.Replace(site.ins, call) {
					return fmt.Errorf("%w: %s: literal load vanished before rewrite", ErrTransformUnavailable, meth.Key())
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("替换字面量失败: %w", err)
	}
	return nil
}

// literalHelper 构造一个模块的解码辅助类型
type literalHelper struct {
	maker  *NameMaker
	module *model.Module
	core   string

	helper    *model.Type
	helperRef *model.TypeReference
	layout    *model.Type

	constField *model.Field
	dataField  *model.Field
	cacheField *model.Field
	getter     *model.Method
	getterRef  *model.MethodReference

	memberIndex  int
	blob         []byte
	byValue      map[string]int
	slots        []LiteralSlot
	accessorRefs []*model.MethodReference
}

// helperTypeName 基于模块名的确定性名称，与已有类型冲突时追加后缀
func helperTypeName(m *model.Module) string {
	id := strings.ToUpper(uuid.NewSHA1(uuid.NameSpaceOID, []byte(m.Name)).String())
	base := privateDetailsPrefix + id + "}"
	existing := make(map[string]bool)
	for _, t := range m.Types {
		existing[t.FullName()] = true
	}
	name := base
	for i := 1; existing[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	return name
}

func newLiteralHelper(maker *NameMaker, m *model.Module) *literalHelper {
	h := &literalHelper{
		maker:   maker,
		module:  m,
		core:    m.CoreLibrary,
		byValue: make(map[string]int),
	}

	name := helperTypeName(m)
	h.helper = &model.Type{
		Module:     m,
		Name:       name,
		Kind:       model.KindClass,
		Visibility: model.Assembly,
		Sealed:     true,
		BaseType:   h.coreRef(systemObjectTypeName),
	}
	h.helperRef = model.NewTypeReference(m.Name, name)

	layoutName := h.nextName()
	h.layout = &model.Type{
		Name:       layoutName,
		Kind:       model.KindValueType,
		Visibility: model.Private,
		Sealed:     true,
		BaseType:   h.coreRef(systemValueTypeName),
	}
	h.helper.AddNestedType(h.layout)

	h.constField = h.helper.AddField(&model.Field{
		Name:       h.nextName(),
		FieldType:  model.NewTypeReference(m.Name, name+"/"+layoutName),
		Visibility: model.Assembly,
		Static:     true,
	})
	h.dataField = h.helper.AddField(&model.Field{
		Name:       h.nextName(),
		FieldType:  h.coreRef(systemByteArrayName),
		Visibility: model.Assembly,
		Static:     true,
	})
	h.cacheField = h.helper.AddField(&model.Field{
		Name:       h.nextName(),
		FieldType:  h.coreRef(systemStringTypeName + "[]"),
		Visibility: model.Assembly,
		Static:     true,
	})

	h.getter = h.helper.AddMethod(h.buildGetter())
	h.getterRef = h.methodRef(h.getter)
	return h
}

func (h *literalHelper) nextName() string {
	name := h.maker.UniqueName(h.memberIndex)
	h.memberIndex++
	return name
}

func (h *literalHelper) coreRef(fullName string) *model.TypeReference {
	return model.NewTypeReference(h.core, fullName)
}

func (h *literalHelper) fieldRef(f *model.Field) *model.FieldReference {
	return &model.FieldReference{DeclaringType: h.helperRef, Name: f.Name, FieldType: f.FieldType}
}

func (h *literalHelper) methodRef(meth *model.Method) *model.MethodReference {
	params := make([]*model.TypeReference, len(meth.Parameters))
	for i, p := range meth.Parameters {
		params[i] = p.Type
	}
	return &model.MethodReference{
		DeclaringType: h.helperRef,
		Name:          meth.Name,
		ReturnType:    meth.ReturnType,
		Parameters:    params,
	}
}

// buildGetter 解码方法 (id, offset, length)：按 UTF-8 取出子串并写入缓存
func (h *literalHelper) buildGetter() *model.Method {
	intRef := h.coreRef(systemInt32TypeName)
	encoding := h.coreRef(encodingTypeName)
	getUTF8 := &model.MethodReference{
		DeclaringType: encoding,
		Name:          "get_UTF8",
		ReturnType:    encoding,
	}
	getString := &model.MethodReference{
		DeclaringType: encoding,
		Name:          "GetString",
		ReturnType:    h.coreRef(systemStringTypeName),
		Parameters:    []*model.TypeReference{h.coreRef(systemByteArrayName), intRef, intRef},
	}

	body := &model.Body{Locals: []*model.TypeReference{h.coreRef(systemStringTypeName)}}
	body.Emit(model.OpCall, getUTF8)
	body.Emit(model.OpLoadStaticField, h.fieldRef(h.dataField))
	body.Emit(model.OpLoadArg, 1)
	body.Emit(model.OpLoadArg, 2)
	body.Emit(model.OpCallVirt, getString)
	body.Emit(model.OpStoreLocal, 0)
	body.Emit(model.OpLoadStaticField, h.fieldRef(h.cacheField))
	body.Emit(model.OpLoadArg, 0)
	body.Emit(model.OpLoadLocal, 0)
	body.Emit(model.OpStoreElemRef, nil)
	body.Emit(model.OpLoadLocal, 0)
	body.Emit(model.OpReturn, nil)

	return &model.Method{
		Name:       h.nextName(),
		ReturnType: h.coreRef(systemStringTypeName),
		Parameters: []*model.Parameter{
			{Type: intRef}, {Type: intRef}, {Type: intRef},
		},
		Visibility: model.Private,
		Static:     true,
		Body:       body,
	}
}

// intern 返回值对应的编号，首次出现时追加到数据块并生成访问器
func (h *literalHelper) intern(value string) int {
	if id, ok := h.byValue[value]; ok {
		h.slots[id].Sites++
		return id
	}

	id := len(h.slots)
	offset := len(h.blob)
	h.blob = append(h.blob, value...)

	accessor := h.helper.AddMethod(h.buildAccessor(id, offset, len(value)))
	h.slots = append(h.slots, LiteralSlot{
		ID:       id,
		Offset:   offset,
		Length:   len(value),
		Sites:    1,
		Accessor: accessor,
	})
	h.accessorRefs = append(h.accessorRefs, h.methodRef(accessor))
	h.byValue[value] = id
	return id
}

// buildAccessor 缓存命中时直接返回，否则调用解码方法
func (h *literalHelper) buildAccessor(id, offset, length int) *model.Method {
	body := &model.Body{}
	body.Emit(model.OpLoadStaticField, h.fieldRef(h.cacheField))
	body.Emit(model.OpLoadInt, id)
	body.Emit(model.OpLoadElemRef, nil)
	body.Emit(model.OpDup, nil)
	hit := body.Emit(model.OpBranchTrue, nil)
	body.Emit(model.OpPop, nil)
	body.Emit(model.OpLoadInt, id)
	body.Emit(model.OpLoadInt, offset)
	body.Emit(model.OpLoadInt, length)
	body.Emit(model.OpCall, h.getterRef)
	hit.Operand = body.Emit(model.OpReturn, nil)

	return &model.Method{
		Name:       h.nextName(),
		ReturnType: h.coreRef(systemStringTypeName),
		Visibility: model.Assembly,
		Static:     true,
		Body:       body,
	}
}

// buildInitializer 静态初始化器：分配缓存，复制常量数据并逐字节去掩码
func (h *literalHelper) buildInitializer() *model.Method {
	byteRef := h.coreRef("System.Byte")
	initArray := &model.MethodReference{
		DeclaringType: h.coreRef(runtimeHelpersName),
		Name:          "InitializeArray",
		Parameters:    []*model.TypeReference{h.coreRef("System.Array"), h.coreRef("System.RuntimeFieldHandle")},
	}
	data := h.fieldRef(h.dataField)

	body := &model.Body{Locals: []*model.TypeReference{h.coreRef(systemInt32TypeName)}}
	body.Emit(model.OpLoadInt, len(h.slots))
	body.Emit(model.OpNewArray, h.coreRef(systemStringTypeName))
	body.Emit(model.OpStoreStaticField, h.fieldRef(h.cacheField))
	body.Emit(model.OpLoadInt, len(h.blob))
	body.Emit(model.OpNewArray, byteRef)
	body.Emit(model.OpDup, nil)
	body.Emit(model.OpLoadToken, h.fieldRef(h.constField))
	body.Emit(model.OpCall, initArray)
	body.Emit(model.OpStoreStaticField, data)
	body.Emit(model.OpLoadInt, 0)
	body.Emit(model.OpStoreLocal, 0)
	toCheck := body.Emit(model.OpBranch, nil)

	loop := body.Emit(model.OpLoadStaticField, data)
	body.Emit(model.OpLoadLocal, 0)
	body.Emit(model.OpLoadStaticField, data)
	body.Emit(model.OpLoadLocal, 0)
	body.Emit(model.OpLoadElemU1, nil)
	body.Emit(model.OpLoadLocal, 0)
	body.Emit(model.OpXor, nil)
	body.Emit(model.OpLoadInt, literalMask)
	body.Emit(model.OpXor, nil)
	body.Emit(model.OpConvU1, nil)
	body.Emit(model.OpStoreElemU1, nil)
	body.Emit(model.OpLoadLocal, 0)
	body.Emit(model.OpLoadInt, 1)
	body.Emit(model.OpAdd, nil)
	body.Emit(model.OpStoreLocal, 0)

	toCheck.Operand = body.Emit(model.OpLoadLocal, 0)
	body.Emit(model.OpLoadStaticField, data)
	body.Emit(model.OpLoadLength, nil)
	body.Emit(model.OpCompareLess, nil)
	body.Emit(model.OpBranchTrue, loop)
	body.Emit(model.OpReturn, nil)

	return &model.Method{
		Name:               ".cctor",
		Visibility:         model.Private,
		Static:             true,
		SpecialName:        true,
		RuntimeSpecialName: true,
		Body:               body,
	}
}

// finalize 掩码数据块，生成静态初始化器并把辅助类型加入模块
func (h *literalHelper) finalize() *HiddenLiterals {
	masked := append([]byte(nil), h.blob...)
	maskBlob(masked)
	h.constField.InitialValue = masked

	h.helper.AddMethod(h.buildInitializer())
	h.module.Types = append(h.module.Types, h.helper)

	return &HiddenLiterals{
		Module:  h.module.Name,
		Helper:  h.helper,
		Data:    masked,
		Slots:   h.slots,
		byValue: h.byValue,
		cache:   make([]atomic.Pointer[string], len(h.slots)),
	}
}
