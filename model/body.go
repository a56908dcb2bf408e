package model

import "fmt"

// OpCode 指令操作码
type OpCode int

const (
	OpNop OpCode = iota
	OpLoadString
	OpLoadInt
	OpLoadArg
	OpLoadLocal
	OpStoreLocal
	OpLoadField
	OpStoreField
	OpLoadStaticField
	OpStoreStaticField
	OpLoadToken
	OpCall
	OpCallVirt
	OpNewObj
	OpNewArray
	OpLoadLength
	OpLoadElemRef
	OpStoreElemRef
	OpLoadElemU1
	OpStoreElemU1
	OpConvU1
	OpXor
	OpAdd
	OpCompareLess
	OpDup
	OpPop
	OpBranch
	OpBranchTrue
	OpBranchFalse
	OpReturn
)

var opNames = [...]string{
	OpNop:              "nop",
	OpLoadString:       "ldstr",
	OpLoadInt:          "ldc",
	OpLoadArg:          "ldarg",
	OpLoadLocal:        "ldloc",
	OpStoreLocal:       "stloc",
	OpLoadField:        "ldfld",
	OpStoreField:       "stfld",
	OpLoadStaticField:  "ldsfld",
	OpStoreStaticField: "stsfld",
	OpLoadToken:        "ldtoken",
	OpCall:             "call",
	OpCallVirt:         "callvirt",
	OpNewObj:           "newobj",
	OpNewArray:         "newarr",
	OpLoadLength:       "ldlen",
	OpLoadElemRef:      "ldelem.ref",
	OpStoreElemRef:     "stelem.ref",
	OpLoadElemU1:       "ldelem.u1",
	OpStoreElemU1:      "stelem.u1",
	OpConvU1:           "conv.u1",
	OpXor:              "xor",
	OpAdd:              "add",
	OpCompareLess:      "clt",
	OpDup:              "dup",
	OpPop:              "pop",
	OpBranch:           "br",
	OpBranchTrue:       "brtrue",
	OpBranchFalse:      "brfalse",
	OpReturn:           "ret",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// ParseOpCode 由助记符解析操作码
func ParseOpCode(name string) (OpCode, bool) {
	for i, n := range opNames {
		if n == name {
			return OpCode(i), true
		}
	}
	return OpNop, false
}

// IsBranch 操作数为跳转目标的指令
func (op OpCode) IsBranch() bool {
	return op == OpBranch || op == OpBranchTrue || op == OpBranchFalse
}

// Instruction 一条指令
// Operand 可能是 string、int、*Instruction、*TypeReference、*FieldReference、
// *MethodReference 或 *PropertyReference
type Instruction struct {
	OpCode  OpCode
	Operand any
}

func (i *Instruction) String() string {
	if i.Operand == nil {
		return i.OpCode.String()
	}
	return fmt.Sprintf("%s %v", i.OpCode, i.Operand)
}

// ExceptionHandler 异常处理块，边界指向指令
type ExceptionHandler struct {
	TryStart     *Instruction
	TryEnd       *Instruction
	HandlerStart *Instruction
	HandlerEnd   *Instruction
	CatchType    *TypeReference
}

// Body 方法体
type Body struct {
	Instructions []*Instruction
	Handlers     []*ExceptionHandler
	Locals       []*TypeReference
}

// Emit 追加一条指令并返回它
func (b *Body) Emit(op OpCode, operand any) *Instruction {
	ins := &Instruction{OpCode: op, Operand: operand}
	b.Instructions = append(b.Instructions, ins)
	return ins
}

// Replace 用 repl 替换 old，并修正所有指向 old 的跳转与异常处理边界
func (b *Body) Replace(old, repl *Instruction) bool {
	found := false
	for i, ins := range b.Instructions {
		if ins == old {
			b.Instructions[i] = repl
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for _, ins := range b.Instructions {
		if target, ok := ins.Operand.(*Instruction); ok && target == old {
			ins.Operand = repl
		}
	}
	for _, h := range b.Handlers {
		retarget(&h.TryStart, old, repl)
		retarget(&h.TryEnd, old, repl)
		retarget(&h.HandlerStart, old, repl)
		retarget(&h.HandlerEnd, old, repl)
	}
	return true
}

func retarget(slot **Instruction, old, repl *Instruction) {
	if *slot == old {
		*slot = repl
	}
}
