package obfuscator

import (
	"fmt"
	"slices"
	"sort"
)

// 内置字符集名称
const (
	AlphabetASCII   = "ascii"
	AlphabetUnicode = "unicode"
	AlphabetKorean  = "korean"
)

const asciiLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// 与拉丁字母外形相近的扩展字母
const unicodeLetters = "ĀāĂăĄąĆćĈĉĊċČčĎďĐđĒēĔĕĖėĘęĚěĜĝĞğĠġĢģĤĥĦħĨĩĪīĬĭĮįİıĲĳĴĵĶķĸĹĺĻļĽľĿŀŁł"

// koreanLetters 无收音的韩文音节
var koreanLetters = func() string {
	var rs []rune
	for syllable := 0; syllable < 19*21; syllable += 7 {
		rs = append(rs, rune(0xAC00+syllable*28))
	}
	return string(rs)
}()

// ResolveAlphabet 返回字符集对应的字符序列
// 非内置名称按自定义字符集处理，必须包含至少两个不同字符
func ResolveAlphabet(name string) ([]rune, error) {
	var src string
	switch name {
	case "", AlphabetASCII:
		src = asciiLetters
	case AlphabetUnicode:
		src = unicodeLetters
	case AlphabetKorean:
		src = koreanLetters
	default:
		src = name
	}

	seen := make(map[rune]bool)
	var out []rune
	for _, r := range src {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlphabet, name)
	}
	return out, nil
}

// NameMaker 把非负下标映射为字符集上的名称
// 双射 N 进制编号：先用尽长度 k 的全部名称，再使用长度 k+1
type NameMaker struct {
	alphabet []rune
}

// NewNameMaker 创建名称生成器
func NewNameMaker(alphabet []rune) *NameMaker {
	return &NameMaker{alphabet: alphabet}
}

// UniqueName 返回下标对应的名称，不同下标得到不同名称
func (nm *NameMaker) UniqueName(index int) string {
	n := len(nm.alphabet)
	var buf []rune
	for i := index; i >= 0; i = i/n - 1 {
		buf = append(buf, nm.alphabet[i%n])
	}
	slices.Reverse(buf)
	return string(buf)
}

// UniqueNamespace 返回类型下标对应的命名空间
func (nm *NameMaker) UniqueNamespace(index int) string {
	return nm.UniqueName(index)
}

// UniqueTypeName 返回类型下标对应的类型名
func (nm *NameMaker) UniqueTypeName(index int) string {
	return nm.UniqueName(index)
}

// UniqueNestedTypeName 返回嵌套类型在外层类型中下标对应的名称
func (nm *NameMaker) UniqueNestedTypeName(index int) string {
	return nm.UniqueName(index)
}

// Allocator 持有单次运行的名称计数器
type Allocator struct {
	maker       *NameMaker
	reuse       bool
	memberIndex int
	typeIndex   int
}

// NewAllocator 创建分配器
func NewAllocator(maker *NameMaker, reuse bool) *Allocator {
	return &Allocator{maker: maker, reuse: reuse}
}

// Maker 返回底层名称生成器
func (a *Allocator) Maker() *NameMaker { return a.maker }

// Reuse 是否处于名称复用模式
func (a *Allocator) Reuse() bool { return a.reuse }

// NextMember 从全局成员计数器取下一个名称
func (a *Allocator) NextMember() string {
	name := a.maker.UniqueName(a.memberIndex)
	a.memberIndex++
	return name
}

// NextType 从类型计数器取下一组命名空间与类型名
func (a *Allocator) NextType() (namespace, name string) {
	idx := a.typeIndex
	a.typeIndex++
	return a.maker.UniqueNamespace(idx), a.maker.UniqueTypeName(idx)
}

// NameGroup 同一签名桶中已经占用的名称
type NameGroup struct {
	names map[string]struct{}
}

// NewNameGroup 创建空名称组
func NewNameGroup() *NameGroup {
	return &NameGroup{names: make(map[string]struct{})}
}

// Contains 名称是否已占用
func (g *NameGroup) Contains(name string) bool {
	_, ok := g.names[name]
	return ok
}

// Add 占用名称
func (g *NameGroup) Add(name string) {
	g.names[name] = struct{}{}
}

// AddAll 占用另一组中的全部名称
func (g *NameGroup) AddAll(other *NameGroup) {
	for name := range other.names {
		g.names[name] = struct{}{}
	}
}

// Names 返回排序后的名称，便于比较
func (g *NameGroup) Names() []string {
	out := make([]string, 0, len(g.names))
	for n := range g.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Next 返回一个本组未占用的名称并占用它
func (g *NameGroup) Next(a *Allocator) string {
	name := NextAcross(a, []*NameGroup{g})
	g.Add(name)
	return name
}

// NextAcross 返回所有给定组都未占用的名称，不修改任何组
// 复用模式下从下标 0 开始取最小可用名称，否则推进全局成员计数器
func NextAcross(a *Allocator, groups []*NameGroup) string {
	taken := func(name string) bool {
		for _, g := range groups {
			if g.Contains(name) {
				return true
			}
		}
		return false
	}
	if a.reuse {
		for i := 0; ; i++ {
			if name := a.maker.UniqueName(i); !taken(name) {
				return name
			}
		}
	}
	for {
		if name := a.NextMember(); !taken(name) {
			return name
		}
	}
}

// nameBuckets 按签名分桶的名称组
type nameBuckets map[string]*NameGroup

func (b nameBuckets) get(sig string) *NameGroup {
	g, ok := b[sig]
	if !ok {
		g = NewNameGroup()
		b[sig] = g
	}
	return g
}
